package literature

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/evidenced/internal/literature"

// Searcher is the search surface the retriever depends on.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Document, error)
}

// SectionFetcher retrieves full-text sections for one article. A Searcher
// that also implements it gets sections fetched for documents whose search
// record carried no abstract.
type SectionFetcher interface {
	FetchSections(ctx context.Context, pmcid string) ([]Section, error)
}

// RetrieverConfig configures multi-query retrieval.
type RetrieverConfig struct {
	// MaxPerQuery caps results fetched for each expanded query.
	MaxPerQuery int

	// MaxTotal caps the merged result set across all queries.
	MaxTotal int

	// PageSize is results per search request.
	PageSize int

	// OpenAccessOnly restricts retrieval to open-access records.
	OpenAccessOnly bool

	// MaxRetries is attempts per query beyond the first.
	MaxRetries int

	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration
}

// DefaultRetrieverConfig returns sensible defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		MaxPerQuery:    5,
		MaxTotal:       12,
		PageSize:       25,
		OpenAccessOnly: true,
		MaxRetries:     3,
		BaseBackoff:    500 * time.Millisecond,
	}
}

// Retriever executes expanded queries in order, retries transient failures
// with exponential backoff, and merges results into a deduplicated list.
type Retriever struct {
	searcher Searcher
	fetcher  SectionFetcher
	config   RetrieverConfig
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	queriesCounter metric.Int64Counter
	skippedCounter metric.Int64Counter
}

// NewRetriever creates a Retriever over the given searcher.
func NewRetriever(searcher Searcher, cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPerQuery <= 0 {
		cfg.MaxPerQuery = DefaultRetrieverConfig().MaxPerQuery
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = DefaultRetrieverConfig().MaxTotal
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultRetrieverConfig().BaseBackoff
	}

	r := &Retriever{
		searcher: searcher,
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	if f, ok := searcher.(SectionFetcher); ok {
		r.fetcher = f
	}
	r.initMetrics()
	return r
}

func (r *Retriever) initMetrics() {
	var err error

	r.queriesCounter, err = r.meter.Int64Counter(
		"evidenced.retrieval.queries_total",
		metric.WithDescription("Total literature queries issued"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		r.logger.Warn("failed to create queries counter", zap.Error(err))
	}

	r.skippedCounter, err = r.meter.Int64Counter(
		"evidenced.retrieval.queries_skipped_total",
		metric.WithDescription("Queries skipped after retry exhaustion"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		r.logger.Warn("failed to create skipped counter", zap.Error(err))
	}
}

// Retrieve runs every query in order and merges results. Documents are
// deduplicated by identifier, keeping the highest score seen; merge order
// preserves first appearance so equal scores remain stable. A query that
// keeps failing after retries is skipped and logged; partial results from
// the remaining queries are still returned. Only when every query fails
// does Retrieve return ErrNoEvidence.
func (r *Retriever) Retrieve(ctx context.Context, queries []string) ([]Document, error) {
	ctx, span := r.tracer.Start(ctx, "literature.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("query_count", len(queries)))

	if len(queries) == 0 {
		return nil, ErrNoEvidence
	}

	opts := SearchOptions{
		Limit:          r.config.MaxPerQuery,
		PageSize:       r.config.PageSize,
		OpenAccessOnly: r.config.OpenAccessOnly,
	}

	merged := make([]Document, 0, r.config.MaxTotal)
	index := make(map[string]int)
	failures := 0

	for _, query := range queries {
		if len(merged) >= r.config.MaxTotal {
			break
		}
		if r.queriesCounter != nil {
			r.queriesCounter.Add(ctx, 1)
		}

		docs, err := r.searchWithRetry(ctx, query, opts)
		if err != nil {
			failures++
			if r.skippedCounter != nil {
				r.skippedCounter.Add(ctx, 1)
			}
			retrievalErr := &RetrievalError{Query: query, Err: err}
			span.RecordError(retrievalErr)
			r.logger.Warn("query skipped after retries",
				zap.String("query", query),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, doc := range docs {
			if i, seen := index[doc.ID]; seen {
				if doc.Score > merged[i].Score {
					merged[i].Score = doc.Score
				}
				continue
			}
			if len(merged) >= r.config.MaxTotal {
				break
			}
			index[doc.ID] = len(merged)
			merged = append(merged, doc)
		}
	}

	if failures == len(queries) {
		span.SetStatus(codes.Error, "all queries failed")
		return nil, ErrNoEvidence
	}

	r.fillSections(ctx, merged)

	span.SetAttributes(attribute.Int("documents", len(merged)))
	span.SetStatus(codes.Ok, "")
	return merged, nil
}

// fillSections fetches full-text sections for merged documents that came
// back without an abstract, so assembly has a span to fall back on. A fetch
// failure only loses that fallback, so it is logged and the document kept.
func (r *Retriever) fillSections(ctx context.Context, docs []Document) {
	if r.fetcher == nil {
		return
	}
	for i := range docs {
		if docs[i].Abstract != "" || ctx.Err() != nil {
			continue
		}
		sections, err := r.fetcher.FetchSections(ctx, docs[i].ID)
		if err != nil {
			r.logger.Warn("full text fetch failed",
				zap.String("pmcid", docs[i].ID),
				zap.Error(err),
			)
			continue
		}
		docs[i].Sections = sections
	}
}

// searchWithRetry retries transient failures with exponential backoff.
// Non-retryable errors and context cancellation end the attempt loop early.
func (r *Retriever) searchWithRetry(ctx context.Context, query string, opts SearchOptions) ([]Document, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.config.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		docs, err := r.searcher.Search(ctx, query, opts)
		if err == nil {
			return docs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
