package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/assemble"
	"github.com/fyrsmithlabs/evidenced/internal/literature"
	"github.com/fyrsmithlabs/evidenced/internal/logging"
	"github.com/fyrsmithlabs/evidenced/internal/memory"
	"github.com/fyrsmithlabs/evidenced/internal/memstore"
	"github.com/fyrsmithlabs/evidenced/internal/moderation"
	"github.com/fyrsmithlabs/evidenced/internal/summarize"
)

const instrumentationName = "github.com/fyrsmithlabs/evidenced/internal/pipeline"

// Component surfaces the orchestrator depends on. Narrow interfaces keep
// the pipeline testable with fakes.
type (
	// Moderator gates questions before any other work.
	Moderator interface {
		Decide(question string) moderation.Decision
	}

	// Expander turns a question into search queries.
	Expander interface {
		Expand(ctx context.Context, question string) ([]string, error)
	}

	// Scrubber anonymizes free text.
	Scrubber interface {
		Scrub(text string) string
	}

	// Retriever fetches literature for expanded queries.
	Retriever interface {
		Retrieve(ctx context.Context, queries []string) ([]literature.Document, error)
	}

	// Assembler builds the token-bounded evidence context.
	Assembler interface {
		Assemble(question string, docs []literature.Document) assemble.EvidenceContext
	}

	// Summarizer produces the cited answer.
	Summarizer interface {
		Summarize(ctx context.Context, question string, evidence assemble.EvidenceContext, recent []memory.Turn) (summarize.Answer, error)
	}

	// Cache is the optional article excerpt cache consulted before live
	// retrieval.
	Cache interface {
		Search(ctx context.Context, query string) ([]memstore.Hit, error)
		Add(ctx context.Context, entries []memstore.Entry) error
	}
)

// Config holds orchestrator settings.
type Config struct {
	// MaxTurns bounds each session's conversation memory.
	MaxTurns int

	// RecentTurns is how many turns accompany the model prompt.
	RecentTurns int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns:    50,
		RecentTurns: 3,
	}
}

// Deps bundles the orchestrator's collaborators. Gate, Expander, Scrubber,
// Retriever, Assembler, and Summarizer are required; Cache and Store are
// optional.
type Deps struct {
	Gate       Moderator
	Expander   Expander
	Scrubber   Scrubber
	Retriever  Retriever
	Assembler  Assembler
	Summarizer Summarizer
	Cache      Cache
	Store      memory.TurnStore
}

func (d Deps) validate() error {
	switch {
	case d.Gate == nil:
		return fmt.Errorf("moderation gate is required")
	case d.Expander == nil:
		return fmt.Errorf("expander is required")
	case d.Scrubber == nil:
		return fmt.Errorf("scrubber is required")
	case d.Retriever == nil:
		return fmt.Errorf("retriever is required")
	case d.Assembler == nil:
		return fmt.Errorf("assembler is required")
	case d.Summarizer == nil:
		return fmt.Errorf("summarizer is required")
	}
	return nil
}

// session is one conversation's memory plus the mutex that serializes its
// pipelines. Concurrent Answer calls for the same session queue here;
// different sessions run independently.
type session struct {
	mu  sync.Mutex
	mem *memory.Memory
}

// Orchestrator runs the full answer pipeline per session.
type Orchestrator struct {
	deps   Deps
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	sessionsMu sync.Mutex
	sessions   map[string]*session
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}
	if cfg.RecentTurns < 0 {
		cfg.RecentTurns = DefaultConfig().RecentTurns
	}

	return &Orchestrator{
		deps:     deps,
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		sessions: make(map[string]*session),
	}, nil
}

// getSession returns the session, creating it and loading persisted
// history on first use.
func (o *Orchestrator) getSession(ctx context.Context, sessionID string) (*session, error) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()

	if s, ok := o.sessions[sessionID]; ok {
		return s, nil
	}

	var seed []memory.Turn
	if o.deps.Store != nil {
		turns, err := o.deps.Store.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading session history: %w", err)
		}
		seed = turns
	}

	s := &session{mem: memory.New(o.config.MaxTurns, seed)}
	o.sessions[sessionID] = s
	return s, nil
}

// Answer runs the pipeline for one question and returns the answer. Every
// completed pipeline produces an answer, possibly degraded or the fixed
// no-evidence response. A cancelled or failed pipeline appends no turn to
// the session's memory.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, question string) (summarize.Answer, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.answer")
	defer span.End()
	start := time.Now()
	defer func() {
		turnDuration.Observe(time.Since(start).Seconds())
	}()

	// The raw question may carry identifying content; log only its length.
	o.logger.Debug("turn started",
		zap.String("session_id", sessionID),
		logging.RedactedString("question", question),
	)

	// Blocked questions get the category's fixed message and touch nothing
	// else: no expansion, no retrieval, no model call, no history.
	if d := o.deps.Gate.Decide(question); d.Blocked {
		span.SetAttributes(attribute.String("moderation.category", d.Category))
		turnsTotal.WithLabelValues(outcomeBlocked).Inc()
		return summarize.Answer{Text: d.Message}, nil
	}

	sess, err := o.getSession(ctx, sessionID)
	if err != nil {
		turnsTotal.WithLabelValues(outcomeErrored).Inc()
		return summarize.Answer{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	answer, outcome, err := o.runPipeline(ctx, span, sessionID, question, sess)
	turnsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summarize.Answer{}, err
	}
	span.SetStatus(codes.Ok, "")
	return answer, nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, span trace.Span, sessionID, question string, sess *session) (summarize.Answer, string, error) {
	r := newRun()

	// Expansion failures are fatal to the turn.
	if err := r.advance(StateExpanding); err != nil {
		return summarize.Answer{}, outcomeErrored, err
	}
	queries, err := o.deps.Expander.Expand(ctx, question)
	if err != nil {
		r.state = StateErrored
		return summarize.Answer{}, outcomeErrored, fmt.Errorf("expanding question: %w", err)
	}
	span.SetAttributes(attribute.Int("queries", len(queries)))

	anonQuestion := o.deps.Scrubber.Scrub(question)

	if err := r.advance(StateRetrieving); err != nil {
		return summarize.Answer{}, outcomeErrored, err
	}
	docs, fromCache := o.lookupCache(ctx, anonQuestion)
	if !fromCache {
		docs, err = o.deps.Retriever.Retrieve(ctx, queries)
		if err != nil && !errors.Is(err, literature.ErrNoEvidence) {
			r.state = StateErrored
			return summarize.Answer{}, outcomeErrored, fmt.Errorf("retrieving literature: %w", err)
		}
	}
	if ctx.Err() != nil {
		r.state = StateErrored
		return summarize.Answer{}, outcomeErrored, ctx.Err()
	}
	span.SetAttributes(
		attribute.Int("documents", len(docs)),
		attribute.Bool("cache_hit", fromCache),
	)

	if err := r.advance(StateAssembling); err != nil {
		return summarize.Answer{}, outcomeErrored, err
	}
	evidence := o.deps.Assembler.Assemble(anonQuestion, docs)
	if !fromCache {
		o.cacheExcerpts(ctx, evidence)
	}

	if err := r.advance(StateSummarizing); err != nil {
		return summarize.Answer{}, outcomeErrored, err
	}
	recent := sess.mem.Recent(o.config.RecentTurns)
	answer, err := o.deps.Summarizer.Summarize(ctx, anonQuestion, evidence, recent)
	outcome := outcomeCompleted
	switch {
	case err == nil:
		if evidence.Empty() {
			outcome = outcomeNoEvidence
		}
	case isSummarizationError(err):
		o.logger.Warn("summarization failed, returning degraded answer",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		answer = summarize.Degraded(evidence)
		outcome = outcomeDegraded
	default:
		r.state = StateErrored
		return summarize.Answer{}, outcomeErrored, err
	}
	if ctx.Err() != nil {
		r.state = StateErrored
		return summarize.Answer{}, outcomeErrored, ctx.Err()
	}

	if err := r.advance(StateCompleted); err != nil {
		return summarize.Answer{}, outcomeErrored, err
	}

	turn := memory.Turn{
		ID:        uuid.NewString(),
		Question:  anonQuestion,
		Answer:    answer.Text,
		Citations: answer.Citations,
		Timestamp: time.Now().UTC(),
	}
	sess.mem.Append(turn)
	o.flush(ctx, sessionID, sess)

	return answer, outcome, nil
}

// lookupCache consults the article cache for the anonymized question and
// converts hits back into documents for assembly. A miss or cache error
// falls through to live retrieval.
func (o *Orchestrator) lookupCache(ctx context.Context, question string) ([]literature.Document, bool) {
	if o.deps.Cache == nil {
		return nil, false
	}

	hits, err := o.deps.Cache.Search(ctx, question)
	if err != nil {
		o.logger.Warn("article cache lookup failed", zap.Error(err))
		return nil, false
	}
	if len(hits) == 0 {
		return nil, false
	}

	cacheHitsTotal.Inc()
	docs := make([]literature.Document, len(hits))
	for i, h := range hits {
		docs[i] = literature.Document{
			ID:       h.DocumentID,
			Abstract: h.Text,
			Score:    float64(h.Score),
		}
	}
	return docs, true
}

// cacheExcerpts stores the context's anonymized excerpts for future
// questions. Failures are logged, never fatal.
func (o *Orchestrator) cacheExcerpts(ctx context.Context, evidence assemble.EvidenceContext) {
	if o.deps.Cache == nil || evidence.Empty() {
		return
	}

	entries := make([]memstore.Entry, len(evidence.Excerpts))
	for i, ex := range evidence.Excerpts {
		entries[i] = memstore.Entry{
			ID:         ex.DocumentID,
			Text:       ex.Text,
			DocumentID: ex.DocumentID,
		}
	}
	if err := o.deps.Cache.Add(ctx, entries); err != nil {
		o.logger.Warn("caching excerpts failed", zap.Error(err))
	}
}

// flush persists the session history. A flush failure loses durability,
// not the answer, so it is logged and swallowed.
func (o *Orchestrator) flush(ctx context.Context, sessionID string, sess *session) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.Flush(ctx, sessionID, sess.mem.Snapshot()); err != nil {
		o.logger.Warn("flushing session history failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func isSummarizationError(err error) bool {
	var serr *summarize.SummarizationError
	return errors.As(err, &serr)
}
