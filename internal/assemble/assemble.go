// Package assemble builds the token-bounded evidence context handed to the
// summarizer.
//
// Documents are ranked by a blend of the retrieval score and query term
// overlap, then reduced to one anonymized excerpt each until the token
// budget is exhausted. An empty context is a valid outcome meaning "no
// evidence", not an error.
package assemble

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/evidenced/internal/literature"
	"go.uber.org/zap"
)

// Excerpt is one scored text span tied to its source document.
type Excerpt struct {
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Tokens     int     `json:"tokens"`
}

// EvidenceContext is the ordered excerpt sequence within the token budget.
type EvidenceContext struct {
	Excerpts   []Excerpt `json:"excerpts"`
	TokenCount int       `json:"token_count"`
}

// Empty reports whether the context holds no evidence.
func (ec EvidenceContext) Empty() bool {
	return len(ec.Excerpts) == 0
}

// DocumentIDs returns the unique source identifiers in excerpt order.
func (ec EvidenceContext) DocumentIDs() []string {
	seen := make(map[string]bool, len(ec.Excerpts))
	ids := make([]string, 0, len(ec.Excerpts))
	for _, ex := range ec.Excerpts {
		if !seen[ex.DocumentID] {
			seen[ex.DocumentID] = true
			ids = append(ids, ex.DocumentID)
		}
	}
	return ids
}

// Scrubber removes identifying content from excerpt text before it enters
// the context. Satisfied by anonymize.Anonymizer.
type Scrubber interface {
	Scrub(text string) string
}

// Config bounds the assembled context.
type Config struct {
	// TokenBudget caps the context's total estimated tokens.
	TokenBudget int

	// MaxSpanTokens caps each individual excerpt.
	MaxSpanTokens int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TokenBudget:   3000,
		MaxSpanTokens: 600,
	}
}

// Assembler turns retrieved documents into an EvidenceContext.
type Assembler struct {
	scrubber Scrubber
	config   Config
	logger   *zap.Logger
}

// New creates an Assembler. The scrubber is required: excerpt text must be
// anonymized before entering the context.
func New(scrubber Scrubber, cfg Config, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultConfig().TokenBudget
	}
	if cfg.MaxSpanTokens <= 0 {
		cfg.MaxSpanTokens = DefaultConfig().MaxSpanTokens
	}
	return &Assembler{scrubber: scrubber, config: cfg, logger: logger}
}

// Assemble ranks documents, extracts and anonymizes the best span of each,
// and appends excerpts while the budget holds. Ranking blends the source
// relevance score with term overlap against the question; ties keep
// retrieval order (the sort is stable). Identical spans are dropped.
func (a *Assembler) Assemble(question string, docs []literature.Document) EvidenceContext {
	ranked := rankDocuments(question, docs)

	ec := EvidenceContext{}
	seenSpans := make(map[string]bool)

	for _, rd := range ranked {
		span := extractSpan(rd.doc)
		if span == "" {
			continue
		}

		span = truncateToTokens(span, a.config.MaxSpanTokens)
		span = a.scrubber.Scrub(span)
		if span == "" || seenSpans[span] {
			continue
		}

		tokens := EstimateTokens(span)
		if ec.TokenCount+tokens > a.config.TokenBudget {
			break
		}

		seenSpans[span] = true
		ec.Excerpts = append(ec.Excerpts, Excerpt{
			DocumentID: rd.doc.ID,
			Text:       span,
			Score:      rd.combined,
			Tokens:     tokens,
		})
		ec.TokenCount += tokens
	}

	a.logger.Debug("evidence context assembled",
		zap.Int("documents_in", len(docs)),
		zap.Int("excerpts", len(ec.Excerpts)),
		zap.Int("tokens", ec.TokenCount),
	)
	return ec
}

type rankedDoc struct {
	doc      literature.Document
	combined float64
}

// rankDocuments blends retrieval score (50%) with query term overlap (50%)
// and sorts descending, stable on ties.
func rankDocuments(question string, docs []literature.Document) []rankedDoc {
	queryTerms := overlapTerms(question)

	ranked := make([]rankedDoc, len(docs))
	for i, doc := range docs {
		overlap := termOverlap(queryTerms, overlapTerms(doc.Title+" "+doc.Abstract))
		ranked[i] = rankedDoc{
			doc:      doc,
			combined: 0.5*doc.Score + 0.5*overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].combined > ranked[j].combined
	})
	return ranked
}

// extractSpan picks the best available text: abstract first, then full-text
// sections in order, then the title as a last resort.
func extractSpan(doc literature.Document) string {
	if s := strings.TrimSpace(doc.Abstract); s != "" {
		return s
	}
	for _, sec := range doc.Sections {
		if s := strings.TrimSpace(sec.Text); s != "" {
			return s
		}
	}
	return strings.TrimSpace(doc.Title)
}

// termOverlap returns the fraction of query terms present in the document
// terms, 0.0 to 1.0.
func termOverlap(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]bool, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = true
	}
	matched := 0
	counted := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		if docSet[t] && !counted[t] {
			matched++
			counted[t] = true
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// overlapTerms tokenizes text into lowercase terms of three or more
// characters for overlap scoring.
func overlapTerms(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	terms := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}
