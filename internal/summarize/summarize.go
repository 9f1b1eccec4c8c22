package summarize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/evidenced/internal/assemble"
	"github.com/fyrsmithlabs/evidenced/internal/memory"
	"go.uber.org/zap"
)

// maxAttempts bounds summarizer-level calls: one initial attempt plus one
// retry. The client retries transient HTTP failures separately.
const maxAttempts = 2

const promptHeader = `You are a careful biomedical research assistant. Answer the user's question using ONLY the evidence excerpts below, each labelled with its PMC identifier. Cite the identifiers you rely on inline, like [PMC1234567]. If the evidence is inconclusive or conflicting, say so plainly. Do not give medical advice; describe what the research reports.`

// Summarizer produces cited answers from an evidence context.
type Summarizer struct {
	client Completer
	logger *zap.Logger
}

// New creates a Summarizer backed by the given model client.
func New(client Completer, logger *zap.Logger) (*Summarizer, error) {
	if client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{client: client, logger: logger}, nil
}

// Summarize generates an answer for the question from the evidence context
// and recent conversation turns.
//
// An empty context returns the fixed no-evidence answer without calling the
// model. A model failure after one retry returns a *SummarizationError;
// callers should fall back to Degraded.
func (s *Summarizer) Summarize(ctx context.Context, question string, evidence assemble.EvidenceContext, recent []memory.Turn) (Answer, error) {
	if evidence.Empty() {
		return Answer{Text: NoEvidenceText}, nil
	}

	prompt := buildPrompt(question, evidence, recent)

	var narrative string
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := s.client.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(text) != "" {
			narrative = strings.TrimSpace(text)
			break
		}
		if err == nil {
			err = fmt.Errorf("model returned an empty narrative")
		}
		lastErr = err
		s.logger.Warn("summarization attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
	}
	if narrative == "" {
		return Answer{}, &SummarizationError{Err: lastErr}
	}

	return Answer{
		Text:      narrative,
		Citations: filterCitations(narrative, evidence),
	}, nil
}

// Degraded builds the fallback answer for a failed summarization: the
// fixed notice plus every document the evidence context drew from.
func Degraded(evidence assemble.EvidenceContext) Answer {
	return Answer{
		Text:      DegradedText,
		Citations: evidence.DocumentIDs(),
		Degraded:  true,
	}
}

// buildPrompt binds the question, labelled excerpts, and recent turns into
// a single model prompt.
func buildPrompt(question string, evidence assemble.EvidenceContext, recent []memory.Turn) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\n")

	if len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Question, turn.Answer)
		}
		b.WriteString("\n")
	}

	b.WriteString("Evidence excerpts:\n")
	for _, ex := range evidence.Excerpts {
		fmt.Fprintf(&b, "[%s] %s\n\n", ex.DocumentID, ex.Text)
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

// filterCitations returns the context document IDs the narrative mentions,
// in context order. Identifiers match on word boundaries so PMC123 is not
// credited by a narrative citing only PMC1234. A narrative that names none
// cites every document the model was shown. Either way citations stay a
// subset of the context.
func filterCitations(narrative string, evidence assemble.EvidenceContext) []string {
	ids := evidence.DocumentIDs()
	cited := make([]string, 0, len(ids))
	for _, id := range ids {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(id) + `\b`)
		if re.MatchString(narrative) {
			cited = append(cited, id)
		}
	}
	if len(cited) == 0 {
		return ids
	}
	return cited
}
