package expand

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Completer is the minimal language-model surface the expander needs.
// Satisfied by the summarize package's LLM clients.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const llmPromptTemplate = `You are a biomedical research assistant. A user asks a health-related question, and we want to search open-access biomedical literature using focused search queries. Generate 3 distinct and precise search phrases that could return relevant articles.

User question: %QUESTION%

Search queries:`

// LLM asks the model for focused search phrases. Any model failure or
// unusable response degrades to the deterministic heuristic, so expansion
// only fails on invalid input.
type LLM struct {
	client    Completer
	heuristic *Heuristic
	logger    *zap.Logger
}

// NewLLM creates an LLM-backed expander.
func NewLLM(client Completer, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{
		client:    client,
		heuristic: NewHeuristic(),
		logger:    logger,
	}
}

// Expand queries the model, parses its list output, and always includes the
// sanitized question as the final fallback query.
func (l *LLM) Expand(ctx context.Context, question string) ([]string, error) {
	cleaned, err := validate(question)
	if err != nil {
		return nil, err
	}

	prompt := strings.Replace(llmPromptTemplate, "%QUESTION%", cleaned, 1)
	raw, err := l.client.Complete(ctx, prompt)
	if err != nil {
		l.logger.Warn("llm expansion failed, using heuristic", zap.Error(err))
		return l.heuristic.Expand(ctx, cleaned)
	}

	queries := parseQueries(raw)
	queries = append(queries, cleaned)
	queries = dedupe(queries)
	if len(queries) > MaxQueries {
		queries = queries[:MaxQueries]
	}
	for i, q := range queries {
		queries[i] = truncate(q)
	}
	return queries, nil
}

// parseQueries extracts search phrases from a numbered or bulleted model
// response, stripping quotes and markdown emphasis.
func parseQueries(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.ReplaceAll(line, `"`, "")
		line = strings.ReplaceAll(line, "**", "")
		line = Sanitize(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
