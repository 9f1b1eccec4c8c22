// Package expand turns a free-text health question into literature search
// queries.
//
// Two expanders are provided behind one interface: a deterministic
// heuristic expander that extracts domain terms and emits synonym variants,
// and an LLM-backed expander that asks the model for focused search phrases
// and falls back to the heuristic on any failure. Both guarantee at least
// one query for any valid question.
package expand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxQuestionLen bounds accepted question length in runes.
	MaxQuestionLen = 500

	// MaxQueryLen bounds each produced search query in runes.
	MaxQueryLen = 300

	// MaxQueries bounds how many queries one question expands into.
	MaxQueries = 5
)

// Expansion failures are fatal to the turn; everything else degrades to the
// original question as a single query.
var (
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrQuestionTooLong = fmt.Errorf("question exceeds %d characters", MaxQuestionLen)
)

// Expander produces ordered, distinct search queries for a question.
type Expander interface {
	Expand(ctx context.Context, question string) ([]string, error)
}

// Sanitize normalizes a question: control characters removed, whitespace
// collapsed, surrounding space trimmed.
func Sanitize(question string) string {
	var b strings.Builder
	b.Grow(len(question))
	for _, r := range question {
		if unicode.IsControl(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// validate checks the raw question against the input contract.
func validate(question string) (string, error) {
	cleaned := Sanitize(question)
	if cleaned == "" {
		return "", ErrEmptyQuestion
	}
	if len([]rune(cleaned)) > MaxQuestionLen {
		return "", ErrQuestionTooLong
	}
	return cleaned, nil
}

// truncate bounds a query to MaxQueryLen runes.
func truncate(q string) string {
	runes := []rune(q)
	if len(runes) <= MaxQueryLen {
		return q
	}
	return strings.TrimSpace(string(runes[:MaxQueryLen]))
}

// dedupe drops repeated queries, preserving first-seen order.
func dedupe(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}
