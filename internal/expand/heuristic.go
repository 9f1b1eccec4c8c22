package expand

import (
	"context"
	"strings"
)

// phraseSynonyms maps lay phrases to literature vocabulary. Applied on the
// lowercased question before term extraction, longest phrase first.
var phraseSynonyms = []struct{ from, to string }{
	{"heart attack", "myocardial infarction"},
	{"high blood pressure", "hypertension"},
	{"low blood sugar", "hypoglycemia"},
	{"high blood sugar", "hyperglycemia"},
	{"blood thinner", "anticoagulant"},
	{"kidney failure", "renal failure"},
	{"stroke risk", "cerebrovascular risk"},
	{"side effects", "adverse effects"},
	{"elderly", "aged"},
	{"children", "pediatric"},
	{"pregnant", "pregnancy"},
	{"safe", "safety"},
	{"cancer", "neoplasm"},
}

// queryStopwords are dropped during term extraction. The set extends the
// usual English stopwords with question scaffolding that adds no recall.
var queryStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "i": true,
	"you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "my": true, "me": true, "about": true,
	"take": true, "taking": true, "patient": true, "patients": true,
}

// Heuristic is a deterministic Expander: identical input and rule tables
// always produce identical queries.
type Heuristic struct{}

// NewHeuristic creates the rule-based expander.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Expand produces up to MaxQueries queries: the sanitized question, a
// keyword form, and a synonym-broadened keyword form.
func (h *Heuristic) Expand(_ context.Context, question string) ([]string, error) {
	cleaned, err := validate(question)
	if err != nil {
		return nil, err
	}

	terms := extractTerms(cleaned)
	broadened := extractTerms(applySynonyms(cleaned))

	candidates := []string{
		cleaned,
		strings.Join(terms, " "),
		strings.Join(broadened, " "),
	}

	queries := dedupe(candidates)
	if len(queries) > MaxQueries {
		queries = queries[:MaxQueries]
	}
	for i, q := range queries {
		queries[i] = truncate(q)
	}
	return queries, nil
}

// applySynonyms rewrites lay phrases into literature vocabulary.
func applySynonyms(s string) string {
	lower := strings.ToLower(s)
	for _, syn := range phraseSynonyms {
		lower = strings.ReplaceAll(lower, syn.from, syn.to)
	}
	return lower
}

// extractTerms tokenizes and keeps domain-bearing terms in order.
func extractTerms(s string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
	})

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || queryStopwords[tok] {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}
