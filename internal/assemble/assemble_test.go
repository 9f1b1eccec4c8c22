package assemble

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/evidenced/internal/anonymize"
	"github.com/fyrsmithlabs/evidenced/internal/literature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssembler(cfg Config) *Assembler {
	return New(anonymize.New(), cfg, nil)
}

func TestAssembleRespectsTokenBudget(t *testing.T) {
	long := strings.Repeat("metformin glycemic control in older adults ", 40)
	docs := []literature.Document{
		{ID: "PMC1", Abstract: long, Score: 1.0},
		{ID: "PMC2", Abstract: long + "second", Score: 0.9},
		{ID: "PMC3", Abstract: long + "third", Score: 0.8},
	}

	budgets := []int{50, 200, 500, 5000}
	for _, budget := range budgets {
		ec := newAssembler(Config{TokenBudget: budget, MaxSpanTokens: 400}).
			Assemble("metformin elderly", docs)
		assert.LessOrEqual(t, ec.TokenCount, budget, "budget %d", budget)
	}
}

func TestAssembleEmptyInputIsValid(t *testing.T) {
	ec := newAssembler(DefaultConfig()).Assemble("anything", nil)
	assert.True(t, ec.Empty())
	assert.Zero(t, ec.TokenCount)
	assert.Empty(t, ec.DocumentIDs())
}

func TestAssemblePrefersAbstractThenSections(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC1", Abstract: "the abstract text", Score: 1.0},
		{
			ID:    "PMC2",
			Score: 0.9,
			Sections: []literature.Section{
				{Name: "introduction", Text: "the introduction text"},
				{Name: "discussion", Text: "the discussion text"},
			},
		},
		{ID: "PMC3", Title: "title only record", Score: 0.8},
	}

	ec := newAssembler(DefaultConfig()).Assemble("q", docs)
	require.Len(t, ec.Excerpts, 3)
	assert.Equal(t, "the abstract text", ec.Excerpts[0].Text)
	assert.Equal(t, "the introduction text", ec.Excerpts[1].Text)
	assert.Equal(t, "title only record", ec.Excerpts[2].Text)
}

func TestAssembleAnonymizesExcerpts(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC1", Abstract: "case of Dr. John Smith, contact john@clinic.org", Score: 1.0},
	}

	ec := newAssembler(DefaultConfig()).Assemble("case report", docs)
	require.Len(t, ec.Excerpts, 1)
	assert.NotContains(t, ec.Excerpts[0].Text, "John Smith")
	assert.NotContains(t, ec.Excerpts[0].Text, "john@clinic.org")
	assert.Contains(t, ec.Excerpts[0].Text, "[REDACTED_NAME]")
}

func TestAssembleDropsDuplicateSpans(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC1", Abstract: "identical abstract body", Score: 1.0},
		{ID: "PMC2", Abstract: "identical abstract body", Score: 0.9},
	}

	ec := newAssembler(DefaultConfig()).Assemble("q", docs)
	assert.Len(t, ec.Excerpts, 1)
}

func TestAssembleTermOverlapLiftsRelevantDocument(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC_high_rank", Abstract: "unrelated topic entirely different subject", Score: 0.95},
		{ID: "PMC_relevant", Abstract: "metformin safety profile aged adults", Score: 0.5},
	}

	ec := newAssembler(DefaultConfig()).Assemble("metformin safety aged", docs)
	require.Len(t, ec.Excerpts, 2)
	assert.Equal(t, "PMC_relevant", ec.Excerpts[0].DocumentID)
}

func TestAssembleStableOnEqualScores(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC_a", Abstract: "alpha text body", Score: 0.7},
		{ID: "PMC_b", Abstract: "beta text body", Score: 0.7},
	}

	ec := newAssembler(DefaultConfig()).Assemble("zzz", docs)
	require.Len(t, ec.Excerpts, 2)
	assert.Equal(t, "PMC_a", ec.Excerpts[0].DocumentID)
	assert.Equal(t, "PMC_b", ec.Excerpts[1].DocumentID)
}

func TestAssembleCapsSpanLength(t *testing.T) {
	docs := []literature.Document{
		{ID: "PMC1", Abstract: strings.Repeat("word ", 2000), Score: 1.0},
	}

	ec := newAssembler(Config{TokenBudget: 10000, MaxSpanTokens: 100}).Assemble("q", docs)
	require.Len(t, ec.Excerpts, 1)
	assert.LessOrEqual(t, ec.Excerpts[0].Tokens, 100)
}

func TestDocumentIDsUniqueOrdered(t *testing.T) {
	ec := EvidenceContext{Excerpts: []Excerpt{
		{DocumentID: "PMC2"},
		{DocumentID: "PMC1"},
		{DocumentID: "PMC2"},
	}}
	assert.Equal(t, []string{"PMC2", "PMC1"}, ec.DocumentIDs())
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestTruncateToTokensCutsAtWordBoundary(t *testing.T) {
	text := strings.Repeat("evidence ", 50)
	out := truncateToTokens(text, 10)
	assert.LessOrEqual(t, len(out), 40)
	assert.False(t, strings.HasSuffix(out, " "))
	assert.NotContains(t, out, "eviden evidence", "no mid-word cut")
}
