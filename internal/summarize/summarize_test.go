package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/evidenced/internal/assemble"
	"github.com/fyrsmithlabs/evidenced/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func evidenceWith(ids ...string) assemble.EvidenceContext {
	ec := assemble.EvidenceContext{}
	for _, id := range ids {
		ec.Excerpts = append(ec.Excerpts, assemble.Excerpt{
			DocumentID: id,
			Text:       "Findings about " + id + ".",
			Tokens:     10,
		})
		ec.TokenCount += 10
	}
	return ec
}

func TestEmptyContextSkipsModel(t *testing.T) {
	client := &fakeCompleter{}
	s, err := New(client, nil)
	require.NoError(t, err)

	answer, err := s.Summarize(context.Background(), "any question", assemble.EvidenceContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, NoEvidenceText, answer.Text)
	assert.Empty(t, answer.Citations)
	assert.False(t, answer.Degraded)
	assert.Empty(t, client.prompts, "no model call for empty context")
}

func TestCitationsFilteredToMentionedDocuments(t *testing.T) {
	client := &fakeCompleter{responses: []string{
		"Studies [PMC111] and [PMC333] report a modest effect.",
	}}
	s, err := New(client, nil)
	require.NoError(t, err)

	answer, err := s.Summarize(context.Background(), "q", evidenceWith("PMC111", "PMC222", "PMC333"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PMC111", "PMC333"}, answer.Citations)
}

func TestCitationsAlwaysSubsetOfContext(t *testing.T) {
	// Model cites an identifier the context never contained.
	client := &fakeCompleter{responses: []string{
		"According to [PMC999] this is settled.",
	}}
	s, err := New(client, nil)
	require.NoError(t, err)

	evidence := evidenceWith("PMC111", "PMC222")
	answer, err := s.Summarize(context.Background(), "q", evidence, nil)
	require.NoError(t, err)

	for _, c := range answer.Citations {
		assert.Contains(t, evidence.DocumentIDs(), c)
	}
}

func TestCitationMatchRespectsIdentifierBoundaries(t *testing.T) {
	// PMC123 is a prefix of PMC1234; citing the longer one must not
	// credit the shorter.
	client := &fakeCompleter{responses: []string{
		"Only [PMC1234] supports this.",
	}}
	s, err := New(client, nil)
	require.NoError(t, err)

	answer, err := s.Summarize(context.Background(), "q", evidenceWith("PMC123", "PMC1234"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PMC1234"}, answer.Citations)
}

func TestNoMentionedCitationsFallsBackToAll(t *testing.T) {
	client := &fakeCompleter{responses: []string{"The evidence is mixed."}}
	s, err := New(client, nil)
	require.NoError(t, err)

	answer, err := s.Summarize(context.Background(), "q", evidenceWith("PMC1", "PMC2"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PMC1", "PMC2"}, answer.Citations)
}

func TestRetryOnceThenSummarizationError(t *testing.T) {
	client := &fakeCompleter{errs: []error{
		errors.New("model down"),
		errors.New("still down"),
	}}
	s, err := New(client, nil)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "q", evidenceWith("PMC1"), nil)
	var serr *SummarizationError
	require.ErrorAs(t, err, &serr)
	assert.Len(t, client.prompts, 2, "one initial attempt plus one retry")
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	client := &fakeCompleter{
		errs:      []error{errors.New("blip"), nil},
		responses: []string{"", "Recovered narrative citing PMC1."},
	}
	s, err := New(client, nil)
	require.NoError(t, err)

	answer, err := s.Summarize(context.Background(), "q", evidenceWith("PMC1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Recovered narrative citing PMC1.", answer.Text)
	assert.Equal(t, []string{"PMC1"}, answer.Citations)
}

func TestEmptyNarrativeTreatedAsFailure(t *testing.T) {
	client := &fakeCompleter{responses: []string{"   ", "\n"}}
	s, err := New(client, nil)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), "q", evidenceWith("PMC1"), nil)
	var serr *SummarizationError
	assert.ErrorAs(t, err, &serr)
}

func TestPromptIncludesExcerptsAndHistory(t *testing.T) {
	client := &fakeCompleter{responses: []string{"ok"}}
	s, err := New(client, nil)
	require.NoError(t, err)

	recent := []memory.Turn{
		{Question: "earlier question", Answer: "earlier answer"},
	}
	_, err = s.Summarize(context.Background(), "does aspirin help?", evidenceWith("PMC42"), recent)
	require.NoError(t, err)

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "[PMC42]")
	assert.Contains(t, prompt, "Findings about PMC42.")
	assert.Contains(t, prompt, "earlier question")
	assert.Contains(t, prompt, "earlier answer")
	assert.Contains(t, prompt, "does aspirin help?")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestDegradedAnswerKeepsCitations(t *testing.T) {
	answer := Degraded(evidenceWith("PMC1", "PMC2"))
	assert.Equal(t, DegradedText, answer.Text)
	assert.Equal(t, []string{"PMC1", "PMC2"}, answer.Citations)
	assert.True(t, answer.Degraded)
}
