package drugevents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	var searches []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		searches = append(searches, q.Get("search"))

		if q.Get("count") == "patient.reaction.reactionmeddrapt.exact" {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"term": "NAUSEA", "count": 120},
					{"term": "HEADACHE", "count": 80},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"results": map[string]any{"total": 345}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, nil)

	report, err := client.Summarize(context.Background(), "ibuprofen", "20240101", "20241231")
	require.NoError(t, err)
	assert.Equal(t, 345, report.Total)
	require.Len(t, report.TopReactions, 2)
	assert.Equal(t, Reaction{Term: "NAUSEA", Count: 120}, report.TopReactions[0])

	require.Len(t, searches, 2)
	assert.Contains(t, searches[0], `patient.drug.medicinalproduct:"ibuprofen"`)
	assert.Contains(t, searches[0], "receivedate:[20240101 TO 20241231]")
}

func TestZeroMatches404IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, nil)

	report, err := client.Summarize(context.Background(), "nosuchdrug", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.TopReactions)
}

func TestZeroTotalSkipsReactionQuery(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"results": map[string]any{"total": 0}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, nil)

	report, err := client.Summarize(context.Background(), "obscuredrug", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 1, calls)
}

func TestServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, nil)

	_, err := client.Summarize(context.Background(), "ibuprofen", "", "")
	assert.Error(t, err)
}

func TestEmptyDrugRejected(t *testing.T) {
	client := NewClient("http://unused", time.Second, nil)

	_, err := client.Summarize(context.Background(), "  ", "", "")
	assert.Error(t, err)
}

func TestDateRangeClause(t *testing.T) {
	assert.Empty(t, dateRangeClause("", ""))
	assert.Equal(t, "receivedate:[20230101 TO 20230601]", dateRangeClause("20230101", "20230601"))
	assert.Contains(t, dateRangeClause("", "20230601"), "receivedate:[19000101 TO 20230601]")

	openEnded := dateRangeClause("20230101", "")
	assert.Contains(t, openEnded, "receivedate:[20230101 TO ")
}
