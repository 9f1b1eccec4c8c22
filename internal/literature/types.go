// Package literature retrieves open-access biomedical articles from the
// Europe PMC REST API.
//
// The Client wraps the /search and /{pmcid}/fullTextXML endpoints behind a
// shared rate limiter. The Retriever fans a set of expanded queries across
// the client with retry and backoff, merging results into a deduplicated,
// relevance-ordered document list.
package literature

import (
	"errors"
	"fmt"
)

// Document is one retrieved literature record. Documents are never mutated
// after retrieval.
type Document struct {
	ID          string    `json:"id"` // PMC identifier, e.g. PMC1234567
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract,omitempty"`
	Sections    []Section `json:"sections,omitempty"`
	OpenAccess  bool      `json:"open_access"`
	PublishedAt string    `json:"published_at,omitempty"` // YYYY-MM-DD
	Score       float64   `json:"score"`                  // rank-derived relevance, higher is better
}

// Section is a named block of full text, ordered as returned by the source.
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// SearchOptions configures one search call.
type SearchOptions struct {
	// Limit caps results for this query. Zero means one page.
	Limit int

	// PageSize is results per request.
	PageSize int

	// OpenAccessOnly restricts results to open-access records.
	OpenAccessOnly bool
}

// ErrNoEvidence is returned when every query fails; an empty result from
// successful queries is not an error.
var ErrNoEvidence = errors.New("no evidence retrieved")

// RetrievalError reports a query that was skipped after retry exhaustion.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for query %q: %v", e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// retryableError marks transient failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// isRetryable reports whether the error is a transient failure.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
