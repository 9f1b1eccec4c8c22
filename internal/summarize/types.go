// Package summarize turns an assembled evidence context into a cited,
// plain-language answer using a language-model provider.
package summarize

import (
	"context"
	"errors"
	"fmt"
)

// NoEvidenceText is the fixed answer returned when the evidence context is
// empty. It is produced without a model call.
const NoEvidenceText = "I could not find open-access research evidence for this question. " +
	"Please consult a qualified healthcare professional for advice."

// DegradedText replaces the narrative when summarization fails after
// retries. Citations are still returned so the caller can inspect the
// underlying evidence.
const DegradedText = "A summary could not be generated for this question. " +
	"The sources below were retrieved and may contain relevant evidence."

// Answer is the final pipeline output. Citations only ever reference
// documents that were present in the evidence context.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
}

// Completer is the minimal language-model surface the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SummarizationError indicates the model could not produce a narrative
// after retries. Callers fall back to a degraded answer.
type SummarizationError struct {
	Err error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error {
	return e.Err
}

// retryableError marks transient HTTP failures worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
