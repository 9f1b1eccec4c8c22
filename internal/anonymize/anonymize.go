// Package anonymize strips identifying content from free text before it
// reaches the language model or persistent storage.
//
// Scrubbing is a pure function over an ordered rule table: each rule maps a
// pattern to a fixed placeholder token. Unmatched text passes through
// unchanged and scrubbing never fails, so callers need no error path.
package anonymize

import "regexp"

// Rule replaces every match of Pattern with Placeholder.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Placeholder string
}

// Anonymizer applies an ordered list of redaction rules.
type Anonymizer struct {
	rules []Rule
}

// New creates an Anonymizer with the given rules, applied in order.
// With no rules it uses DefaultRules.
func New(rules ...Rule) *Anonymizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Anonymizer{rules: rules}
}

// DefaultRules returns the built-in redaction rules, most specific first.
// Placeholders contain no lowercase letters, digits, or separators that any
// rule can match, which makes scrubbing idempotent.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "record_number",
			Pattern:     regexp.MustCompile(`(?i)\b(?:MRN|SSN|Patient ID|Record No)[:#\s]*[A-Z0-9-]{4,}`),
			Placeholder: "[REDACTED_ID]",
		},
		{
			Name:        "date_of_birth",
			Pattern:     regexp.MustCompile(`(?i)\b(?:DOB|Date of Birth)[:\s]*\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`),
			Placeholder: "[REDACTED_DOB]",
		},
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Placeholder: "[REDACTED_EMAIL]",
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`\+?\d{1,3}[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			Placeholder: "[REDACTED_PHONE]",
		},
		{
			Name:        "street_address",
			Pattern:     regexp.MustCompile(`(?i)\b\d{1,5}\s[A-Za-z0-9.\s]{1,30}\b(?:Street|St|Road|Rd|Avenue|Ave|Boulevard|Blvd|Lane|Ln|Way|Drive|Dr)\b`),
			Placeholder: "[REDACTED_ADDRESS]",
		},
		{
			Name:        "honorific_name",
			Pattern:     regexp.MustCompile(`\b(?:Dr|Mr|Mrs|Ms|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`),
			Placeholder: "[REDACTED_NAME]",
		},
	}
}

// Scrub replaces every recognized identifying pattern in text with its
// placeholder token.
func (a *Anonymizer) Scrub(text string) string {
	for _, rule := range a.rules {
		text = rule.Pattern.ReplaceAllString(text, rule.Placeholder)
	}
	return text
}

// ScrubAll scrubs a batch of texts.
func (a *Anonymizer) ScrubAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = a.Scrub(t)
	}
	return out
}
