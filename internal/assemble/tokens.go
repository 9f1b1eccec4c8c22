package assemble

import "strings"

// EstimateTokens approximates the token cost of text for budget purposes.
// English prose averages roughly four characters per token, which is close
// enough for a conservative budget check without pulling in a tokenizer.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// truncateToTokens bounds text to roughly maxTokens, cutting at the last
// word boundary inside the limit.
func truncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
