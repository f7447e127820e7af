package chunker

import "strings"

// EstimateTokens approximates the token count of text at ~1.33 tokens per
// whitespace-separated word. Any non-empty text counts as at least one token.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(int(float64(words)*1.33), 1)
}

// TotalTokens sums EstimateTokens over chunks.
func TotalTokens(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += EstimateTokens(c.Text)
	}
	return total
}
