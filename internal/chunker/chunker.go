package chunker

import (
	"regexp"
	"strings"
)

// Config controls chunk size, in characters.
type Config struct {
	MaxChars int // Upper bound on chunk length.
	Overlap  int // Characters repeated at the start of the next chunk.
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{MaxChars: 900, Overlap: 120}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxChars <= 0 {
		c.MaxChars = def.MaxChars
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	return c
}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean normalizes line endings and whitespace runs and trims the result.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ChunkText splits text into overlapping chunks of at most maxChars runes.
// A chunk that does not reach the end of the text is cut at its last
// paragraph break when that break lies past half of maxChars.
func ChunkText(text string, maxChars, overlap int) []string {
	cfg := Config{MaxChars: maxChars, Overlap: overlap}.withDefaults()
	r := []rune(Clean(text))
	n := len(r)

	var chunks []string
	start := 0
	for start < n {
		end := min(n, start+cfg.MaxChars)
		if end < n {
			if cut := lastParagraphBreak(r[start:end]); cut >= 0 && float64(cut) > float64(cfg.MaxChars)*0.5 {
				end = start + cut
			}
		}
		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		next := max(end-cfg.Overlap, 0)
		if next <= start {
			// Overlap at least as large as the step would never advance.
			next = end
		}
		start = next
	}
	return chunks
}

func lastParagraphBreak(r []rune) int {
	for i := len(r) - 2; i >= 0; i-- {
		if r[i] == '\n' && r[i+1] == '\n' {
			return i
		}
	}
	return -1
}
