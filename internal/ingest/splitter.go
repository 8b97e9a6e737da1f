package ingest

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var separators = []string{"\n\n", "\n", " "}

// SplitText cuts text into chunks of at most size runes, each starting overlap
// runes before the previous one ended. Cuts prefer paragraph, then line, then
// word boundaries found in the second half of the window.
func SplitText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	window := string(runes[floor:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			// i is a byte offset into window; convert to runes.
			cut := floor + len([]rune(window[:i])) + len([]rune(sep))
			if cut > start {
				return cut
			}
		}
	}
	return end
}
