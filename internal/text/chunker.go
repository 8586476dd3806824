package text

import (
	"strings"
	"unicode/utf8"
)

// Split packs the whitespace-separated words of input into chunks of at most limit characters.
// Words are joined with single spaces. A word longer than limit on its own is cut into slices of
// exactly limit characters (the last slice may be shorter), after the pending chunk is flushed.
// Lengths are counted in runes. Empty input or a non-positive limit yields no chunks.
func Split(input string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	chunks := make([]string, 0)

	var (
		current       strings.Builder
		currentLength int
	)

	flush := func() {
		if currentLength == 0 {
			return
		}

		chunks = append(chunks, current.String())
		current.Reset()

		currentLength = 0
	}

	for _, word := range strings.Fields(input) {
		wordLength := utf8.RuneCountInString(word)

		if wordLength > limit {
			flush()

			chunks = append(chunks, splitWord(word, limit)...)

			continue
		}

		if currentLength == 0 {
			current.WriteString(word)

			currentLength = wordLength

			continue
		}

		if currentLength+1+wordLength <= limit {
			current.WriteByte(' ')
			current.WriteString(word)

			currentLength += 1 + wordLength

			continue
		}

		flush()
		current.WriteString(word)

		currentLength = wordLength
	}

	flush()

	return chunks
}

func splitWord(word string, limit int) []string {
	runes := []rune(word)
	slices := make([]string, 0, len(runes)/limit+1)

	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		slices = append(slices, string(runes[start:end]))
	}

	return slices
}
