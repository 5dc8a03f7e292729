package voice

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the soft limit, in characters, of one synthesized chunk.
const DefaultChunkSize = 150

// Sentences splits text after runs of '.', '!' or '?' that are followed by
// whitespace or the end of the text. Trailing text without terminal
// punctuation is returned as a final sentence.
func Sentences(text string) []string {
	runes := []rune(text)
	var sentences []string

	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		end := i
		for end+1 < len(runes) && isTerminal(runes[end+1]) {
			end++
		}
		i = end

		// "3.5" or "e.g.x" is not a boundary
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			continue
		}

		if s := strings.TrimSpace(string(runes[start : end+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = end + 1
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// Chunk groups consecutive sentences into chunks of at most size characters.
// A sentence is never split, so a sentence longer than size becomes a chunk
// of its own.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []string
	current := ""
	for _, s := range Sentences(text) {
		if current == "" {
			current = s
			continue
		}
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(s) > size {
			chunks = append(chunks, current)
			current = s
			continue
		}
		current += " " + s
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
