package voice

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	text := "Hello there! Is this oak? It costs 3.5 pounds... Bargain"

	assert.Equal(t, []string{
		"Hello there!",
		"Is this oak?",
		"It costs 3.5 pounds...",
		"Bargain",
	}, Sentences(text))
}

func TestSentencesEmpty(t *testing.T) {
	assert.Empty(t, Sentences(""))
	assert.Empty(t, Sentences("   \n "))
}

func TestChunkShortSentencesStayUnderLimit(t *testing.T) {
	sentence := "This lamp would look great by the window."
	var parts []string
	for i := 0; i < 10; i++ {
		parts = append(parts, sentence)
	}
	text := strings.Join(parts, " ")
	require.GreaterOrEqual(t, utf8.RuneCountInString(text), 400)

	chunks := Chunk(text, DefaultChunkSize)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize, c)
		assert.True(t, strings.HasSuffix(c, "."), "chunk ends mid-sentence: %q", c)
	}
	assert.Equal(t, text, strings.Join(chunks, " "))
}

func TestChunkKeepsOversizedSentenceWhole(t *testing.T) {
	long := strings.Repeat("very ", 40) + "long sentence."
	require.Greater(t, utf8.RuneCountInString(long), DefaultChunkSize)

	text := "Short one. " + long + " Another short one."
	chunks := Chunk(text, DefaultChunkSize)

	assert.Equal(t, []string{"Short one.", long, "Another short one."}, chunks)
}

func TestChunkGreedyAccumulation(t *testing.T) {
	// 10 + 1 + 10 = 21 fits in 25, the third sentence does not
	text := "Aaaaaaaaa. Bbbbbbbbb. Ccccccccc."

	assert.Equal(t, []string{"Aaaaaaaaa. Bbbbbbbbb.", "Ccccccccc."}, Chunk(text, 25))
}

func TestChunkDefaultsSize(t *testing.T) {
	assert.Equal(t, Chunk("One. Two.", DefaultChunkSize), Chunk("One. Two.", 0))
}

func TestChunkCountsCharactersNotBytes(t *testing.T) {
	// each sentence is 5 runes but 10 bytes
	text := "éééé. éééé."

	assert.Equal(t, []string{"éééé. éééé."}, Chunk(text, 11))
}
