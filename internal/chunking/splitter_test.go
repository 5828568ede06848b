package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraph(word string, words int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", words))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter()
	assert.Equal(t, []string{"Welcome aboard."}, s.Split("  Welcome aboard.  "))
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter()
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split(" \n\n \n"))
}

func TestSplitRespectsSize(t *testing.T) {
	text := strings.Join([]string{
		paragraph("alpha", 300),
		paragraph("bravo", 300),
		paragraph("charlie", 300),
	}, "\n\n")

	for _, tc := range []struct{ size, overlap int }{{1000, 150}, {1000, 200}, {200, 50}} {
		s := NewSplitter(WithChunkSize(tc.size), WithOverlap(tc.overlap))
		chunks := s.Split(text)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), tc.size)
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	}
}

func TestSplitOverlapsWindows(t *testing.T) {
	words := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		words = append(words, "w"+strings.Repeat("x", i%5))
	}
	text := strings.Join(words, " ")

	s := NewSplitter(WithChunkSize(200), WithOverlap(50))
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-10:]
		assert.Contains(t, chunks[i], strings.TrimSpace(prevTail), "chunk %d should repeat the end of chunk %d", i, i-1)
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	a := paragraph("policy", 100)
	b := paragraph("holiday", 100)
	s := NewSplitter(WithChunkSize(1000), WithOverlap(0))

	chunks := s.Split(a + "\n\n" + b)
	require.Len(t, chunks, 2)
	assert.Equal(t, a, chunks[0])
	assert.Equal(t, b, chunks[1])
}

func TestSplitUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 2500)
	s := NewSplitter(WithChunkSize(1000), WithOverlap(100))

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 1000)
	}
}

func TestOverlapClamped(t *testing.T) {
	s := NewSplitter(WithChunkSize(100), WithOverlap(100))
	assert.Equal(t, 25, s.Overlap())
}
