package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedMeta = Metadata{
	SourceURL:   "https://docs.example.com/handbook",
	Title:       "Employee Handbook",
	ExtractedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := "Home\nWelcome   to the team!\n\n\n\nHome\nPress Ctrl+S to save (S).\nHome\n"
	nz := New()

	first := nz.Normalize(raw, fixedMeta)
	second := nz.Normalize(raw, fixedMeta)
	assert.Equal(t, first.Text, second.Text)
}

func TestNormalizeHeader(t *testing.T) {
	doc := New().Normalize("Our vacation policy grants 25 days per year.", fixedMeta)

	require.True(t, strings.HasPrefix(doc.Text, "# Employee Handbook\n\n"))
	assert.Contains(t, doc.Text, "Source: https://docs.example.com/handbook\n")
	assert.Contains(t, doc.Text, "Extracted: 2024-03-01T09:30:00Z\n")
	assert.Contains(t, doc.Text, "\n---\n\nOur vacation policy")
}

func TestNormalizeHeaderWithoutTitle(t *testing.T) {
	meta := fixedMeta
	meta.Title = "  "
	doc := New().Normalize("Body text goes here.", meta)
	assert.True(t, strings.HasPrefix(doc.Text, "Source: "))
}

func TestCollapseWhitespace(t *testing.T) {
	doc := New().Normalize("a  \t b\r\n\n\n\n\nc", fixedMeta)
	assert.Equal(t, "a b\n\nc", doc.Body)
}

func TestStripChrome(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ctrl shortcut", "Save your draft with Ctrl+S before leaving.", "Save your draft with before leaving."},
		{"chord shortcut", "Open the palette Cmd + Shift + P anytime.", "Open the palette anytime."},
		{"mac glyphs", "Undo with ⌘Z quickly.", "Undo with quickly."},
		{"single letter parenthetical", "Bold (B) and italic (i) text.", "Bold and italic text."},
		{"menu arrows", "Go to File ▸ Print to print it.", "Go to File Print to print it."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New().Normalize(tt.in, fixedMeta).Body)
		})
	}
}

func TestRepeatedShortLinesRemoved(t *testing.T) {
	raw := strings.Join([]string{
		"Dashboard",
		"Benefits start on your first day of employment.",
		"dashboard",
		"Health insurance covers dental and vision care.",
		"DASHBOARD!",
		"Twice only",
		"Twice only",
	}, "\n")

	body := New().Normalize(raw, fixedMeta).Body
	assert.NotContains(t, strings.ToLower(body), "dashboard")
	assert.Contains(t, body, "Benefits start on your first day of employment.")
	assert.Equal(t, 2, strings.Count(body, "Twice only"))
}

func TestLongRepeatedLinesKept(t *testing.T) {
	long := "This sentence is longer than the short line threshold for sure."
	raw := strings.Join([]string{long, long, long, long}, "\n")

	body := New().Normalize(raw, fixedMeta).Body
	assert.Equal(t, 4, strings.Count(body, long))
}

func TestStoplistLinesDropped(t *testing.T) {
	raw := strings.Join([]string{
		"Share",
		"Guardar",
		"Select all",
		"Print this page for your records.",
		"Save money with the commuter benefit.",
		"Help",
	}, "\n")

	body := New().Normalize(raw, fixedMeta).Body
	assert.Equal(t, "Print this page for your records.\nSave money with the commuter benefit.", body)
}

func TestExtraStopwords(t *testing.T) {
	body := New(WithStopwords("Dashboard")).Normalize("Dashboard\nReal content line.", fixedMeta).Body
	assert.Equal(t, "Real content line.", body)
}

func TestCompressionRatio(t *testing.T) {
	doc := New().Normalize("Menu\nMenu\nMenu\nReal content.", fixedMeta)
	assert.Equal(t, len("Menu\nMenu\nMenu\nReal content."), doc.InputChars)
	assert.Equal(t, doc.InputChars-len("Real content."), doc.RemovedChars)
	assert.InDelta(t, float64(doc.RemovedChars)/float64(doc.InputChars), doc.CompressionRatio(), 1e-9)

	assert.Equal(t, 0.0, Document{}.CompressionRatio())
}
