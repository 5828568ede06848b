// Package normalize cleans raw extracted text into a structured document.
//
// Normalization is deterministic: the same raw text and metadata always
// produce the same bytes. The extraction timestamp is part of the metadata
// for that reason.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultShortLineMax = 40
	// a short line seen more than this many times is treated as chrome
	maxShortLineRepeats = 2
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}\x{2000}-\x{200B}\x{3000}]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)

	chromePatterns = []*regexp.Regexp{
		// Ctrl+S, Cmd + Shift + P, Alt+F4
		regexp.MustCompile(`(?i)\b(?:ctrl|cmd|command|alt|option|shift|meta|win)(?:\s*\+\s*(?:ctrl|cmd|command|alt|option|shift|meta|win))*\s*\+\s*(?:f\d{1,2}|enter|tab|space|esc|del|delete|backspace|[a-z0-9])\b`),
		// ⌘S, ⌥⇧K
		regexp.MustCompile(`[⌘⌥⇧⌃]+\s*[A-Za-z0-9]?`),
		// (S), ( b )
		regexp.MustCompile(`\(\s*[A-Za-z]\s*\)`),
		// File ▸ Print, Settings › Account
		regexp.MustCompile(`\s*[►▶▸▹›»→➔➜⮕]\s*`),
	}

	defaultStopwords = []string{
		"create", "new", "open", "save", "share", "print", "copy", "cut",
		"paste", "select", "all", "settings", "help", "search", "menu",
		"file", "edit", "view", "undo", "redo",
		"crear", "nuevo", "nueva", "abrir", "guardar", "compartir", "imprimir",
		"copiar", "cortar", "pegar", "seleccionar", "todo", "configuración",
		"configuracion", "ajustes", "ayuda", "buscar", "búsqueda", "menú",
		"archivo", "editar", "ver", "deshacer", "rehacer",
	}
)

type Metadata struct {
	SourceURL   string
	Title       string
	ExtractedAt time.Time
}

type Document struct {
	// Text is the header block followed by the cleaned body.
	Text string
	Body string

	InputChars   int
	RemovedChars int
}

// CompressionRatio is the share of input characters removed by cleaning.
func (d Document) CompressionRatio() float64 {
	if d.InputChars == 0 {
		return 0
	}
	return float64(d.RemovedChars) / float64(d.InputChars)
}

type Normalizer struct {
	shortLineMax int
	stopwords    map[string]struct{}
}

type Option func(*Normalizer)

func WithShortLineMax(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.shortLineMax = n
		}
	}
}

// WithStopwords adds navigation words to the default stoplist.
func WithStopwords(words ...string) Option {
	return func(nz *Normalizer) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				nz.stopwords[w] = struct{}{}
			}
		}
	}
}

func New(opts ...Option) *Normalizer {
	nz := &Normalizer{
		shortLineMax: DefaultShortLineMax,
		stopwords:    make(map[string]struct{}, len(defaultStopwords)),
	}
	for _, w := range defaultStopwords {
		nz.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

func (nz *Normalizer) Normalize(raw string, meta Metadata) Document {
	body := collapse(raw)
	body = stripChrome(body)
	body = nz.dropRepeatedShortLines(body)
	body = nz.dropStoplistLines(body)
	body = collapse(body)

	in := utf8.RuneCountInString(raw)
	out := utf8.RuneCountInString(body)
	removed := in - out
	if removed < 0 {
		removed = 0
	}

	return Document{
		Text:         header(meta) + body,
		Body:         body,
		InputChars:   in,
		RemovedChars: removed,
	}
}

func collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func stripChrome(s string) string {
	for _, re := range chromePatterns {
		s = re.ReplaceAllString(s, " ")
	}
	return collapse(s)
}

func (nz *Normalizer) dropRepeatedShortLines(s string) string {
	lines := strings.Split(s, "\n")
	counts := make(map[string]int)
	for _, l := range lines {
		if k, ok := nz.shortKey(l); ok {
			counts[k]++
		}
	}

	kept := lines[:0]
	for _, l := range lines {
		if k, ok := nz.shortKey(l); ok && counts[k] > maxShortLineRepeats {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// shortKey folds a short line to a comparison key so that near-duplicates
// (case, punctuation, spacing) count together. Long and blank lines have no key.
func (nz *Normalizer) shortKey(line string) (string, bool) {
	n := utf8.RuneCountInString(line)
	if n == 0 || n > nz.shortLineMax {
		return "", false
	}
	var b strings.Builder
	for _, r := range strings.ToLower(line) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return line, true
	}
	return b.String(), true
}

func (nz *Normalizer) dropStoplistLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if nz.isNavLine(l) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func (nz *Normalizer) isNavLine(line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 || len(fields) > 2 {
		return false
	}
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if _, ok := nz.stopwords[f]; !ok {
			return false
		}
	}
	return true
}

func header(meta Metadata) string {
	var b strings.Builder
	if t := strings.TrimSpace(meta.Title); t != "" {
		b.WriteString("# ")
		b.WriteString(t)
		b.WriteString("\n\n")
	}
	b.WriteString("Source: ")
	b.WriteString(meta.SourceURL)
	b.WriteString("\nExtracted: ")
	b.WriteString(meta.ExtractedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n\n---\n\n")
	return b.String()
}
