package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter splits text recursively on progressively finer separators until
// every piece fits the chunk size, then merges neighbouring pieces back into
// windows that share up to overlap characters. Sizes are counted in runes.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

type Option func(*Splitter)

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		if len(seps) > 0 {
			s.separators = seps
		}
	}
}

func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		size:       DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split never returns empty or whitespace-only chunks.
func (s *Splitter) Split(text string) []string {
	var out []string
	for _, c := range s.split(text, s.separators) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var finer []string
	for i, c := range seps {
		if c == "" {
			sep = c
			break
		}
		if strings.Contains(text, c) {
			sep = c
			finer = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks, pending []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) < s.size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, sep)...)
			pending = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, p)
		} else {
			chunks = append(chunks, s.split(p, finer)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, sep)...)
	}
	return chunks
}

func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)

	var docs, window []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n+joinCost(window, sepLen) > s.size && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
				docs = append(docs, doc)
			}
			// shrink from the front until the remainder fits the overlap
			// budget and leaves room for the next piece
			for total > s.overlap || (total+n+joinCost(window, sepLen) > s.size && total > 0) {
				total -= runeLen(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinCost(window []string, sepLen int) int {
	if len(window) > 0 {
		return sepLen
	}
	return 0
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
