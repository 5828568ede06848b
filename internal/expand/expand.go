// Package expand derives query variants for recall expansion. The rules are
// deliberately loose: a variant that matches nothing only costs one extra
// vector search, while the original query is always kept.
package expand

import (
	"regexp"
	"strings"
)

const DefaultMaxVariants = 6

var (
	// capture group 1 is the topic
	topicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:tell me|can you tell me|what do you know|what can you tell me|do you have (?:any )?(?:info|information))\b.*?\b(?:about|on|regarding)\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:what|who|where|when|how)\s+(?:is|are|was|were|does|do)\s+(?:the\s+|our\s+|a\s+|an\s+)?(.+)$`),
		regexp.MustCompile(`(?i)^(?:h[áa]blame|cu[ée]ntame|dime|qu[ée] sabes)\b.*?\b(?:de|del|sobre|acerca de)\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:qu[ée]|cu[áa]l(?:es)?|qui[ée]n(?:es)?|d[óo]nde|c[óo]mo)\s+(?:es|son|est[áa]n?|funciona)\s+(?:el\s+|la\s+|los\s+|las\s+|un\s+|una\s+|nuestr[oa]s?\s+)?(.+)$`),
	}

	overviewPattern = regexp.MustCompile(`(?i)\b(overview|introduction|intro|summary|summarize|general|getting started|resumen|introducci[óo]n|visi[óo]n general)\b`)

	trimChars = " \t\r\n?¿!¡.,;:\"'"
)

// DefaultRelatedTerms maps topic keywords to fixed related searches.
var DefaultRelatedTerms = map[string][]string{
	"vacation":   {"paid time off policy", "holidays and leave"},
	"pto":        {"paid time off policy"},
	"holiday":    {"company holidays calendar"},
	"benefits":   {"health insurance coverage", "retirement plan"},
	"insurance":  {"health insurance coverage"},
	"salary":     {"payroll schedule", "compensation"},
	"payroll":    {"payroll schedule"},
	"onboarding": {"first day checklist", "new hire orientation"},
	"remote":     {"work from home policy"},
	"expense":    {"expense reimbursement policy"},
	"vacaciones": {"política de días libres", "días festivos"},
	"beneficios": {"seguro médico", "prestaciones"},
	"nómina":     {"calendario de pagos"},
}

type Expander struct {
	related     map[string][]string
	maxVariants int
}

type Option func(*Expander)

// WithRelatedTerms replaces the keyword map.
func WithRelatedTerms(terms map[string][]string) Option {
	return func(e *Expander) {
		if len(terms) > 0 {
			e.related = terms
		}
	}
}

func WithMaxVariants(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.maxVariants = n
		}
	}
}

func New(opts ...Option) *Expander {
	e := &Expander{related: DefaultRelatedTerms, maxVariants: DefaultMaxVariants}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the original query first, followed by unique variants.
func (e *Expander) Expand(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	set := newVariantSet(e.maxVariants)
	set.add(query)

	if topic := extractTopic(query); topic != "" {
		set.add(topic)
	}

	if overviewPattern.MatchString(query) {
		set.add("overview " + query)
		set.add("introduction " + query)
	}

	for _, kw := range keywords(query) {
		for _, term := range e.related[kw] {
			set.add(term)
		}
	}
	return set.items
}

func extractTopic(query string) string {
	q := strings.Trim(query, trimChars)
	for _, re := range topicPatterns {
		if m := re.FindStringSubmatch(q); m != nil {
			return strings.Trim(m[1], trimChars)
		}
	}
	return ""
}

// keywords returns lowercased words of query in order, without punctuation
// and with a trailing plural "s" also tried.
func keywords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, trimChars)
		if w == "" {
			continue
		}
		out = append(out, w)
		if s := strings.TrimSuffix(w, "s"); s != w && s != "" {
			out = append(out, s)
		}
	}
	return out
}

type variantSet struct {
	seen  map[string]struct{}
	items []string
	limit int
}

func newVariantSet(limit int) *variantSet {
	return &variantSet{seen: make(map[string]struct{}), limit: limit}
}

// add keeps v as given; duplicates are detected ignoring case and spacing.
func (s *variantSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" || len(s.items) >= s.limit {
		return
	}
	key := strings.ToLower(strings.Join(strings.Fields(v), " "))
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, v)
}
