package acquire

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

var _ Fetcher = (*Static)(nil)

var DefaultSelectors = []string{
	"main", "article", "[role=main]", "#content", ".content",
	"#main", ".main-content", ".post-content", ".entry-content", "body",
}

const chromeSelector = "script, style, noscript, template, svg, nav, header, footer, aside, form, iframe"

// Static fetches server-rendered HTML and extracts the first non-empty
// content container from an ordered selector list.
type Static struct {
	client    *http.Client
	selectors []string
}

func NewStatic(timeout time.Duration, selectors []string) *Static {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Static{client: newHTTPClient(timeout), selectors: selectors}
}

func (s *Static) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, err := get(ctx, s.client, rawURL)
	if err != nil {
		return "", err
	}
	text, err := extractHTML(body, s.selectors)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %w", models.ErrAcquisition, rawURL, err)
	}
	return text, nil
}

func extractHTML(body []byte, selectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find(chromeSelector).Remove()

	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := blockText(node); text != "" {
			return text, nil
		}
	}
	return "", nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "br": true, "dd": true, "dt": true,
}

// blockText is Selection.Text with line breaks at block boundaries, so
// paragraph structure survives for the normalizer and splitter.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			block := blockElements[goquery.NodeName(c)]
			if block {
				b.WriteString("\n")
			}
			walk(c)
			if block {
				b.WriteString("\n")
			}
		})
	}
	walk(sel)
	return strings.TrimSpace(b.String())
}
