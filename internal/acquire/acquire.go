// Package acquire obtains raw text for a resource, either from a file on
// disk or from a URL using the strategy its shape calls for.
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

type Strategy int

const (
	StrategyDocExport Strategy = iota
	StrategyBrowser
	StrategyStatic
)

func (s Strategy) String() string {
	switch s {
	case StrategyDocExport:
		return "doc-export"
	case StrategyBrowser:
		return "browser"
	case StrategyStatic:
		return "static"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Fetcher fetches visible text for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

const DefaultMinContentLength = 100

// Classify picks the acquisition strategy for u. Precedence is document
// export, then SPA host, then static HTML.
func Classify(u *url.URL, spaHosts []string) Strategy {
	if _, ok := exportURL(u); ok {
		return StrategyDocExport
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range spaHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && (host == h || strings.HasSuffix(host, "."+h)) {
			return StrategyBrowser
		}
	}
	return StrategyStatic
}

type Acquirer struct {
	fetchers map[Strategy]Fetcher
	files    *FileReader
	spaHosts []string
	minLen   int
	logger   *zap.Logger
}

type Option func(*Acquirer)

func WithFetcher(s Strategy, f Fetcher) Option {
	return func(a *Acquirer) { a.fetchers[s] = f }
}

func WithSPAHosts(hosts []string) Option {
	return func(a *Acquirer) { a.spaHosts = hosts }
}

func WithMinContentLength(n int) Option {
	return func(a *Acquirer) {
		if n > 0 {
			a.minLen = n
		}
	}
}

func WithFileReader(r *FileReader) Option {
	return func(a *Acquirer) { a.files = r }
}

func New(logger *zap.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		fetchers: make(map[Strategy]Fetcher),
		files:    NewFileReader(""),
		minLen:   DefaultMinContentLength,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Acquirer) AcquireURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", models.ErrAcquisition, rawURL)
	}

	strategy := Classify(u, a.spaHosts)
	f, ok := a.fetchers[strategy]
	if !ok {
		return "", fmt.Errorf("%w: no fetcher configured for %s strategy", models.ErrAcquisition, strategy)
	}

	a.logger.Info("acquiring url", zap.String("url", u.String()), zap.Stringer("strategy", strategy))
	text, err := f.Fetch(ctx, u.String())
	if err != nil {
		return "", err
	}
	return a.checkLength(strings.TrimSpace(text), strategy.String(), u.String())
}

func (a *Acquirer) AcquireFile(ctx context.Context, path string) (string, error) {
	text, err := a.files.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return a.checkLength(strings.TrimSpace(text), "file", path)
}

func (a *Acquirer) checkLength(text, strategy, source string) (string, error) {
	if n := utf8.RuneCountInString(text); n < a.minLen {
		return "", &models.InsufficientContentError{Strategy: strategy, Source: source, Length: n, Min: a.minLen}
	}
	return text, nil
}
