package acquire

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

type stubFetcher struct {
	text  string
	err   error
	calls []string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	s.calls = append(s.calls, rawURL)
	return s.text, s.err
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestClassify(t *testing.T) {
	spa := []string{"notion.so", "notion.site"}
	tests := []struct {
		url  string
		want Strategy
	}{
		{"https://docs.google.com/document/d/1AbC-d_9/edit", StrategyDocExport},
		{"https://docs.google.com/presentation/d/xyz/edit#slide=1", StrategyDocExport},
		{"https://docs.google.com/spreadsheets/d/xyz/edit", StrategyStatic},
		{"https://www.notion.so/acme/Handbook-123", StrategyBrowser},
		{"https://acme.notion.site/Benefits", StrategyBrowser},
		{"https://notnotion.so/page", StrategyStatic},
		{"https://example.com/careers", StrategyStatic},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(mustURL(t, tt.url), spa))
		})
	}
}

func TestExportURL(t *testing.T) {
	got, ok := exportURL(mustURL(t, "https://docs.google.com/document/d/1AbC-d_9/edit?usp=sharing"))
	require.True(t, ok)
	assert.Equal(t, "https://docs.google.com/document/d/1AbC-d_9/export?format=txt", got)

	_, ok = exportURL(mustURL(t, "https://example.com/document/d/1AbC"))
	assert.False(t, ok)
}

func TestAcquireURLDispatchesByStrategy(t *testing.T) {
	long := strings.Repeat("content ", 30)
	doc := &stubFetcher{text: long}
	browser := &stubFetcher{text: long}
	static := &stubFetcher{text: long}

	a := New(zap.NewNop(),
		WithFetcher(StrategyDocExport, doc),
		WithFetcher(StrategyBrowser, browser),
		WithFetcher(StrategyStatic, static),
		WithSPAHosts([]string{"notion.so"}),
	)

	ctx := context.Background()
	_, err := a.AcquireURL(ctx, "https://docs.google.com/document/d/abc/edit")
	require.NoError(t, err)
	_, err = a.AcquireURL(ctx, "https://www.notion.so/page")
	require.NoError(t, err)
	_, err = a.AcquireURL(ctx, "https://example.com/about")
	require.NoError(t, err)

	assert.Len(t, doc.calls, 1)
	assert.Len(t, browser.calls, 1)
	assert.Len(t, static.calls, 1)
}

func TestAcquireURLInsufficientContentNamesStrategy(t *testing.T) {
	for _, tc := range []struct {
		url      string
		strategy Strategy
	}{
		{"https://docs.google.com/document/d/abc/edit", StrategyDocExport},
		{"https://www.notion.so/page", StrategyBrowser},
		{"https://example.com/about", StrategyStatic},
	} {
		t.Run(tc.strategy.String(), func(t *testing.T) {
			a := New(zap.NewNop(),
				WithFetcher(tc.strategy, &stubFetcher{text: "  too short  "}),
				WithSPAHosts([]string{"notion.so"}),
				WithMinContentLength(50),
			)

			_, err := a.AcquireURL(context.Background(), tc.url)
			require.ErrorIs(t, err, models.ErrInsufficientContent)

			var ice *models.InsufficientContentError
			require.True(t, errors.As(err, &ice))
			assert.Equal(t, tc.strategy.String(), ice.Strategy)
			assert.Equal(t, len("too short"), ice.Length)
			assert.Equal(t, 50, ice.Min)
		})
	}
}

func TestAcquireURLRejectsBadURLs(t *testing.T) {
	a := New(zap.NewNop(), WithFetcher(StrategyStatic, &stubFetcher{}))
	for _, raw := range []string{"", "ftp://example.com/file", "not a url", "https://"} {
		_, err := a.AcquireURL(context.Background(), raw)
		assert.ErrorIs(t, err, models.ErrAcquisition, raw)
	}
}

func TestAcquireURLPropagatesFetchError(t *testing.T) {
	boom := errors.New("connection refused")
	a := New(zap.NewNop(), WithFetcher(StrategyStatic, &stubFetcher{err: boom}))
	_, err := a.AcquireURL(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, boom)
}
