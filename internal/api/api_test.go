package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/assistant"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

type fakeAssistant struct {
	processErr error
	answerErr  error
	gotQuery   string
	gotTenant  string
	gotLimit   int
	cleared    []string
}

func (f *fakeAssistant) ProcessFile(_ context.Context, id string) (*assistant.IngestResult, error) {
	if f.processErr != nil {
		return nil, f.processErr
	}
	return &assistant.IngestResult{ResourceID: id, TenantID: "acme", Chunks: 3}, nil
}

func (f *fakeAssistant) ProcessURL(ctx context.Context, id string) (*assistant.IngestResult, error) {
	return f.ProcessFile(ctx, id)
}

func (f *fakeAssistant) AnswerQuery(_ context.Context, query, tenantID string) (*models.Answer, error) {
	f.gotQuery, f.gotTenant = query, tenantID
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	return &models.Answer{
		Content: "Twenty days.",
		Sources: []models.SourceAttribution{{ResourceID: "r1", Title: "Handbook", Kind: models.KindFile, Score: 0.91}},
	}, nil
}

func (f *fakeAssistant) PopularQuestions(_ context.Context, tenantID string, limit int) ([]models.PopularQuestion, error) {
	f.gotTenant, f.gotLimit = tenantID, limit
	return []models.PopularQuestion{{Query: "what is pto?", TenantID: tenantID, Count: 4}}, nil
}

func (f *fakeAssistant) CacheStats(_ context.Context, tenantID string) (*models.CacheStats, error) {
	return &models.CacheStats{TotalQuestions: 5, CachedQuestions: 2, PopularQuestions: []models.PopularQuestion{}}, nil
}

func (f *fakeAssistant) ClearCache(_ context.Context, tenantID string) error {
	f.cleared = append(f.cleared, tenantID)
	return nil
}

func (f *fakeAssistant) Status() assistant.Status {
	return assistant.Status{Status: "ok", ChunkStore: "memory"}
}

type denyAfter struct{ n, calls int }

func (d *denyAfter) Allow(context.Context, string, int) (bool, int64) {
	d.calls++
	return d.calls <= d.n, int64(d.calls)
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestChat(t *testing.T) {
	fa := &fakeAssistant{}
	h := NewHandler(fa, zap.NewNop())

	rec := serve(h, "POST", "/ai/chat", `{"query":"How many vacation days?","companyId":"acme"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Twenty days.", got.Content)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "r1", got.Sources[0].ResourceID)
	assert.Equal(t, "How many vacation days?", fa.gotQuery)
	assert.Equal(t, "acme", fa.gotTenant)
}

func TestChatValidation(t *testing.T) {
	h := NewHandler(&fakeAssistant{}, zap.NewNop())

	assert.Equal(t, http.StatusBadRequest, serve(h, "POST", "/ai/chat", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, "POST", "/ai/chat", `{"query":"hi"}`).Code)

	h = NewHandler(&fakeAssistant{answerErr: models.ErrEmptyQuery}, zap.NewNop())
	assert.Equal(t, http.StatusUnprocessableEntity, serve(h, "POST", "/ai/chat", `{"query":" ","companyId":"acme"}`).Code)
}

func TestChatRateLimit(t *testing.T) {
	limiter := &denyAfter{n: 1}
	h := NewHandler(&fakeAssistant{}, zap.NewNop(), WithRateLimit(limiter, 1))

	body := `{"query":"q","companyId":"acme"}`
	assert.Equal(t, http.StatusOK, serve(h, "POST", "/ai/chat", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "POST", "/ai/chat", body).Code)
}

func TestChatRateLimitDisabled(t *testing.T) {
	limiter := &denyAfter{n: 0}
	h := NewHandler(&fakeAssistant{}, zap.NewNop(), WithRateLimit(limiter, 0))

	assert.Equal(t, http.StatusOK, serve(h, "POST", "/ai/chat", `{"query":"q","companyId":"acme"}`).Code)
	assert.Zero(t, limiter.calls)
}

func TestProcessErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("load: %w", models.ErrResourceNotFound), http.StatusNotFound},
		{"unsupported", &models.UnsupportedFormatError{Ext: ".xls"}, http.StatusUnprocessableEntity},
		{"insufficient", &models.InsufficientContentError{Strategy: "static", Source: "https://x.test", Length: 3, Min: 100}, http.StatusUnprocessableEntity},
		{"wrong kind", models.ErrWrongResourceKind, http.StatusUnprocessableEntity},
		{"acquisition", fmt.Errorf("%w: status 403", models.ErrAcquisition), http.StatusBadGateway},
		{"embedding", models.ErrEmbeddingAlignment, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeAssistant{processErr: tt.err}, zap.NewNop())
			assert.Equal(t, tt.want, serve(h, "POST", "/ai/process-url/r1", "").Code)
			assert.Equal(t, tt.want, serve(h, "POST", "/ai/process-file/r1", "").Code)
		})
	}
}

func TestTenantMismatchIsNotLeaked(t *testing.T) {
	h := NewHandler(&fakeAssistant{answerErr: fmt.Errorf("%w: chunk c9", models.ErrTenantMismatch)}, zap.NewNop())
	rec := serve(h, "POST", "/ai/chat", `{"query":"q","companyId":"acme"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "c9")
}

func TestProcessFile(t *testing.T) {
	h := NewHandler(&fakeAssistant{}, zap.NewNop())
	rec := serve(h, "POST", "/ai/process-file/r42", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                   `json:"success"`
		Result  assistant.IngestResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "r42", body.Result.ResourceID)
	assert.Equal(t, 3, body.Result.Chunks)
}

func TestPopularQuestions(t *testing.T) {
	fa := &fakeAssistant{}
	h := NewHandler(fa, zap.NewNop())

	rec := serve(h, "GET", "/ai/popular-questions/acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assistant.DefaultPopularLimit, fa.gotLimit)

	rec = serve(h, "GET", "/ai/popular-questions/acme?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, fa.gotLimit)
	assert.Equal(t, "acme", fa.gotTenant)

	var got []models.PopularQuestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].Count)

	assert.Equal(t, http.StatusBadRequest, serve(h, "GET", "/ai/popular-questions/acme?limit=x", "").Code)
}

func TestCacheEndpoints(t *testing.T) {
	fa := &fakeAssistant{}
	h := NewHandler(fa, zap.NewNop())

	rec := serve(h, "GET", "/ai/cache-stats/acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(5), stats.TotalQuestions)
	assert.Equal(t, int64(2), stats.CachedQuestions)

	rec = serve(h, "POST", "/ai/cache/clear/acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"acme"}, fa.cleared)
}

func TestStatusAndHealth(t *testing.T) {
	h := NewHandler(&fakeAssistant{}, zap.NewNop(), WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics"))
	})))

	for _, method := range []string{"GET", "POST"} {
		rec := serve(h, method, "/ai/status", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"chunk_store":"memory"`)
	}
	assert.Equal(t, http.StatusOK, serve(h, "GET", "/health", "").Code)
	assert.Equal(t, "# metrics", serve(h, "GET", "/metrics", "").Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, "GET", "/ai/chat", "").Code)
}
