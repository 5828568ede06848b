// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/assistant"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

type Assistant interface {
	ProcessFile(ctx context.Context, resourceID string) (*assistant.IngestResult, error)
	ProcessURL(ctx context.Context, resourceID string) (*assistant.IngestResult, error)
	AnswerQuery(ctx context.Context, query, tenantID string) (*models.Answer, error)
	PopularQuestions(ctx context.Context, tenantID string, limit int) ([]models.PopularQuestion, error)
	CacheStats(ctx context.Context, tenantID string) (*models.CacheStats, error)
	ClearCache(ctx context.Context, tenantID string) error
	Status() assistant.Status
}

type Limiter interface {
	Allow(ctx context.Context, tenantID string, limit int) (bool, int64)
}

type Handler struct {
	assistant    Assistant
	limiter      Limiter
	limitPerHour int
	metrics      http.Handler
	logger       *zap.Logger
}

type Option func(*Handler)

// WithRateLimit caps chat requests per tenant per hour. A non-positive
// limit disables the check.
func WithRateLimit(l Limiter, perHour int) Option {
	return func(h *Handler) {
		h.limiter = l
		h.limitPerHour = perHour
	}
}

func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(a Assistant, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{assistant: a, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.logRequests)
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics).Methods("GET")
	}

	ai := router.PathPrefix("/ai").Subrouter()
	ai.HandleFunc("/process-file/{resourceId}", h.ProcessFile).Methods("POST")
	ai.HandleFunc("/process-url/{resourceId}", h.ProcessURL).Methods("POST")
	ai.HandleFunc("/chat", h.Chat).Methods("POST")
	ai.HandleFunc("/popular-questions/{companyId}", h.PopularQuestions).Methods("GET")
	ai.HandleFunc("/cache-stats/{companyId}", h.CacheStats).Methods("GET")
	ai.HandleFunc("/cache/clear/{companyId}", h.ClearCache).Methods("POST")
	ai.HandleFunc("/status", h.Status).Methods("GET", "POST")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (h *Handler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, h.assistant.ProcessFile)
}

func (h *Handler) ProcessURL(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, h.assistant.ProcessURL)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (*assistant.IngestResult, error)) {
	id := mux.Vars(r)["resourceId"]
	result, err := run(r.Context(), id)
	if err != nil {
		h.writeError(w, err, zap.String("resource_id", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string `json:"query"`
		CompanyID string `json:"companyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		http.Error(w, "companyId is required", http.StatusBadRequest)
		return
	}

	if h.limiter != nil && h.limitPerHour > 0 {
		if ok, _ := h.limiter.Allow(r.Context(), req.CompanyID, h.limitPerHour); !ok {
			h.logger.Info("rate limit exceeded", zap.String("tenant_id", req.CompanyID))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	answer, err := h.assistant.AnswerQuery(r.Context(), req.Query, req.CompanyID)
	if err != nil {
		h.writeError(w, err, zap.String("tenant_id", req.CompanyID))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) PopularQuestions(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["companyId"]
	limit := assistant.DefaultPopularLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	questions, err := h.assistant.PopularQuestions(r.Context(), tenantID, limit)
	if err != nil {
		h.writeError(w, err, zap.String("tenant_id", tenantID))
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["companyId"]
	stats, err := h.assistant.CacheStats(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err, zap.String("tenant_id", tenantID))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["companyId"]
	if err := h.assistant.ClearCache(r.Context(), tenantID); err != nil {
		h.writeError(w, err, zap.String("tenant_id", tenantID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cache cleared",
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Status())
}

// StatusCode maps pipeline errors onto HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnsupportedFormat),
		errors.Is(err, models.ErrInsufficientContent),
		errors.Is(err, models.ErrWrongResourceKind),
		errors.Is(err, models.ErrEmptyQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrAcquisition):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fields ...zap.Field) {
	status := StatusCode(err)
	fields = append(fields, zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
		if errors.Is(err, models.ErrTenantMismatch) {
			http.Error(w, "Internal error", status)
			return
		}
	} else {
		h.logger.Info("request rejected", fields...)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.statusCode),
			zap.Int("bytes", rec.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	size          int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.headerWritten {
		r.statusCode = statusCode
		r.ResponseWriter.WriteHeader(statusCode)
		r.headerWritten = true
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.headerWritten = true
	size, err := r.ResponseWriter.Write(b)
	r.size += size
	return size, err
}
