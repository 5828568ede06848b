package models

import "time"

type ResourceKind string

const (
	KindFile ResourceKind = "file"
	KindURL  ResourceKind = "url"
)

type Resource struct {
	ID               string       `json:"id"`
	TenantID         string       `json:"company_id"`
	Kind             ResourceKind `json:"type"`
	Title            string       `json:"title"`
	URL              string       `json:"url,omitempty"`
	FileURL          string       `json:"file_url,omitempty"`
	FilePath         string       `json:"file_path,omitempty"`
	FileSize         int64        `json:"file_size,omitempty"`
	MimeType         string       `json:"mime_type,omitempty"`
	Processed        bool         `json:"processed"`
	ProcessingError  string       `json:"processing_error,omitempty"`
	ExtractedContent string       `json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Location is where the resource content lives, as shown to users.
func (r *Resource) Location() string {
	if r.Kind == KindURL {
		return r.URL
	}
	if r.FileURL != "" {
		return r.FileURL
	}
	return r.FilePath
}

type Chunk struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	TenantID   string    `json:"tenant_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

type SourceAttribution struct {
	ResourceID string       `json:"resource_id"`
	Title      string       `json:"title"`
	Kind       ResourceKind `json:"type"`
	Location   string       `json:"location,omitempty"`
	Score      float64      `json:"score"`
	Preview    string       `json:"preview"`
}

type Answer struct {
	Content string              `json:"content"`
	Sources []SourceAttribution `json:"sources"`
	Cached  bool                `json:"cached"`
}

type CachedAnswer struct {
	Content  string              `json:"content"`
	Sources  []SourceAttribution `json:"sources"`
	CachedAt time.Time           `json:"cached_at"`
}

type PopularQuestion struct {
	Query     string    `json:"query"`
	TenantID  string    `json:"company_id"`
	Count     int64     `json:"count"`
	LastAsked time.Time `json:"last_asked"`
}

type CacheStats struct {
	TotalQuestions   int64             `json:"total_questions"`
	CachedQuestions  int64             `json:"cached_questions"`
	PopularQuestions []PopularQuestion `json:"popular_questions"`
}
