package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort  string
	Environment string
	LogLevel    string

	DatabaseURL string
	AutoMigrate bool
	RedisURL    string

	ChunkStore       string
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
	MongoVectorIndex string

	EmbeddingProvider   string
	CompletionProvider  string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingBatchSize  int
	CompletionModel     string
	CompletionMaxTokens int
	ProviderTimeout     time.Duration

	UploadPath         string
	FetchTimeout       time.Duration
	BrowserTimeout     time.Duration
	BrowserSettleDelay time.Duration
	MinContentLength   int

	CacheTTL              time.Duration
	PopularityTTL         time.Duration
	QueryRateLimitPerHour int

	TaskTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	Pipeline Pipeline
}

// Pipeline holds retrieval and extraction tuning. Defaults can be
// overridden by the YAML file named in CONFIG_FILE.
type Pipeline struct {
	SPAHosts         []string            `yaml:"spa_hosts"`
	ContentSelectors []string            `yaml:"content_selectors"`
	ExtraStopwords   []string            `yaml:"extra_stopwords"`
	RelatedTerms     map[string][]string `yaml:"related_terms"`

	FileChunkSize    int `yaml:"file_chunk_size"`
	FileChunkOverlap int `yaml:"file_chunk_overlap"`
	URLChunkSize     int `yaml:"url_chunk_size"`
	URLChunkOverlap  int `yaml:"url_chunk_overlap"`

	PerVariantK   int `yaml:"per_variant_k"`
	NumCandidates int `yaml:"num_candidates"`
	TopN          int `yaml:"top_n"`
	MaxVariants   int `yaml:"max_variants"`
}

func DefaultPipeline() Pipeline {
	return Pipeline{
		SPAHosts: []string{
			"notion.so", "notion.site", "coda.io", "clickup.com",
			"atlassian.net", "gitbook.io", "webflow.io",
		},
		ContentSelectors: []string{
			"main", "article", "[role=main]", "#content", ".content",
			"#main", ".main-content", ".post-content", ".entry-content", "body",
		},
		FileChunkSize:    1000,
		FileChunkOverlap: 150,
		URLChunkSize:     1000,
		URLChunkOverlap:  200,
		PerVariantK:      10,
		NumCandidates:    200,
		TopN:             15,
		MaxVariants:      6,
	}
}

// native output width of Gemini's text-embedding-004
const geminiEmbeddingDimensions = 768

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		ServerPort:  getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		ChunkStore:       getEnv("CHUNK_STORE", "postgres"),
		MongoURI:         getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "onboard"),
		MongoCollection:  getEnv("MONGODB_COLLECTION", "chunks"),
		MongoVectorIndex: getEnv("MONGODB_VECTOR_INDEX", "vector_index"),

		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "openai"),
		CompletionProvider:  getEnv("COMPLETION_PROVIDER", "openai"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 256),
		CompletionModel:     getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionMaxTokens: getEnvInt("COMPLETION_MAX_TOKENS", 1000),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),

		UploadPath:         getEnv("UPLOAD_PATH", "./uploads"),
		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		BrowserTimeout:     getEnvDuration("BROWSER_TIMEOUT", 30*time.Second),
		BrowserSettleDelay: getEnvDuration("BROWSER_SETTLE_DELAY", 2*time.Second),
		MinContentLength:   getEnvInt("MIN_CONTENT_LENGTH", 100),

		CacheTTL:              getEnvDuration("CACHE_TTL", time.Hour),
		PopularityTTL:         getEnvDuration("POPULARITY_TTL", 30*24*time.Hour),
		QueryRateLimitPerHour: getEnvInt("QUERY_RATE_LIMIT_PER_HOUR", 0),

		TaskTimeout:         getEnvDuration("TASK_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 15*time.Second),

		Pipeline: DefaultPipeline(),
	}

	// the OpenAI default width is wider than Gemini can produce
	if _, set := os.LookupEnv("EMBEDDING_DIMENSIONS"); !set && cfg.EmbeddingProvider == "gemini" {
		cfg.EmbeddingDimensions = geminiEmbeddingDimensions
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.Pipeline.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.ChunkStore {
	case "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("unknown CHUNK_STORE %q", c.ChunkStore)
	}
	for name, v := range map[string]string{"EMBEDDING_PROVIDER": c.EmbeddingProvider, "COMPLETION_PROVIDER": c.CompletionProvider} {
		if v != "openai" && v != "gemini" {
			return fmt.Errorf("unknown %s %q", name, v)
		}
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.EmbeddingProvider == "gemini" && c.EmbeddingDimensions > geminiEmbeddingDimensions {
		return fmt.Errorf("EMBEDDING_DIMENSIONS %d exceeds the gemini maximum of %d", c.EmbeddingDimensions, geminiEmbeddingDimensions)
	}

	p := c.Pipeline
	if p.PerVariantK <= 0 || p.TopN <= 0 {
		return fmt.Errorf("per_variant_k and top_n must be positive")
	}
	if p.NumCandidates < 20*p.PerVariantK {
		return fmt.Errorf("num_candidates %d must be at least 20x per_variant_k (%d)", p.NumCandidates, p.PerVariantK)
	}
	for _, pair := range [][2]int{{p.FileChunkSize, p.FileChunkOverlap}, {p.URLChunkSize, p.URLChunkOverlap}} {
		if pair[0] <= 0 || pair[1] < 0 || pair[1] >= pair[0] {
			return fmt.Errorf("invalid chunk size/overlap %d/%d", pair[0], pair[1])
		}
	}
	return nil
}

// overlay merges non-zero values from a YAML file into p.
func (p *Pipeline) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file Pipeline
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if len(file.SPAHosts) > 0 {
		p.SPAHosts = file.SPAHosts
	}
	if len(file.ContentSelectors) > 0 {
		p.ContentSelectors = file.ContentSelectors
	}
	p.ExtraStopwords = append(p.ExtraStopwords, file.ExtraStopwords...)
	if len(file.RelatedTerms) > 0 {
		p.RelatedTerms = file.RelatedTerms
	}
	setInt(&p.FileChunkSize, file.FileChunkSize)
	setInt(&p.FileChunkOverlap, file.FileChunkOverlap)
	setInt(&p.URLChunkSize, file.URLChunkSize)
	setInt(&p.URLChunkOverlap, file.URLChunkOverlap)
	setInt(&p.PerVariantK, file.PerVariantK)
	setInt(&p.NumCandidates, file.NumCandidates)
	setInt(&p.TopN, file.TopN)
	setInt(&p.MaxVariants, file.MaxVariants)
	return nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
