package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/onboard")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.PopularityTTL)
	assert.Equal(t, 1536, cfg.EmbeddingDimensions)
	assert.Equal(t, 1000, cfg.Pipeline.FileChunkSize)
	assert.Equal(t, 150, cfg.Pipeline.FileChunkOverlap)
	assert.Equal(t, 200, cfg.Pipeline.URLChunkOverlap)
	assert.Equal(t, 10, cfg.Pipeline.PerVariantK)
	assert.Equal(t, 15, cfg.Pipeline.TopN)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/onboard")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("MIN_CONTENT_LENGTH", "250")
	t.Setenv("CHUNK_STORE", "mongo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 250, cfg.MinContentLength)
	assert.Equal(t, "mongo", cfg.ChunkStore)
}

func TestLoadGeminiDefaultsToNativeDimensions(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/onboard")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	require.NoError(t, os.Unsetenv("EMBEDDING_DIMENSIONS"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.EmbeddingDimensions)

	t.Setenv("EMBEDDING_DIMENSIONS", "256")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.EmbeddingDimensions)

	t.Setenv("EMBEDDING_DIMENSIONS", "1536")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
spa_hosts: [app.example.com]
extra_stopwords: [imprimir]
related_terms:
  vacation: [pto policy]
top_n: 20
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/onboard")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"app.example.com"}, cfg.Pipeline.SPAHosts)
	assert.Equal(t, []string{"imprimir"}, cfg.Pipeline.ExtraStopwords)
	assert.Equal(t, []string{"pto policy"}, cfg.Pipeline.RelatedTerms["vacation"])
	assert.Equal(t, 20, cfg.Pipeline.TopN)
	// untouched keys keep defaults
	assert.Equal(t, 10, cfg.Pipeline.PerVariantK)
	assert.NotEmpty(t, cfg.Pipeline.ContentSelectors)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:         "postgres://localhost/onboard",
			ChunkStore:          "postgres",
			EmbeddingProvider:   "openai",
			CompletionProvider:  "gemini",
			EmbeddingDimensions: 1536,
			Pipeline:            DefaultPipeline(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown store", func(c *Config) { c.ChunkStore = "sqlite" }, true},
		{"unknown provider", func(c *Config) { c.EmbeddingProvider = "cohere" }, true},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"small candidate pool", func(c *Config) { c.Pipeline.NumCandidates = 50 }, true},
		{"overlap not below size", func(c *Config) { c.Pipeline.URLChunkOverlap = 1000 }, true},
		{"gemini native width", func(c *Config) { c.EmbeddingProvider = "gemini"; c.EmbeddingDimensions = 768 }, false},
		{"gemini too wide", func(c *Config) { c.EmbeddingProvider = "gemini" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
