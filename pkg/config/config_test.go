package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GOOGLE_API_KEY", "DATABASE_URL", "RESEARCH_BACKEND", "REQUEST_TIMEOUT", "CHUNK_SIZE", "BLOG_AGENT_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Empty(t, cfg.GoogleApiKey)
	assert.Equal(t, BackendADK, cfg.ResearchBackend)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, "http://localhost:8004", cfg.BlogAgentURL)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "research_sources", cfg.CollectionName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("RESEARCH_BACKEND", BackendEngine)
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("BLOG_PORT", "9004")

	cfg := Load()

	assert.Equal(t, "k", cfg.GoogleApiKey)
	assert.Equal(t, BackendEngine, cfg.ResearchBackend)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, "9004", cfg.BlogPort)
}

func TestGetEnvAsInt_Invalid(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "lots")
	assert.Equal(t, 1000, getEnvAsInt("CHUNK_SIZE", 1000))
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"45", 45 * time.Second},
		{"soon", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Setenv("REQUEST_TIMEOUT", tt.value)
		assert.Equal(t, tt.want, getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second), tt.value)
	}
}
