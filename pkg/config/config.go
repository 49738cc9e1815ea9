package config

import (
	"os"
	"strconv"
	"time"
)

// Research backends selectable with RESEARCH_BACKEND.
const (
	BackendADK    = "adk"
	BackendEngine = "engine"
)

type Config struct {
	GoogleApiKey   string
	MistralApiKey  string
	DatabaseURL    string
	ReasoningModel string
	FastModel      string
	EmbeddingModel string
	CollectionName string
	ChunkSize      int
	ChunkOverlap   int

	ResearchBackend string
	ArxivMaxResults int
	MaxIterations   int

	ResearchPort     string
	BlogPort         string
	ResearchAgentURL string
	BlogAgentURL     string
	OutputDir        string
	RequestTimeout   time.Duration
}

func Load() *Config {
	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		MistralApiKey:  getEnv("MISTRAL_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_sources"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),

		ResearchBackend: getEnv("RESEARCH_BACKEND", BackendADK),
		ArxivMaxResults: getEnvAsInt("ARXIV_MAX_RESULTS", 5),
		MaxIterations:   getEnvAsInt("MAX_ITERATIONS", 3),

		ResearchPort:     getEnv("RESEARCH_PORT", "8003"),
		BlogPort:         getEnv("BLOG_PORT", "8004"),
		ResearchAgentURL: getEnv("RESEARCH_AGENT_URL", "http://localhost:8003"),
		BlogAgentURL:     getEnv("BLOG_AGENT_URL", "http://localhost:8004"),
		OutputDir:        getEnv("OUTPUT_DIR", "."),
		RequestTimeout:   getEnvAsDuration("REQUEST_TIMEOUT", 300*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
