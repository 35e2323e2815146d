package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	GoogleApiKey   string
	TavilyApiKey   string
	DatabaseURL    string
	DBMaxConns     int
	DBMinConns     int
	ReasoningModel string
	FastModel      string
	Port           string

	AgentTimeout      time.Duration
	SearchConcurrency int
	SearchCacheTTL    time.Duration

	MaxToolIterations   int
	MinToolUses         int
	RecommendedToolUses int
	MaxEvidenceRetries  int
}

func Load() *Config {
	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		TavilyApiKey:   getEnv("TAVILY_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxConns:     getEnvAsInt("DB_MAX_CONNS", 25),
		DBMinConns:     getEnvAsInt("DB_MIN_CONNS", 5),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		Port:           getEnv("PORT", "3000"),

		AgentTimeout:      time.Duration(getEnvAsInt("AGENT_TIMEOUT_SECONDS", 300)) * time.Second,
		SearchConcurrency: getEnvAsInt("SEARCH_CONCURRENCY", 5),
		SearchCacheTTL:    time.Duration(getEnvAsInt("SEARCH_CACHE_TTL_MINUTES", 1440)) * time.Minute,

		MaxToolIterations:   getEnvAsInt("MAX_TOOL_ITERATIONS", 8),
		MinToolUses:         getEnvAsInt("MIN_TOOL_USES", 3),
		RecommendedToolUses: getEnvAsInt("RECOMMENDED_TOOL_USES", 6),
		MaxEvidenceRetries:  getEnvAsInt("MAX_EVIDENCE_RETRIES", 2),
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
