package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Gemini backends
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTier            string
	GoogleEmbeddingsModel string
	EmbeddingTimeout      int // seconds
	GenerationTimeout     int // seconds

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Vector index
	VectorIndexPath string
	VectorDim       int
	RetrievalK      int
	OverfetchFactor int

	// Sessions
	SessionStore       string // "memory" or "mongo"
	SessionIdleMinutes int    // memory store sweep threshold

	// Redis (asynq broker + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	MaxFileSize    int64
	FileStorageDir string

	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/lms_assistant"),
		DBName:   getEnv("DB_NAME", "lms_assistant"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		EmbeddingTimeout:      getEnvInt("EMBEDDING_TIMEOUT", 30),
		GenerationTimeout:     getEnvInt("GENERATION_TIMEOUT", 60),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 100),

		VectorIndexPath: getEnv("VECTOR_INDEX_PATH", "./storage/vector_index.db"),
		VectorDim:       getEnvInt("VECTOR_DIM", 768),
		RetrievalK:      getEnvInt("RETRIEVAL_K", 3),
		OverfetchFactor: getEnvInt("OVERFETCH_FACTOR", 2),

		SessionStore:       getEnv("SESSION_STORE", "memory"),
		SessionIdleMinutes: getEnvInt("SESSION_IDLE_MINUTES", 120),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB upload cap
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage/uploads"),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields and chunking parameters up front; bad values
	// are rejected here, never clamped.
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be between 0 and CHUNK_SIZE, got %d", cfg.ChunkOverlap)
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be positive, got %d", cfg.VectorDim)
	}
	if cfg.OverfetchFactor < 1 {
		return nil, fmt.Errorf("OVERFETCH_FACTOR must be at least 1, got %d", cfg.OverfetchFactor)
	}
	if cfg.SessionStore != "memory" && cfg.SessionStore != "mongo" {
		return nil, fmt.Errorf("SESSION_STORE must be 'memory' or 'mongo', got %q", cfg.SessionStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
