package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	// Upstream chat-completions backend.
	CortexBaseURL         string
	CortexAPIKey          string
	CortexAPIKeyEncrypted string
	CortexAPIKeySecret    string
	EncryptionKey         string

	// Storage. Empty values select the in-memory backends.
	DatabaseURL string
	RedisURL    string

	// AWS integrations.
	AWSRegion   string
	SNSTopicArn string
	UseBedrock  bool

	OTLPEndpoint string

	// Rate limits per minute.
	OptimizeLimit int
	SessionLimit  int

	// Rewriter thresholds.
	RewriteSkipLength int

	// Context budgeting. TokenEstimator selects "heuristic" or "tiktoken".
	ContextMaxTokens int
	TokenEstimator   string

	// Public endpoint.
	PublicModel     string
	PublicMaxPrompt int

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:                  getEnv("ADDR", ":8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		CortexBaseURL:         getEnv("CORTEX_BASE_URL", "https://api.openai.com/v1"),
		CortexAPIKey:          getEnv("CORTEX_API_KEY", ""),
		CortexAPIKeyEncrypted: getEnv("CORTEX_API_KEY_ENCRYPTED", ""),
		CortexAPIKeySecret:    getEnv("CORTEX_API_KEY_SECRET", ""),
		EncryptionKey:         getEnv("ENCRYPTION_KEY", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		AWSRegion:             getEnv("AWS_REGION", ""),
		SNSTopicArn:           getEnv("SNS_TOPIC_ARN", ""),
		UseBedrock:            getEnv("USE_BEDROCK", "false") == "true",
		OTLPEndpoint:          getEnv("OTLP_ENDPOINT", ""),
		OptimizeLimit:         getIntEnv("RATE_LIMIT_OPTIMIZE", 60),
		SessionLimit:          getIntEnv("RATE_LIMIT_SESSION", 120),
		RewriteSkipLength:     getIntEnv("REWRITE_SKIP_LENGTH", 200),
		ContextMaxTokens:      getIntEnv("CONTEXT_MAX_TOKENS", 4000),
		TokenEstimator:        getEnv("TOKEN_ESTIMATOR", "heuristic"),
		PublicModel:           getEnv("PUBLIC_MODEL", "gpt-4o-mini"),
		PublicMaxPrompt:       getIntEnv("PUBLIC_MAX_PROMPT", 4000),
		ShutdownTimeout:       getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
