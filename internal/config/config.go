package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              int
	LogLevel          string
	AnthropicAPIKey   string
	AnthropicModel    string
	MaxTokens         int
	PythonPath        string
	WorkDir           string
	ExecTimeout       time.Duration
	RequestTimeout    time.Duration
	MaxConcurrentExec int
	MaxQueuedExec     int
	MaxOutputBytes    int
	RateLimit         int
	RateBurst         int
	NatsURL           string
	NatsToken         string
}

func Load() Config {
	return Config{
		Port:              envInt("VIZCHAT_PORT", 8080),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("VIZCHAT_MODEL", "claude-sonnet-4-20250514"),
		MaxTokens:         envInt("VIZCHAT_MAX_TOKENS", 4096),
		PythonPath:        envStr("VIZCHAT_PYTHON", "python3"),
		WorkDir:           envStr("VIZCHAT_WORKDIR", os.TempDir()),
		ExecTimeout:       envDuration("VIZCHAT_EXEC_TIMEOUT", 60*time.Second),
		RequestTimeout:    envDuration("VIZCHAT_REQUEST_TIMEOUT", 0),
		MaxConcurrentExec: envInt("VIZCHAT_MAX_CONCURRENT_EXEC", 4),
		MaxQueuedExec:     envInt("VIZCHAT_MAX_QUEUED_EXEC", 64),
		MaxOutputBytes:    envInt("VIZCHAT_MAX_OUTPUT_BYTES", 8<<20),
		RateLimit:         envInt("VIZCHAT_RATE_LIMIT", 0),
		RateBurst:         envInt("VIZCHAT_RATE_BURST", 0),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s", "2m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
