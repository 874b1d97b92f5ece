package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting of the service. All values come from the environment.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration

	InferenceBaseURL string
	InferenceAPIKey  string
	InferenceModel   string
	InferenceTimeout time.Duration

	FetchTimeout     time.Duration
	MaxImageBytes    int64
	BatchConcurrency int

	// Empty RedisAddr disables the result cache.
	RedisAddr string
	CacheTTL  time.Duration

	// Empty DatabaseDSN disables the recognition audit log.
	DatabaseDSN string

	// Empty JWTSecret leaves /api unauthenticated.
	JWTSecret   string
	JWTAudience string

	SearchBaseURL  string
	ScraperBaseURL string
	// AuxTimeout bounds each search or scrape call.
	AuxTimeout time.Duration
}

const (
	defaultModel         = "unsloth/gemma-3-12b-it-bnb-4bit"
	defaultMaxImageBytes = 10 << 20
)

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var errs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return fallback
		}
		return d
	}
	integer := func(key string, fallback int64) int64 {
		raw := env(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid positive integer %q", key, raw))
			return fallback
		}
		return n
	}

	cfg := &Config{
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		LogLevel:        env("LOG_LEVEL", "info"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", 15*time.Second),

		InferenceBaseURL: strings.TrimRight(env("INFERENCE_BASE_URL", "http://localhost:8000/v1"), "/"),
		InferenceAPIKey:  env("INFERENCE_API_KEY", ""),
		InferenceModel:   env("INFERENCE_MODEL", defaultModel),
		InferenceTimeout: duration("INFERENCE_TIMEOUT", 120*time.Second),

		FetchTimeout:     duration("FETCH_TIMEOUT", 30*time.Second),
		MaxImageBytes:    integer("MAX_IMAGE_BYTES", defaultMaxImageBytes),
		BatchConcurrency: int(integer("BATCH_CONCURRENCY", 4)),

		RedisAddr: env("REDIS_ADDR", ""),
		CacheTTL:  duration("CACHE_TTL", 24*time.Hour),

		DatabaseDSN: env("DATABASE_DSN", ""),

		JWTSecret:   env("JWT_SECRET", ""),
		JWTAudience: env("JWT_AUDIENCE", ""),

		SearchBaseURL:  strings.TrimRight(env("SEARCH_BASE_URL", "http://localhost:8888"), "/"),
		ScraperBaseURL: strings.TrimRight(env("SCRAPER_BASE_URL", "http://localhost:3000"), "/"),
		AuxTimeout:     duration("AUX_TIMEOUT", 10*time.Second),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
