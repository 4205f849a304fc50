package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported status store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreMemory   = "memory"
)

// Supported dispatcher transports.
const (
	DispatcherHTTP = "http"
	DispatcherNATS = "nats"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	PublicBaseURL string

	Dispatcher          string
	ImageAPIURL         string
	WorkerToken         string
	DispatchMethod      string
	DispatchTimeout     time.Duration
	NATSURL             string
	DispatchNATSSubject string

	StatusStore string
	RedisURL    string
	DatabaseURL string
	BadgerPath  string
	StatusTTL   time.Duration

	CORSAllowedOrigins []string
	GeoIPDBPath        string
	SentryDSN          string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		PublicBaseURL:       strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		Dispatcher:          strings.ToLower(getEnv("DISPATCHER", DispatcherHTTP)),
		ImageAPIURL:         strings.TrimRight(os.Getenv("IMAGE_API_URL"), "/"),
		WorkerToken:         getEnv("WORKER_TOKEN", os.Getenv("QSTASH_TOKEN")),
		DispatchMethod:      strings.ToUpper(getEnv("DISPATCH_METHOD", "GET")),
		DispatchTimeout:     getEnvDuration("DISPATCH_TIMEOUT_SECONDS", 15*time.Second),
		NATSURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		DispatchNATSSubject: getEnv("DISPATCH_NATS_SUBJECT", "images.generate"),
		StatusStore:         strings.ToLower(getEnv("STATUS_STORE", StoreRedis)),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		BadgerPath:          os.Getenv("BADGER_PATH"),
		StatusTTL:           getEnvDuration("STATUS_TTL_SECONDS", 0),
		CORSAllowedOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		HTTPReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15*time.Second),
		HTTPWriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 30*time.Second),
		HTTPIdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60*time.Second),
	}

	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is invalid: %w", err)
	}

	switch cfg.Dispatcher {
	case DispatcherHTTP:
		if cfg.ImageAPIURL == "" {
			return nil, fmt.Errorf("IMAGE_API_URL is required")
		}
		if cfg.DispatchMethod != "GET" && cfg.DispatchMethod != "POST" {
			return nil, fmt.Errorf("DISPATCH_METHOD must be GET or POST, got %q", cfg.DispatchMethod)
		}
	case DispatcherNATS:
		if cfg.DispatchNATSSubject == "" {
			return nil, fmt.Errorf("DISPATCH_NATS_SUBJECT is required")
		}
	default:
		return nil, fmt.Errorf("unsupported DISPATCHER %q", cfg.Dispatcher)
	}

	switch cfg.StatusStore {
	case StoreRedis, StoreMemory, StoreBadger:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return nil, fmt.Errorf("unsupported STATUS_STORE %q", cfg.StatusStore)
	}

	return cfg, nil
}

// CallbackURL is the address the external worker calls on completion.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/api/callback"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds, or a Go duration such as
// "1m30s". Negative or unparsable values fall back.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
