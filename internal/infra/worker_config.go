package infra

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// WorkerConfig configures the reference worker process.
type WorkerConfig struct {
	AppEnv string
	Port   string
	// PublicURL is where this worker is reachable; rendered images are
	// published under PublicURL + "/assets".
	PublicURL   string
	AssetDir    string
	WorkerToken string

	NATSURL     string
	NATSSubject string
	EnableNATS  bool

	QwenAPIKey  string
	QwenBaseURL string
	QwenModel   string

	Concurrency      int
	QueueSize        int
	CallbackAttempts int
	GenerateTimeout  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadWorkerConfig reads WORKER_* variables. WORKER_TOKEN and the NATS
// settings are shared with the API so both sides agree by default.
func LoadWorkerConfig() (*WorkerConfig, error) {
	port := getEnv("WORKER_PORT", "9090")
	cfg := &WorkerConfig{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             port,
		PublicURL:        strings.TrimRight(getEnv("WORKER_PUBLIC_URL", "http://localhost:"+port), "/"),
		AssetDir:         getEnv("WORKER_ASSET_DIR", "./storage"),
		WorkerToken:      getEnv("WORKER_TOKEN", os.Getenv("QSTASH_TOKEN")),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:      getEnv("DISPATCH_NATS_SUBJECT", "images.generate"),
		EnableNATS:       strings.EqualFold(getEnv("WORKER_NATS", "false"), "true"),
		QwenAPIKey:       os.Getenv("DASHSCOPE_API_KEY"),
		QwenBaseURL:      os.Getenv("QWEN_BASE_URL"),
		QwenModel:        os.Getenv("QWEN_MODEL"),
		Concurrency:      getEnvInt("WORKER_CONCURRENCY", 2),
		QueueSize:        getEnvInt("WORKER_QUEUE_SIZE", 64),
		CallbackAttempts: getEnvInt("WORKER_CALLBACK_ATTEMPTS", 5),
		GenerateTimeout:  getEnvDuration("WORKER_GENERATE_TIMEOUT_SECONDS", 90*time.Second),
		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 30*time.Second),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60*time.Second),
	}

	if _, err := url.ParseRequestURI(cfg.PublicURL); err != nil {
		return nil, fmt.Errorf("WORKER_PUBLIC_URL is invalid: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.Concurrency)
	}
	if cfg.EnableNATS && cfg.NATSSubject == "" {
		return nil, fmt.Errorf("DISPATCH_NATS_SUBJECT is required when WORKER_NATS is enabled")
	}
	return cfg, nil
}

// AssetURL is the public prefix of rendered images.
func (c *WorkerConfig) AssetURL() string {
	return c.PublicURL + "/assets"
}

// HTTPConfig adapts the worker settings for NewHTTPServer.
func (c *WorkerConfig) HTTPConfig() *Config {
	return &Config{
		Port:             c.Port,
		HTTPReadTimeout:  c.HTTPReadTimeout,
		HTTPWriteTimeout: c.HTTPWriteTimeout,
		HTTPIdleTimeout:  c.HTTPIdleTimeout,
	}
}
