package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. AIGW_PORT.
const EnvPrefix = "AIGW_"

// ModelSource names a model to load at startup.
type ModelSource struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// Config holds all application configuration.
type Config struct {
	Port int `yaml:"port" env:"PORT"`

	BackendURL     string        `yaml:"backend_url" env:"BACKEND_URL"`
	BackendAPIKey  string        `yaml:"backend_api_key" env:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `yaml:"backend_timeout" env:"BACKEND_TIMEOUT"`
	PlusURL        string        `yaml:"plus_url" env:"PLUS_URL"`

	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	RateLimit    int           `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow   time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	ModelLoadTimeout time.Duration `yaml:"model_load_timeout" env:"MODEL_LOAD_TIMEOUT"`
	Preload          []ModelSource `yaml:"preload" env:"-"`

	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"LOG_FORMAT"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPHeaders  string `yaml:"otlp_headers" env:"OTLP_HEADERS"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
}

func defaults() Config {
	return Config{
		Port:             8090,
		BackendTimeout:   30 * time.Second,
		PlusURL:          "https://plus.excalidraw.com",
		RateLimit:        10,
		RateWindow:       time.Minute,
		MaxBodyBytes:     8 << 20,
		ModelLoadTimeout: 2 * time.Minute,
		LogLevel:         "info",
		LogFormat:        "console",
		ServiceName:      "aigateway",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if non-empty), then AIGW_* environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.RateLimit <= 0 {
		return Config{}, fmt.Errorf("config: rate_limit must be positive, got %d", cfg.RateLimit)
	}
	if cfg.RateWindow <= 0 {
		return Config{}, fmt.Errorf("config: rate_window must be positive, got %s", cfg.RateWindow)
	}

	for i, m := range cfg.Preload {
		if m.Name == "" || m.Source == "" {
			return Config{}, fmt.Errorf("config: preload[%d]: name and source are required", i)
		}
	}

	return cfg, nil
}
