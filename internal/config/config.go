// Package config provides configuration loading for the alt-text pipeline.
// Supports YAML files, .env files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPrompt asks for alt text suited to figures in scientific documents.
const DefaultPrompt = `Analyze this scientific figure and create detailed alt text that would help a visually impaired reader understand it.
Describe the type of figure (chart, diagram, photograph, table), the variables, axes and units it shows,
the main trends or relationships, and any labels or annotations that carry meaning.
Write plain prose in at most four sentences. Do not start with "This image shows" and do not use markdown.`

// Config holds all configuration for the pipeline.
type Config struct {
	Caption       CaptionConfig       `yaml:"caption"`
	Retry         RetryConfig         `yaml:"retry"`
	Normalize     NormalizeConfig     `yaml:"normalize"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Rotation      RotationConfig      `yaml:"rotation"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CaptionConfig holds captioning backend settings.
type CaptionConfig struct {
	Backend         string        `yaml:"backend"` // gemini or openrouter
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	Prompt          string        `yaml:"prompt"`
	Temperature     float64       `yaml:"temperature"`
	TopP            float64       `yaml:"top_p"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	Credentials     []string      `yaml:"credentials"`
}

// RetryConfig holds retry settings for transient caption failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// NormalizeConfig holds image normalization settings.
type NormalizeConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	Concurrency       int `yaml:"concurrency"` // 0 means one worker per credential
	EventBuffer       int `yaml:"event_buffer"`
	MinImageDimension int `yaml:"min_image_dimension"`
}

// RotationConfig selects where the credential cursor lives.
type RotationConfig struct {
	Driver string      `yaml:"driver"` // memory or redis
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the stock Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Caption: CaptionConfig{
			Backend:         "gemini",
			Model:           "gemini-1.5-flash",
			Prompt:          DefaultPrompt,
			Temperature:     0.3,
			TopP:            0.95,
			MaxOutputTokens: 400,
			Timeout:         60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Normalize: NormalizeConfig{
			MaxDimension: 4096,
			JPEGQuality:  85,
		},
		Pipeline: PipelineConfig{
			Concurrency:       0,
			EventBuffer:       16,
			MinImageDimension: 1,
		},
		Rotation: RotationConfig{
			Driver: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "alttext:credential-cursor",
			},
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0, // event streams outlive any fixed write deadline
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   16 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "alttext",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Caption.Backend != "gemini" && c.Caption.Backend != "openrouter" {
		return fmt.Errorf("invalid caption backend: %s", c.Caption.Backend)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("invalid retry backoff window: %v..%v", c.Retry.InitialBackoff, c.Retry.MaxBackoff)
	}

	if c.Normalize.MaxDimension < 1 {
		return fmt.Errorf("normalize.max_dimension must be positive")
	}

	if c.Normalize.JPEGQuality < 1 || c.Normalize.JPEGQuality > 100 {
		return fmt.Errorf("normalize.jpeg_quality must be between 1 and 100")
	}

	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must not be negative")
	}

	if c.Rotation.Driver != "memory" && c.Rotation.Driver != "redis" {
		return fmt.Errorf("invalid rotation driver: %s", c.Rotation.Driver)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// RequireCredentials fails when no caption credential is configured. Commands
// that never reach the captioning backend skip this check.
func (c *Config) RequireCredentials() error {
	if len(c.Caption.Credentials) == 0 {
		return fmt.Errorf("no caption credentials: set GEMINI_API_KEY1..N, GEMINI_API_KEYS or caption.credentials")
	}
	return nil
}

// Workers returns the effective annotation concurrency.
func (c *Config) Workers() int {
	if c.Pipeline.Concurrency > 0 {
		return c.Pipeline.Concurrency
	}
	if n := len(c.Caption.Credentials); n > 0 {
		return n
	}
	return 1
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAPTION_BACKEND"); v != "" {
		cfg.Caption.Backend = v
	}

	if v := os.Getenv("CAPTION_MODEL"); v != "" {
		cfg.Caption.Model = v
	}

	if v := os.Getenv("CAPTION_BASE_URL"); v != "" {
		cfg.Caption.BaseURL = v
	}

	if keys := credentialsFromEnv(cfg.Caption.Backend); len(keys) > 0 {
		cfg.Caption.Credentials = keys
	}

	if v := os.Getenv("PIPELINE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Concurrency = n
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Rotation.Driver = "redis"
		cfg.Rotation.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Rotation.Redis.Password = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// credentialsFromEnv collects API keys. A comma separated GEMINI_API_KEYS
// wins over numbered GEMINI_API_KEY1..N variables, which win over a single
// GEMINI_API_KEY. The openrouter backend reads OPENROUTER_API_KEY instead.
func credentialsFromEnv(backend string) []string {
	if backend == "openrouter" {
		if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
			return []string{v}
		}
		return nil
	}

	if v := os.Getenv("GEMINI_API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}

	type numbered struct {
		n   int
		key string
	}
	var found []numbered
	for _, kv := range os.Environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || val == "" || !strings.HasPrefix(name, "GEMINI_API_KEY") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "GEMINI_API_KEY"))
		if err != nil || n < 1 {
			continue
		}
		found = append(found, numbered{n: n, key: val})
	}
	if len(found) > 0 {
		sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
		keys := make([]string, len(found))
		for i, f := range found {
			keys[i] = f.key
		}
		return keys
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return []string{v}
	}
	return nil
}
