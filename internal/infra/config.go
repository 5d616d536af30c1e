package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting.
// Environment variables override file values after LoadConfig parses the YAML.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	RPC struct {
		URL         string `yaml:"url"`
		TimeoutSec  int    `yaml:"timeout_sec"`
		SecretsFile string `yaml:"secrets_file"`
		RateLimit   struct {
			Burst     int     `yaml:"burst"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`
		Breaker struct {
			FailureThreshold int `yaml:"failure_threshold"`
			SuccessThreshold int `yaml:"success_threshold"`
			OpenTimeoutSec   int `yaml:"open_timeout_sec"`
		} `yaml:"breaker"`
	} `yaml:"rpc"`

	Catalog struct {
		// Path is optional; the built-in catalog is used when empty.
		Path string `yaml:"path"`
		// RetrySec is the first backoff step after a rejected reload.
		RetrySec int `yaml:"retry_sec"`
	} `yaml:"catalog"`

	Controller struct {
		DebounceMS int `yaml:"debounce_ms"`
	} `yaml:"controller"`

	Server struct {
		ListenAddr     string   `yaml:"listen_addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DBName string `yaml:"db_name"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"logging"`
}

// DefaultConfig returns a config usable without any file.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads the YAML file, applies defaults and environment overrides,
// then validates the result.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig is LoadConfig without the file read.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs into the process environment.
// A missing file is not an error. Existing variables win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = AppName
	}
	if cfg.RPC.URL == "" {
		cfg.RPC.URL = "https://api.verus.services"
	}
	if cfg.RPC.TimeoutSec == 0 {
		cfg.RPC.TimeoutSec = 30
	}
	if cfg.RPC.RateLimit.Burst == 0 {
		cfg.RPC.RateLimit.Burst = 5
	}
	if cfg.RPC.RateLimit.PerSecond == 0 {
		cfg.RPC.RateLimit.PerSecond = 10
	}
	if cfg.RPC.Breaker.FailureThreshold == 0 {
		cfg.RPC.Breaker.FailureThreshold = 5
	}
	if cfg.RPC.Breaker.SuccessThreshold == 0 {
		cfg.RPC.Breaker.SuccessThreshold = 2
	}
	if cfg.RPC.Breaker.OpenTimeoutSec == 0 {
		cfg.RPC.Breaker.OpenTimeoutSec = 30
	}
	if cfg.Controller.DebounceMS == 0 {
		cfg.Controller.DebounceMS = 500
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.Storage.DBName == "" {
		cfg.Storage.DBName = "quotes.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.RPC.URL, "http://") && !strings.HasPrefix(c.RPC.URL, "https://") {
		return fmt.Errorf("invalid RPC URL: %s", c.RPC.URL)
	}
	if c.RPC.TimeoutSec < 0 {
		return fmt.Errorf("rpc timeout must not be negative")
	}
	if c.RPC.RateLimit.Burst < 1 || c.RPC.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("rpc rate limit must be positive")
	}
	if c.RPC.Breaker.FailureThreshold < 1 || c.RPC.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker thresholds must be positive")
	}
	if c.Controller.DebounceMS < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	if c.Catalog.RetrySec < 0 {
		return fmt.Errorf("catalog retry must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	return nil
}

// RPCTimeout returns the HTTP client timeout. Zero disables it.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPC.TimeoutSec) * time.Second
}

// Debounce returns the controller quiet window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Controller.DebounceMS) * time.Millisecond
}

// BreakerConfig builds the RPC circuit breaker settings.
func (c *Config) BreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "rpc",
		FailureThreshold: c.RPC.Breaker.FailureThreshold,
		SuccessThreshold: c.RPC.Breaker.SuccessThreshold,
		Timeout:          time.Duration(c.RPC.Breaker.OpenTimeoutSec) * time.Second,
	}
}

// overrideWithEnv replaces config values with environment variables when set.
// Environment variables take precedence over the config file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("CONVERT_RPC_URL"); v != "" {
		cfg.RPC.URL = v
	}
	if v := os.Getenv("CONVERT_RPC_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPC.TimeoutSec = n
		}
	}
	if v := os.Getenv("CONVERT_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("CONVERT_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("CONVERT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
