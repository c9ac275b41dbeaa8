package imagefront

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Auth       AuthConfig       `yaml:"auth"`
	Store      StoreConfig      `yaml:"store"`
	Keys       KeysConfig       `yaml:"keys"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Relay      RelayConfig      `yaml:"relay"`
	Translator TranslatorConfig `yaml:"translator"`
	Proxy      ProxyConfig      `yaml:"proxy"`
}

// AuthConfig configures the inbound auth boundary.
type AuthConfig struct {
	// StaticKey is the single-key compatibility mode: it is consulted only
	// when the client key pool is empty.
	StaticKey string `yaml:"static_key"`
}

// Store backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// StoreConfig selects and parameterizes the persistence backend. Both pools
// use the same backend; the pool logic never branches on it.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig parameterizes the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig parameterizes the PostgreSQL backend.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`
}

// KeysConfig configures the client API key pool.
type KeysConfig struct {
	// File is the pool document path (file backend only).
	File string `yaml:"file"`
}

// UpstreamConfig configures the upstream session token pool.
type UpstreamConfig struct {
	// File is the pool document path (file backend only).
	File string `yaml:"file"`

	// Tokens are adopted into the pool at startup and on reload.
	Tokens []string `yaml:"tokens"`

	Strategy        string `yaml:"strategy"`
	SubPoolStrategy string `yaml:"sub_pool_strategy"`

	// Default limits applied to adopted tokens. Nil means unbounded.
	DailyLimit   *int64 `yaml:"daily_limit"`
	MonthlyLimit *int64 `yaml:"monthly_limit"`
}

// RelayConfig configures the image generation backend.
type RelayConfig struct {
	BaseURL    string  `yaml:"base_url"`
	ImageModel string  `yaml:"image_model"`
	ChatModel  string  `yaml:"chat_model"`
	// RequestsPerSecond caps outbound calls; zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TranslatorConfig configures the prompt translator.
type TranslatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Enhance bool   `yaml:"enhance"`
}

// ProxyConfig configures the dynamic outbound proxy.
type ProxyConfig struct {
	// URL is a fixed proxy; RefreshURL fetches one periodically instead.
	URL                string `yaml:"url"`
	RefreshURL         string `yaml:"refresh_url"`
	RefreshIntervalSec int    `yaml:"refresh_interval_sec"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("imagefront: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("imagefront: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, "":
		if c.Keys.File == "" {
			return fmt.Errorf("imagefront: config: keys.file is required for the file backend")
		}
		if c.Upstream.File == "" {
			return fmt.Errorf("imagefront: config: upstream.file is required for the file backend")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("imagefront: config: store.redis.addr is required")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("imagefront: config: store.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("imagefront: config: unknown store backend %q", c.Store.Backend)
	}

	if s := c.Upstream.Strategy; s != "" && !KnownStrategy(s) {
		return fmt.Errorf("imagefront: config: unknown rotation strategy %q", s)
	}
	if s := c.Upstream.SubPoolStrategy; s != "" && !KnownStrategy(s) {
		return fmt.Errorf("imagefront: config: unknown sub-pool strategy %q", s)
	}
	if c.Upstream.DailyLimit != nil && *c.Upstream.DailyLimit < 0 {
		return fmt.Errorf("imagefront: config: upstream.daily_limit must be non-negative")
	}
	if c.Upstream.MonthlyLimit != nil && *c.Upstream.MonthlyLimit < 0 {
		return fmt.Errorf("imagefront: config: upstream.monthly_limit must be non-negative")
	}

	if c.Relay.BaseURL == "" {
		return fmt.Errorf("imagefront: config: relay.base_url is required")
	}
	if c.Relay.RequestsPerSecond < 0 {
		return fmt.Errorf("imagefront: config: relay.requests_per_second must be non-negative")
	}

	if c.Translator.Enabled {
		if c.Translator.APIKey == "" {
			return fmt.Errorf("imagefront: config: translator.api_key is required when translation is enabled")
		}
	}

	if c.Proxy.URL != "" && c.Proxy.RefreshURL != "" {
		return fmt.Errorf("imagefront: config: proxy.url and proxy.refresh_url are mutually exclusive")
	}

	return nil
}
