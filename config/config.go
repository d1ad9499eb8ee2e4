// Package config provides configuration management for the application.
// Settings come from three layers: an optional YAML file, an optional .env
// file, and environment variables, with the environment winning.
package config

import (
	"time"

	"github.com/spf13/viper"

	"llmbridge/internal/core"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Usage   UsageConfig
	Storage StorageConfig
	Cache   CacheConfig

	// Backends holds one entry per configured backend instance, from the
	// YAML file plus environment autodiscovery.
	Backends []core.BackendConfig
}

// ServerConfig holds diagnostics server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UsageConfig holds usage journal configuration
type UsageConfig struct {
	Enabled       bool `yaml:"enabled"`
	BufferSize    int  `yaml:"buffer_size"`
	FlushInterval int  `yaml:"flush_interval"` // seconds
	RetentionDays int  `yaml:"retention_days"`
}

// StorageConfig holds database configuration for the usage journal
type StorageConfig struct {
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// CacheConfig holds model-catalog cache configuration
type CacheConfig struct {
	// Path is the local snapshot file. Empty disables local caching.
	Path string `yaml:"path"`
	// RedisURL switches the cache to Redis when set.
	RedisURL string `yaml:"redis_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// Load .env file using Viper (optional, won't fail if not found)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if .env file doesn't exist

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STORAGE_TYPE", "sqlite")
	viper.SetDefault("SQLITE_PATH", ".cache/llmbridge.db")
	viper.SetDefault("USAGE_BUFFER_SIZE", 1000)
	viper.SetDefault("USAGE_FLUSH_INTERVAL", 5)
	viper.SetDefault("USAGE_RETENTION_DAYS", 90)

	// Enable automatic environment variable reading
	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("PORT"),
		},
		Logging: LoggingConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Usage: UsageConfig{
			Enabled:       viper.GetBool("USAGE_ENABLED"),
			BufferSize:    viper.GetInt("USAGE_BUFFER_SIZE"),
			FlushInterval: viper.GetInt("USAGE_FLUSH_INTERVAL"),
			RetentionDays: viper.GetInt("USAGE_RETENTION_DAYS"),
		},
		Storage: StorageConfig{
			Type: viper.GetString("STORAGE_TYPE"),
			SQLite: SQLiteConfig{
				Path: viper.GetString("SQLITE_PATH"),
			},
			PostgreSQL: PostgreSQLConfig{
				URL:      viper.GetString("POSTGRES_URL"),
				MaxConns: viper.GetInt("POSTGRES_MAX_CONNS"),
			},
		},
		Cache: CacheConfig{
			Path:     viper.GetString("CATALOG_CACHE_PATH"),
			RedisURL: viper.GetString("REDIS_URL"),
		},
	}

	// Optional YAML file carries the full backend list.
	if err := loadFile(cfg, viper.GetString("CONFIG_FILE")); err != nil {
		return nil, err
	}

	// Environment autodiscovery fills in families the file doesn't mention.
	discoverBackends(cfg)

	return cfg, nil
}

// has reports whether cfg already carries a backend with the given id.
func (c *Config) has(id string) bool {
	for _, b := range c.Backends {
		if b.ID == id {
			return true
		}
	}
	return false
}

// discoverBackends appends one enabled backend per family whose credentials
// are present in the environment. A YAML entry for the same family wins.
func discoverBackends(cfg *Config) {
	now := time.Now().UTC()

	addCloud := func(id string, creds core.Credentials) {
		if cfg.has(id) {
			return
		}
		cfg.Backends = append(cfg.Backends, core.BackendConfig{
			ID:          id,
			Name:        id,
			Kind:        core.KindCloud,
			Enabled:     true,
			Credentials: creds,
			CreatedAt:   now,
		})
	}
	addLocal := func(id string, creds core.Credentials) {
		if cfg.has(id) {
			return
		}
		cfg.Backends = append(cfg.Backends, core.BackendConfig{
			ID:          id,
			Name:        id,
			Kind:        core.KindLocal,
			Enabled:     true,
			Credentials: creds,
			CreatedAt:   now,
		})
	}

	if key := viper.GetString("OPENAI_API_KEY"); key != "" {
		addCloud("openai", core.APIKeyCredentials{
			APIKey:  key,
			BaseURL: viper.GetString("OPENAI_BASE_URL"),
		})
	}
	if key := viper.GetString("ANTHROPIC_API_KEY"); key != "" {
		addCloud("anthropic", core.APIKeyCredentials{
			APIKey:  key,
			BaseURL: viper.GetString("ANTHROPIC_BASE_URL"),
		})
	}
	if key := viper.GetString("GEMINI_API_KEY"); key != "" {
		addCloud("gemini", core.APIKeyCredentials{APIKey: key})
	}
	if endpoint := viper.GetString("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		addCloud("azure", core.ClientSecretCredentials{
			Endpoint:     endpoint,
			Deployment:   viper.GetString("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion:   viper.GetString("AZURE_OPENAI_API_VERSION"),
			APIKey:       viper.GetString("AZURE_OPENAI_API_KEY"),
			TenantID:     viper.GetString("AZURE_TENANT_ID"),
			ClientID:     viper.GetString("AZURE_CLIENT_ID"),
			ClientSecret: viper.GetString("AZURE_CLIENT_SECRET"),
		})
	}
	if viper.GetString("AWS_ACCESS_KEY_ID") != "" && viper.GetString("BEDROCK_ENABLED") != "" {
		addCloud("bedrock", core.SigningCredentials{
			AccessKeyID:     viper.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    viper.GetString("AWS_SESSION_TOKEN"),
			Region:          viper.GetString("AWS_REGION"),
		})
	}
	if host := viper.GetString("OLLAMA_HOST"); host != "" {
		addLocal("ollama", core.EndpointCredentials{Endpoint: host})
	}
	if viper.GetBool("ONDEVICE_ENABLED") {
		addLocal("ondevice", core.NoCredentials{})
	}
}
