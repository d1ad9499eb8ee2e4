package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"llmbridge/internal/core"
)

// defaultConfigFile is probed when CONFIG_FILE is unset.
const defaultConfigFile = "llmbridge.yaml"

// fileConfig is the YAML file schema. Scalar sections override the
// environment-derived values only when present.
type fileConfig struct {
	Server   *ServerConfig  `yaml:"server"`
	Logging  *LoggingConfig `yaml:"logging"`
	Usage    *UsageConfig   `yaml:"usage"`
	Storage  *StorageConfig `yaml:"storage"`
	Cache    *CacheConfig   `yaml:"cache"`
	Backends []fileBackend  `yaml:"backends"`
}

// fileBackend is one backend entry. Credentials are flat; the family id
// decides which variant of the union the fields map to.
type fileBackend struct {
	ID           string                  `yaml:"id"`
	Name         string                  `yaml:"name"`
	Kind         string                  `yaml:"kind"`
	Enabled      *bool                   `yaml:"enabled"`
	Priority     int                     `yaml:"priority"`
	DefaultModel string                  `yaml:"default_model"`
	Defaults     core.GenerationDefaults `yaml:"defaults"`
	CostCeiling  core.CostCeiling        `yaml:"cost_ceiling"`
	Credentials  fileCredentials         `yaml:"credentials"`
}

// fileCredentials is the superset of all credential variant fields.
type fileCredentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	Endpoint string `yaml:"endpoint"`

	Deployment   string `yaml:"deployment"`
	APIVersion   string `yaml:"api_version"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Region          string `yaml:"region"`
}

// loadFile merges an optional YAML file into cfg. A missing default file is
// not an error; an explicitly configured file must exist.
func loadFile(cfg *Config, path string) error {
	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Server != nil && fc.Server.Port != "" {
		cfg.Server.Port = fc.Server.Port
	}
	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			cfg.Logging.Format = fc.Logging.Format
		}
	}
	if fc.Usage != nil {
		cfg.Usage = *fc.Usage
	}
	if fc.Storage != nil {
		if fc.Storage.Type != "" {
			cfg.Storage.Type = fc.Storage.Type
		}
		if fc.Storage.SQLite.Path != "" {
			cfg.Storage.SQLite.Path = fc.Storage.SQLite.Path
		}
		if fc.Storage.PostgreSQL.URL != "" {
			cfg.Storage.PostgreSQL = fc.Storage.PostgreSQL
		}
	}
	if fc.Cache != nil {
		if fc.Cache.Path != "" {
			cfg.Cache.Path = fc.Cache.Path
		}
		if fc.Cache.RedisURL != "" {
			cfg.Cache.RedisURL = fc.Cache.RedisURL
		}
	}

	now := time.Now().UTC()
	for _, fb := range fc.Backends {
		bc, err := backendFromFile(fb, now)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.Backends = append(cfg.Backends, bc)
	}

	return nil
}

func backendFromFile(fb fileBackend, now time.Time) (core.BackendConfig, error) {
	creds, err := credentialsFor(fb.ID, fb.Credentials)
	if err != nil {
		return core.BackendConfig{}, err
	}

	name := fb.Name
	if name == "" {
		name = fb.ID
	}
	enabled := true
	if fb.Enabled != nil {
		enabled = *fb.Enabled
	}

	kind := core.BackendKind(fb.Kind)
	if kind == "" {
		switch fb.ID {
		case "ollama", "ondevice":
			kind = core.KindLocal
		default:
			kind = core.KindCloud
		}
	}

	return core.BackendConfig{
		ID:           fb.ID,
		Name:         name,
		Kind:         kind,
		Enabled:      enabled,
		Priority:     fb.Priority,
		Credentials:  creds,
		DefaultModel: fb.DefaultModel,
		Defaults:     fb.Defaults,
		CostCeiling:  fb.CostCeiling,
		CreatedAt:    now,
	}, nil
}

// credentialsFor maps the flat file fields onto the credential variant the
// backend family expects. Shape validation stays in the factory.
func credentialsFor(id string, fc fileCredentials) (core.Credentials, error) {
	switch id {
	case "openai", "anthropic", "gemini":
		return core.APIKeyCredentials{APIKey: fc.APIKey, BaseURL: fc.BaseURL}, nil
	case "azure":
		return core.ClientSecretCredentials{
			Endpoint:     fc.Endpoint,
			Deployment:   fc.Deployment,
			APIVersion:   fc.APIVersion,
			APIKey:       fc.APIKey,
			TenantID:     fc.TenantID,
			ClientID:     fc.ClientID,
			ClientSecret: fc.ClientSecret,
		}, nil
	case "bedrock":
		return core.SigningCredentials{
			AccessKeyID:     fc.AccessKeyID,
			SecretAccessKey: fc.SecretAccessKey,
			SessionToken:    fc.SessionToken,
			Region:          fc.Region,
		}, nil
	case "ollama":
		return core.EndpointCredentials{Endpoint: fc.Endpoint}, nil
	case "ondevice":
		return core.NoCredentials{}, nil
	default:
		return nil, fmt.Errorf("unknown backend id %q", id)
	}
}
