package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"llmbridge/internal/core"
)

func resetEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, key := range []string{
		"PORT", "CONFIG_FILE", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"AWS_ACCESS_KEY_ID", "BEDROCK_ENABLED", "OLLAMA_HOST", "ONDEVICE_ENABLED",
		"USAGE_ENABLED", "STORAGE_TYPE",
	} {
		_ = os.Unsetenv(key)
	}
	t.Cleanup(func() { viper.Reset() })
}

func TestLoadDefaults(t *testing.T) {
	resetEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected default storage sqlite, got %s", cfg.Storage.Type)
	}
	if cfg.Usage.Enabled {
		t.Error("usage journal must default to disabled")
	}
	if len(cfg.Backends) != 0 {
		t.Errorf("no credentials in environment, expected no backends, got %d", len(cfg.Backends))
	}
}

func TestLoadDiscoversBackendsFromEnv(t *testing.T) {
	resetEnv(t)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 discovered backends, got %d", len(cfg.Backends))
	}

	var openai, ollama *core.BackendConfig
	for i := range cfg.Backends {
		switch cfg.Backends[i].ID {
		case "openai":
			openai = &cfg.Backends[i]
		case "ollama":
			ollama = &cfg.Backends[i]
		}
	}
	if openai == nil || ollama == nil {
		t.Fatalf("missing discovered backends: %+v", cfg.Backends)
	}

	creds, ok := openai.Credentials.(core.APIKeyCredentials)
	if !ok || creds.APIKey != "sk-test" {
		t.Errorf("openai credentials = %#v, want api key sk-test", openai.Credentials)
	}
	if openai.Kind != core.KindCloud || !openai.Enabled {
		t.Errorf("openai backend = %+v, want enabled cloud", openai)
	}

	ep, ok := ollama.Credentials.(core.EndpointCredentials)
	if !ok || ep.Endpoint != "http://localhost:11434" {
		t.Errorf("ollama credentials = %#v", ollama.Credentials)
	}
	if ollama.Kind != core.KindLocal {
		t.Errorf("ollama kind = %s, want local", ollama.Kind)
	}
}

func TestLoadBedrockRequiresExplicitEnable(t *testing.T) {
	resetEnv(t)

	// Generic AWS credentials alone must not register the backend.
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.has("bedrock") {
		t.Fatal("bedrock must not be discovered without BEDROCK_ENABLED")
	}

	t.Setenv("BEDROCK_ENABLED", "true")
	viper.Reset()
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.has("bedrock") {
		t.Fatal("bedrock must be discovered with BEDROCK_ENABLED set")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	resetEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "llmbridge.yaml")
	content := `
server:
  port: "9191"
usage:
  enabled: true
  retention_days: 30
backends:
  - id: openai
    name: primary
    priority: 10
    default_model: gpt-4o
    defaults:
      temperature: 0.2
      max_tokens: 512
    credentials:
      api_key: sk-from-file
  - id: azure
    enabled: false
    credentials:
      endpoint: https://example.openai.azure.com
      deployment: gpt-4o-prod
      api_key: azkey
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	// Env autodiscovery must not duplicate the file's openai entry.
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "9191" {
		t.Errorf("port = %s, want file value 9191", cfg.Server.Port)
	}
	if !cfg.Usage.Enabled || cfg.Usage.RetentionDays != 30 {
		t.Errorf("usage = %+v, want enabled with 30 day retention", cfg.Usage)
	}

	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d: %+v", len(cfg.Backends), cfg.Backends)
	}

	openai := cfg.Backends[0]
	if openai.ID != "openai" || openai.Name != "primary" || openai.Priority != 10 {
		t.Errorf("openai backend = %+v", openai)
	}
	creds, ok := openai.Credentials.(core.APIKeyCredentials)
	if !ok || creds.APIKey != "sk-from-file" {
		t.Errorf("file entry must win over env discovery, got %#v", openai.Credentials)
	}
	if openai.Defaults.Temperature == nil || *openai.Defaults.Temperature != 0.2 {
		t.Errorf("defaults = %+v, want temperature 0.2", openai.Defaults)
	}
	if openai.DefaultModel != "gpt-4o" {
		t.Errorf("default model = %s, want gpt-4o", openai.DefaultModel)
	}

	azure := cfg.Backends[1]
	if azure.Enabled {
		t.Error("azure entry must honor enabled: false")
	}
	az, ok := azure.Credentials.(core.ClientSecretCredentials)
	if !ok || az.Deployment != "gpt-4o-prod" {
		t.Errorf("azure credentials = %#v", azure.Credentials)
	}
}

func TestLoadYAMLUnknownBackend(t *testing.T) {
	resetEnv(t)

	path := filepath.Join(t.TempDir(), "llmbridge.yaml")
	content := "backends:\n  - id: watson\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend id in config file")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("explicitly configured file must exist")
	}
}
