package backends

import (
	"fmt"

	"llmbridge/internal/core"
)

// Builder creates a backend instance from a validated config. Builders run
// only after the credential shape for the family has been checked.
type Builder func(cfg core.BackendConfig) (core.Backend, error)

// builders holds all registered backend builders, keyed by family id.
// Adapter packages register themselves from init().
var builders = make(map[string]Builder)

// Register wires a family id to its builder. Called from adapter init()
// functions; the blank import set in the binary decides what is available.
func Register(family string, builder Builder) {
	builders[family] = builder
}

// Unregister drops a family id. Used by tests that install fakes.
func Unregister(family string) {
	delete(builders, family)
}

// ListRegistered returns the family ids a Create call can service.
func ListRegistered() []string {
	ids := make([]string, 0, len(builders))
	for id := range builders {
		ids = append(ids, id)
	}
	return ids
}

// Create instantiates a backend from configuration. The credential union is
// checked exhaustively per family before the builder runs, so adapters never
// see a credential shape they do not understand.
//
// Service-account credentials are rejected up front for every family: signing
// gateway tokens needs a trusted execution environment this process does not
// provide, and no builder may paper over that.
func Create(cfg core.BackendConfig) (core.Backend, error) {
	if _, ok := cfg.Credentials.(core.ServiceAccountCredentials); ok {
		return nil, core.NewUnsupportedError(cfg.ID, "service account credentials require a trusted signing environment")
	}
	builder, ok := builders[cfg.ID]
	if !ok {
		return nil, core.NewConfigError(cfg.ID, fmt.Sprintf("unknown backend %q", cfg.ID))
	}
	if err := checkCredentials(cfg); err != nil {
		return nil, err
	}
	return builder(cfg)
}

// checkCredentials enforces the one credential variant each family accepts.
func checkCredentials(cfg core.BackendConfig) error {
	fail := func(msg string) error {
		return core.NewConfigError(cfg.ID, msg)
	}
	switch cfg.ID {
	case "openai", "anthropic", "gemini":
		c, ok := cfg.Credentials.(core.APIKeyCredentials)
		if !ok {
			return fail(fmt.Sprintf("%s requires api key credentials, got %T", cfg.ID, cfg.Credentials))
		}
		if c.APIKey == "" {
			return fail("api key is empty")
		}
	case "azure":
		c, ok := cfg.Credentials.(core.ClientSecretCredentials)
		if !ok {
			return fail(fmt.Sprintf("azure requires client secret credentials, got %T", cfg.Credentials))
		}
		if c.Endpoint == "" || c.Deployment == "" {
			return fail("azure endpoint and deployment are required")
		}
		hasKey := c.APIKey != ""
		hasOAuth := c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
		if !hasKey && !hasOAuth {
			return fail("azure needs either an api key or the tenant/client/secret triple")
		}
	case "bedrock":
		c, ok := cfg.Credentials.(core.SigningCredentials)
		if !ok {
			return fail(fmt.Sprintf("bedrock requires signing credentials, got %T", cfg.Credentials))
		}
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return fail("bedrock access key id and secret access key are required")
		}
		if c.Region == "" {
			return fail("bedrock region is required")
		}
	case "ollama":
		if _, ok := cfg.Credentials.(core.EndpointCredentials); !ok {
			return fail(fmt.Sprintf("ollama requires endpoint credentials, got %T", cfg.Credentials))
		}
	case "ondevice":
		if _, ok := cfg.Credentials.(core.NoCredentials); !ok {
			return fail(fmt.Sprintf("ondevice takes no credentials, got %T", cfg.Credentials))
		}
	default:
		// A registered builder for a family this switch does not know is a
		// programming error at wiring time, not a user config problem.
		if cfg.Credentials == nil {
			return fail("credentials are required")
		}
	}
	return nil
}
