package backends

import "llmbridge/internal/core"

// CostTier is a coarse pricing band for catalog display.
type CostTier string

const (
	CostTierFree    CostTier = "free"
	CostTierLow     CostTier = "low"
	CostTierMedium  CostTier = "medium"
	CostTierPremium CostTier = "premium"
)

// SetupComplexity hints at how much configuration a family needs before its
// first successful call.
type SetupComplexity string

const (
	SetupNone     SetupComplexity = "none"     // works out of the box
	SetupAPIKey   SetupComplexity = "api_key"  // one secret
	SetupAdvanced SetupComplexity = "advanced" // endpoints, tenants, IAM
)

// BackendMetadata describes one supported backend family for catalogs and
// setup flows. It is static: what a family could do, not what a configured
// instance is doing.
type BackendMetadata struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Kind            core.BackendKind `json:"kind"`
	Description     string           `json:"description"`
	CostTier        CostTier         `json:"cost_tier"`
	SetupComplexity SetupComplexity  `json:"setup_complexity"`
	Capabilities    []string         `json:"capabilities"`
	// CredentialsHint names the Credentials variant the family expects:
	// "api_key", "endpoint", "client_secret", "signing", or "none".
	CredentialsHint string `json:"credentials_hint"`
	DocsURL         string `json:"docs_url,omitempty"`
}

// Catalog returns metadata for every backend family a registered builder can
// construct, in stable id order.
func Catalog() []BackendMetadata {
	out := make([]BackendMetadata, 0, len(knownFamilies))
	for _, meta := range knownFamilies {
		if _, ok := builders[meta.ID]; ok {
			out = append(out, meta)
		}
	}
	return out
}

// Profile is a curated group of backend families surfaced by setup flows:
// instead of picking from the full catalog, a user starts from a group that
// matches how they want to run.
type Profile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Backends    []BackendMetadata `json:"backends"`
}

// profileDefs lists the curated groups by member family id. Membership is
// resolved against the registered builder set at call time.
var profileDefs = []struct {
	id, name, description string
	members               []string
}{
	{
		id:          "local",
		name:        "Free & Local",
		description: "No accounts, no cost; everything runs on your own hardware",
		members:     []string{"ollama", "ondevice"},
	},
	{
		id:          "starter",
		name:        "Hosted Starter",
		description: "One API key gets you a capable hosted model",
		members:     []string{"openai", "anthropic", "gemini"},
	},
	{
		id:          "enterprise",
		name:        "Enterprise Cloud",
		description: "Tenant-scoped access through an existing cloud agreement",
		members:     []string{"azure", "bedrock"},
	},
}

// Profiles returns the curated onboarding groups, restricted to families a
// registered builder can construct. Groups left with no buildable member are
// dropped rather than shown empty.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profileDefs))
	for _, def := range profileDefs {
		p := Profile{ID: def.id, Name: def.name, Description: def.description}
		for _, member := range def.members {
			if _, ok := builders[member]; !ok {
				continue
			}
			if meta, ok := familyMetadata(member); ok {
				p.Backends = append(p.Backends, meta)
			}
		}
		if len(p.Backends) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// familyMetadata finds the static metadata for a family id.
func familyMetadata(id string) (BackendMetadata, bool) {
	for _, meta := range knownFamilies {
		if meta.ID == id {
			return meta, true
		}
	}
	return BackendMetadata{}, false
}

// knownFamilies is ordered by rough popularity; Catalog preserves this order.
var knownFamilies = []BackendMetadata{
	{
		ID:              "openai",
		Name:            "OpenAI",
		Kind:            core.KindCloud,
		Description:     "GPT model family over the OpenAI platform API",
		CostTier:        CostTierMedium,
		SetupComplexity: SetupAPIKey,
		Capabilities:    []string{"chat", "streaming", "json_mode"},
		CredentialsHint: "api_key",
		DocsURL:         "https://platform.openai.com/docs",
	},
	{
		ID:              "anthropic",
		Name:            "Anthropic",
		Kind:            core.KindCloud,
		Description:     "Claude model family over the Anthropic Messages API",
		CostTier:        CostTierMedium,
		SetupComplexity: SetupAPIKey,
		Capabilities:    []string{"chat", "streaming", "long_context"},
		CredentialsHint: "api_key",
		DocsURL:         "https://docs.anthropic.com",
	},
	{
		ID:              "gemini",
		Name:            "Google Gemini",
		Kind:            core.KindCloud,
		Description:     "Gemini model family over the Generative Language API",
		CostTier:        CostTierLow,
		SetupComplexity: SetupAPIKey,
		Capabilities:    []string{"chat", "streaming", "safety_filters"},
		CredentialsHint: "api_key",
		DocsURL:         "https://ai.google.dev/docs",
	},
	{
		ID:              "azure",
		Name:            "Azure OpenAI",
		Kind:            core.KindCloud,
		Description:     "OpenAI models hosted in an Azure resource with deployment routing",
		CostTier:        CostTierMedium,
		SetupComplexity: SetupAdvanced,
		Capabilities:    []string{"chat", "streaming", "enterprise_auth"},
		CredentialsHint: "client_secret",
		DocsURL:         "https://learn.microsoft.com/azure/ai-services/openai",
	},
	{
		ID:              "bedrock",
		Name:            "AWS Bedrock",
		Kind:            core.KindCloud,
		Description:     "Multi-vendor model access through the AWS Bedrock runtime",
		CostTier:        CostTierMedium,
		SetupComplexity: SetupAdvanced,
		Capabilities:    []string{"chat", "streaming", "multi_vendor"},
		CredentialsHint: "signing",
		DocsURL:         "https://docs.aws.amazon.com/bedrock",
	},
	{
		ID:              "ollama",
		Name:            "Ollama",
		Kind:            core.KindLocal,
		Description:     "Locally hosted open models via the Ollama server",
		CostTier:        CostTierFree,
		SetupComplexity: SetupNone,
		Capabilities:    []string{"chat", "streaming", "local_discovery"},
		CredentialsHint: "endpoint",
		DocsURL:         "https://ollama.com",
	},
	{
		ID:              "ondevice",
		Name:            "On-Device",
		Kind:            core.KindLocal,
		Description:     "In-process inference on locally bundled models",
		CostTier:        CostTierFree,
		SetupComplexity: SetupNone,
		Capabilities:    []string{"chat", "streaming", "offline"},
		CredentialsHint: "none",
	},
}
