package core

import "time"

// BackendKind distinguishes cloud backends (network + billing) from local
// ones (network server on the LAN, or in-process).
type BackendKind string

const (
	KindCloud BackendKind = "cloud"
	KindLocal BackendKind = "local"
)

// GenerationDefaults holds per-backend default sampling parameters applied
// when the request leaves them unset.
type GenerationDefaults struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// CostCeiling is the configured spend limit for a backend. Enforcement is a
// caller concern; this layer only exposes the accounting data.
type CostCeiling struct {
	Daily   float64 `json:"daily" yaml:"daily"`
	Monthly float64 `json:"monthly" yaml:"monthly"`
}

// BackendConfig is one configured backend instance. It is created by the
// external setup flow and handed to the factory; exactly one adapter instance
// exists per enabled config.
type BackendConfig struct {
	// ID selects the backend family ("openai", "azure", "ollama", ...).
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     BackendKind `json:"kind"`
	Enabled  bool        `json:"enabled"`
	Priority int         `json:"priority"`

	// Credentials is a tagged union; each backend family accepts exactly one
	// variant shape, checked exhaustively at construction.
	Credentials Credentials `json:"-"`

	DefaultModel string             `json:"default_model"`
	Defaults     GenerationDefaults `json:"defaults"`
	CostCeiling  CostCeiling        `json:"cost_ceiling"`

	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`

	// Cumulative counters maintained by the external persistence layer.
	TotalRequests int64   `json:"total_requests"`
	TotalCost     float64 `json:"total_cost"`
}

// Credentials is the sealed union of per-family credential shapes.
// Validation is an exhaustive type switch in the factory, not string
// matching on config fields.
type Credentials interface {
	isCredentials()
}

// APIKeyCredentials authenticates hosted backends with a static key.
// BaseURL overrides the family default endpoint when set.
type APIKeyCredentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EndpointCredentials points at a local network server. No auth required.
type EndpointCredentials struct {
	Endpoint string `yaml:"endpoint"`
}

// ClientSecretCredentials authenticates an enterprise gateway. Either a
// static APIKey or the tenant/client/secret triple for a client-credential
// token exchange must be present; Endpoint and Deployment always are.
type ClientSecretCredentials struct {
	Endpoint     string `yaml:"endpoint"`
	Deployment   string `yaml:"deployment"`
	APIVersion   string `yaml:"api_version"`
	APIKey       string `yaml:"api_key"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SigningCredentials holds long-lived keys for request-signature auth.
type SigningCredentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Region          string `yaml:"region"`
}

// ServiceAccountCredentials identifies a service account whose tokens must be
// signed by a trusted environment. This layer never holds the private key;
// backends requiring it fail fast with an Unsupported error.
type ServiceAccountCredentials struct {
	Email    string `yaml:"email"`
	Project  string `yaml:"project"`
	TokenURI string `yaml:"token_uri"`
}

// NoCredentials is the variant for the on-device backend.
type NoCredentials struct{}

func (APIKeyCredentials) isCredentials()         {}
func (EndpointCredentials) isCredentials()       {}
func (ClientSecretCredentials) isCredentials()   {}
func (SigningCredentials) isCredentials()        {}
func (ServiceAccountCredentials) isCredentials() {}
func (NoCredentials) isCredentials()             {}
