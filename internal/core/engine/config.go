package engine

import "time"

// EngineConfig defines the provider table and routing rules
type EngineConfig struct {
	// DefaultProvider is used when neither the caller nor a matcher picks one
	DefaultProvider string           `mapstructure:"default_provider"`
	Providers       []ProviderConfig `mapstructure:"providers"`
	// RedactSecrets strips credentials from messages before they leave the process
	RedactSecrets bool `mapstructure:"redact_secrets"`
	// RedactRules are added to the built-in credential patterns
	RedactRules []RedactRule `mapstructure:"redact_rules"`
}

// RedactRule is a custom pattern for the secret redactor
type RedactRule struct {
	Name        string `mapstructure:"name"`
	Pattern     string `mapstructure:"pattern"`
	Replacement string `mapstructure:"replacement"`
}

// ProviderConfig defines one upstream LLM backend
type ProviderConfig struct {
	// Kind is the adapter tag: openai, deepseek, anthropic, gemini, relay
	Kind string `mapstructure:"kind"`
	// Matcher maps a request field ("model") to a regex (e.g. "^gpt-")
	Matcher map[string]string `mapstructure:"matcher"`
	// Upstream defines the target backend service
	Upstream Upstream `mapstructure:"upstream"`
	// Model is used when the request does not name one
	Model string `mapstructure:"model"`
	// MaxTokens is sent to vendors that require it (anthropic)
	MaxTokens int `mapstructure:"max_tokens"`
	// Anonymous allows dispatch without a credential
	Anonymous bool `mapstructure:"anonymous"`
	// Extra maps sjson paths to values merged into the vendor body
	Extra map[string]any `mapstructure:"extra"`
	// HeaderPolicy defines extra HTTP headers for the upstream
	HeaderPolicy HeaderPolicy `mapstructure:"header_policy"`
	// RateLimit is the allowed requests per second; zero disables throttling
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the limiter bucket size
	Burst int `mapstructure:"burst"`
	// Timeout bounds the whole HTTP exchange, including the streamed body
	Timeout time.Duration `mapstructure:"timeout"`
}

// HeaderPolicy defines rules for handling HTTP headers
type HeaderPolicy struct {
	// Set maps headers to force set (supports "env:VAR" syntax for env vars)
	Set map[string]string `mapstructure:"set"`
	// Remove lists headers to strip after Set is applied
	Remove []string `mapstructure:"remove"`
}

// Upstream defines the backend service configuration
type Upstream struct {
	// BaseURL is the base URL for the upstream service (supports "env:VAR")
	BaseURL string `mapstructure:"base_url"`
	// Path is the endpoint path; each adapter has its own default
	Path string `mapstructure:"path"`
	// AuthStrategy defines how to authenticate: "bearer", "header", "query"
	AuthStrategy string `mapstructure:"auth_strategy"`
	// TokenEnv is the environment variable name to read the token from
	TokenEnv string `mapstructure:"token_env"`
	// HeaderName is the header for the "header" strategy, the query key for "query"
	HeaderName string `mapstructure:"header_name"`
}

// AuthStrategy constants
const (
	AuthStrategyBearer = "bearer" // Authorization: Bearer <token>
	AuthStrategyHeader = "header" // Custom header with token value
	AuthStrategyQuery  = "query"  // Query parameter with token value
)
