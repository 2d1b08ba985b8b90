package unifiedllm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultPriority is used when a Config names no model specifiers.
var DefaultPriority = []string{LocalSpecifier, "gpt-4o-mini"}

// DefaultLocalProbeTimeout bounds the model listing done when the Local
// adapter is constructed.
const DefaultLocalProbeTimeout = 2 * time.Second

// CredentialEnvVars names the environment variable holding each provider's
// API key. The local server needs none.
var CredentialEnvVars = map[ProviderIdentity]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderMistral:   "MISTRAL_API_KEY",
	ProviderGroq:      "GROQ_API_KEY",
	ProviderCohere:    "COHERE_API_KEY",
	ProviderDeepSeek:  "DEEPSEEK_API_KEY",
}

const (
	envPriority     = "UNIFAI_PRIORITY"
	envLocalBaseURL = "UNIFAI_LOCAL_BASE_URL"
	envLocalAPIKey  = "UNIFAI_LOCAL_API_KEY"
)

// AdapterFactory builds the adapter for one model specifier. apiKey is the
// provider credential, or the local API key for ProviderLocal.
type AdapterFactory func(ctx context.Context, provider ProviderIdentity, model, apiKey string) (Adapter, error)

// Config controls how New builds a Client.
type Config struct {
	// Priority lists model specifiers, most preferred first.
	Priority []string
	// Credentials maps a provider to its API key. Providers without a key
	// are skipped.
	Credentials map[ProviderIdentity]string

	LocalBaseURL      string
	LocalAPIKey       string
	LocalProbeTimeout time.Duration

	Logger     *zap.Logger
	Registerer prometheus.Registerer
	Middleware []Middleware

	// NewAdapter overrides adapter construction. Credential checks still
	// happen before it is called. Adapters it returns that implement Closer
	// are closed by Client.Close.
	NewAdapter AdapterFactory
}

// DefaultConfig returns a Config with every default filled in and no
// credentials.
func DefaultConfig() Config {
	return Config{
		Priority:          append([]string(nil), DefaultPriority...),
		Credentials:       map[ProviderIdentity]string{},
		LocalBaseURL:      DefaultLocalBaseURL,
		LocalAPIKey:       DefaultLocalAPIKey,
		LocalProbeTimeout: DefaultLocalProbeTimeout,
		Logger:            zap.NewNop(),
	}
}

// withDefaults fills zero fields from DefaultConfig without touching the
// caller's copy.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Priority) == 0 {
		c.Priority = d.Priority
	} else {
		c.Priority = append([]string(nil), c.Priority...)
	}
	if c.LocalBaseURL == "" {
		c.LocalBaseURL = d.LocalBaseURL
	}
	if c.LocalAPIKey == "" {
		c.LocalAPIKey = d.LocalAPIKey
	}
	if c.LocalProbeTimeout <= 0 {
		c.LocalProbeTimeout = d.LocalProbeTimeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ConfigFromEnv builds a Config from environment variables using lookup.
// A nil lookup reads the process environment.
func ConfigFromEnv(lookup LookupFunc) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()
	applyEnv(&cfg, lookup, CredentialEnvVars)
	return cfg
}

func applyEnv(cfg *Config, lookup LookupFunc, credentialVars map[ProviderIdentity]string) {
	for provider, name := range credentialVars {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			cfg.Credentials[provider] = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(envPriority); ok {
		if p := ParsePriority(v); len(p) > 0 {
			cfg.Priority = p
		}
	}
	if v, ok := lookup(envLocalBaseURL); ok && v != "" {
		cfg.LocalBaseURL = v
	}
	if v, ok := lookup(envLocalAPIKey); ok && v != "" {
		cfg.LocalAPIKey = v
	}
}

// ParsePriority splits a comma-separated list of model specifiers.
func ParsePriority(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fileConfig is the YAML layout read by LoadConfigFile. Secrets are never
// stored in the file; credential_env only renames the variables to read.
type fileConfig struct {
	Priority          []string          `yaml:"priority"`
	LocalBaseURL      string            `yaml:"local_base_url"`
	LocalAPIKey       string            `yaml:"local_api_key"`
	LocalProbeTimeout time.Duration     `yaml:"local_probe_timeout"`
	CredentialEnv     map[string]string `yaml:"credential_env"`
}

// LoadConfigFile reads a YAML config file and resolves credentials through
// lookup. Environment settings override the file.
func LoadConfigFile(path string, lookup LookupFunc) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigurationError{SDKError{Message: "read config file", Cause: err}}
	}
	return ParseConfig(data, lookup)
}

// ParseConfig is LoadConfigFile for data already in memory.
func ParseConfig(data []byte, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, &ConfigurationError{SDKError{Message: "parse config file", Cause: err}}
	}

	cfg := DefaultConfig()
	if len(fc.Priority) > 0 {
		cfg.Priority = fc.Priority
	}
	if fc.LocalBaseURL != "" {
		cfg.LocalBaseURL = fc.LocalBaseURL
	}
	if fc.LocalAPIKey != "" {
		cfg.LocalAPIKey = fc.LocalAPIKey
	}
	if fc.LocalProbeTimeout > 0 {
		cfg.LocalProbeTimeout = fc.LocalProbeTimeout
	}

	vars := make(map[ProviderIdentity]string, len(CredentialEnvVars))
	for p, name := range CredentialEnvVars {
		vars[p] = name
	}
	for p, name := range fc.CredentialEnv {
		provider := ProviderIdentity(strings.ToLower(p))
		if _, known := CredentialEnvVars[provider]; !known {
			return Config{}, &ConfigurationError{SDKError{Message: fmt.Sprintf("credential_env: unknown provider %q", p)}}
		}
		vars[provider] = name
	}
	applyEnv(&cfg, lookup, vars)
	return cfg, nil
}
