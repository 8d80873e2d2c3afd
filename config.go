package llmrouter

import "time"

// Config holds the configuration for the LLM router.
type Config struct {
	// ServerPort is the HTTP listen port.
	ServerPort int `json:"server_port" yaml:"server_port"`
	// EndpointPrefix is the path prefix for the built-in API endpoints
	// (dialect-compatibility routes opt out of it).
	EndpointPrefix string `json:"endpoint_prefix" yaml:"endpoint_prefix"`

	// ModelsConfig is the path to the model catalog file.
	ModelsConfig string `json:"models_config" yaml:"models_config"`
	// PromptsDir is the root of the system prompt file tree.
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`

	// DefaultLanguage is applied when a request carries no language.
	DefaultLanguage string `json:"default_language" yaml:"default_language"`
	// Languages lists the accepted language codes.
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// ExternalTimeoutSec bounds the upstream leg of every request, in
	// seconds. Provider locks live this long plus a grace period.
	ExternalTimeoutSec int `json:"external_timeout" yaml:"external_timeout"`
	// BalanceStrategy selects the provider selection strategy.
	BalanceStrategy string `json:"balance_strategy" yaml:"balance_strategy"`

	// Redis configures the coordination store. An empty host disables it;
	// the first_available strategies then refuse to start.
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// ForceMasking runs the masker pipeline on every request, not only on
	// those asking for it via mask_payload.
	ForceMasking bool `json:"force_masking" yaml:"force_masking"`
	// ForceGuardrailRequest and ForceGuardrailResponse enable the guardrail
	// stages.
	ForceGuardrailRequest  bool `json:"force_guardrail_request" yaml:"force_guardrail_request"`
	ForceGuardrailResponse bool `json:"force_guardrail_response" yaml:"force_guardrail_response"`

	// AuditMasking and AuditGuardrail persist audit records for the
	// respective stages.
	AuditMasking   bool `json:"audit_masking" yaml:"audit_masking"`
	AuditGuardrail bool `json:"audit_guardrail" yaml:"audit_guardrail"`
	// AuditDB selects the audit sink: a sqlite file path, or a
	// postgres:// DSN.
	AuditDB string `json:"audit_db,omitempty" yaml:"audit_db,omitempty"`

	// UsePrometheus mounts /metrics.
	UsePrometheus bool `json:"use_prometheus" yaml:"use_prometheus"`

	// KeepAliveIntervalSec is the keep-alive monitor check period in
	// seconds.
	KeepAliveIntervalSec int `json:"keepalive_interval" yaml:"keepalive_interval"`
	// KeepAliveClearBuffers purges stale keep-alive and availability state
	// on startup.
	KeepAliveClearBuffers bool `json:"keepalive_clear_buffers" yaml:"keepalive_clear_buffers"`

	// ProviderMonitorIntervalSec is the provider availability check period
	// in seconds.
	ProviderMonitorIntervalSec int `json:"provider_monitor_interval" yaml:"provider_monitor_interval"`

	// Minimum allows startup with missing optional infrastructure (store,
	// audit DB) instead of exiting.
	Minimum bool `json:"minimum" yaml:"minimum"`

	// Hooks configures the masker and guardrail pipelines.
	Hooks []HookConfig `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// RedisConfig locates the coordination store.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DB       int    `json:"db" yaml:"db"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// HookConfig holds one masker or guardrail instance.
type HookConfig struct {
	// Name is the registered factory name, e.g. "regex_mask".
	Name string `json:"name" yaml:"name"`
	// Stage is one of "masker", "guardrail_request", "guardrail_response".
	Stage   string         `json:"stage" yaml:"stage"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Hook stages accepted by HookConfig.
const (
	StageMasker            = "masker"
	StageGuardrailRequest  = "guardrail_request"
	StageGuardrailResponse = "guardrail_response"
)

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		ServerPort:           8080,
		EndpointPrefix:       "/api",
		ModelsConfig:         "resources/configs/models-config.json",
		PromptsDir:           "resources/prompts",
		DefaultLanguage:      "pl",
		Languages:            []string{"pl", "en"},
		ExternalTimeoutSec:   300,
		BalanceStrategy:      "balanced",
		Redis:                      RedisConfig{Port: 6379},
		KeepAliveIntervalSec:       1,
		ProviderMonitorIntervalSec: 30,
	}
}

// ExternalTimeout returns the upstream timeout as a duration.
func (c Config) ExternalTimeout() time.Duration {
	return time.Duration(c.ExternalTimeoutSec) * time.Second
}

// LockTTL is the provider lock lifetime: the upstream timeout plus grace.
func (c Config) LockTTL() time.Duration {
	return c.ExternalTimeout() + 5*time.Second
}

// KeepAliveInterval returns the monitor check period as a duration.
func (c Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalSec) * time.Second
}

// ProviderMonitorInterval returns the availability check period as a
// duration.
func (c Config) ProviderMonitorInterval() time.Duration {
	return time.Duration(c.ProviderMonitorIntervalSec) * time.Second
}
