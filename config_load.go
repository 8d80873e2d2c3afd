package llmrouter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/radlab/llm-router/internal/strategies"
)

// envPrefix is prepended to every environment variable the router reads.
const envPrefix = "LLM_ROUTER_"

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). Values start from
// DefaultConfig; environment variables are applied on top by
// ConfigFromEnv.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ConfigFromEnv builds a Config from defaults plus the LLM_ROUTER_*
// environment variables. When base is non-nil the environment overrides it
// instead of the defaults.
func ConfigFromEnv(base *Config) Config {
	cfg := DefaultConfig()
	if base != nil {
		cfg = *base
	}

	envInt(&cfg.ServerPort, "SERVER_PORT")
	envStr(&cfg.EndpointPrefix, "EP_PREFIX")
	envStr(&cfg.ModelsConfig, "MODELS_CONFIG")
	envStr(&cfg.PromptsDir, "PROMPTS_DIR")
	envStr(&cfg.DefaultLanguage, "DEFAULT_LANGUAGE")
	envList(&cfg.Languages, "LANGUAGES")
	envInt(&cfg.ExternalTimeoutSec, "EXTERNAL_TIMEOUT")
	envStr(&cfg.BalanceStrategy, "BALANCE_STRATEGY")

	envStr(&cfg.Redis.Host, "REDIS_HOST")
	envInt(&cfg.Redis.Port, "REDIS_PORT")
	envInt(&cfg.Redis.DB, "REDIS_DB")
	envStr(&cfg.Redis.Password, "REDIS_PASSWORD")

	envBool(&cfg.ForceMasking, "FORCE_MASKING")
	envBool(&cfg.ForceGuardrailRequest, "FORCE_GUARDRAIL_REQUEST")
	envBool(&cfg.ForceGuardrailResponse, "FORCE_GUARDRAIL_RESPONSE")
	envBool(&cfg.AuditMasking, "AUDIT_MASKING")
	envBool(&cfg.AuditGuardrail, "AUDIT_GUARDRAIL")
	envStr(&cfg.AuditDB, "AUDIT_DB_PATH")

	envBool(&cfg.UsePrometheus, "USE_PROMETHEUS")
	envInt(&cfg.KeepAliveIntervalSec, "KEEPALIVE_INTERVAL")
	envBool(&cfg.KeepAliveClearBuffers, "KEEPALIVE_CLEAR_BUFFERS")
	envInt(&cfg.ProviderMonitorIntervalSec, "PROVIDER_MONITOR_INTERVAL")
	envBool(&cfg.Minimum, "MINIMUM")

	// Pipeline variables name registered hook factories, comma separated.
	var maskers, guardrails []string
	envList(&maskers, "MASKING_STRATEGY_PIPELINE")
	envList(&guardrails, "GUARDRAIL_STRATEGY_PIPELINE")
	for _, name := range maskers {
		cfg.Hooks = append(cfg.Hooks, HookConfig{Name: name, Stage: StageMasker, Enabled: true})
	}
	for _, name := range guardrails {
		cfg.Hooks = append(cfg.Hooks, HookConfig{Name: name, Stage: StageGuardrailRequest, Enabled: true})
	}

	return cfg
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return fmt.Errorf("server_port %d is out of range", cfg.ServerPort)
	}
	if !strings.HasPrefix(cfg.EndpointPrefix, "/") {
		return fmt.Errorf("endpoint_prefix %q must start with /", cfg.EndpointPrefix)
	}
	if cfg.ModelsConfig == "" {
		return fmt.Errorf("models_config path is required")
	}
	if cfg.DefaultLanguage == "" {
		return fmt.Errorf("default_language is required")
	}
	if len(cfg.Languages) > 0 {
		found := false
		for _, l := range cfg.Languages {
			if l == cfg.DefaultLanguage {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("default_language %q is not in languages", cfg.DefaultLanguage)
		}
	}
	if cfg.ExternalTimeoutSec <= 0 {
		return fmt.Errorf("external_timeout must be positive")
	}

	switch cfg.BalanceStrategy {
	case strategies.NameBalanced, strategies.NameWeighted, strategies.NameDynamicWeighted,
		strategies.NameFirstAvailable, strategies.NameFirstAvailableOptim:
	default:
		return fmt.Errorf("unknown balance_strategy: %q", cfg.BalanceStrategy)
	}
	if strategies.RequiresStore(cfg.BalanceStrategy) && cfg.Redis.Host == "" {
		return fmt.Errorf("balance_strategy %q requires redis.host", cfg.BalanceStrategy)
	}

	for _, h := range cfg.Hooks {
		if h.Name == "" {
			return fmt.Errorf("hook with empty name")
		}
		switch h.Stage {
		case StageMasker, StageGuardrailRequest, StageGuardrailResponse:
		default:
			return fmt.Errorf("hook %q has unknown stage %q", h.Name, h.Stage)
		}
	}
	return nil
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envBool(dst *bool, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func envList(dst *[]string, key string) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
