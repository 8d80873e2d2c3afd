package llmrouter

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server_port: 9090
endpoint_prefix: /llm
balance_strategy: first_available
external_timeout: 60
redis:
  host: redis.local
  port: 6380
  db: 2
hooks:
  - name: regex_mask
    stage: masker
    enabled: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != 9090 || cfg.EndpointPrefix != "/llm" {
		t.Errorf("server settings = %d %q", cfg.ServerPort, cfg.EndpointPrefix)
	}
	if cfg.BalanceStrategy != "first_available" {
		t.Errorf("strategy = %q", cfg.BalanceStrategy)
	}
	if cfg.Redis.Host != "redis.local" || cfg.Redis.Port != 6380 || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.ExternalTimeout() != time.Minute {
		t.Errorf("timeout = %v", cfg.ExternalTimeout())
	}
	// Defaults survive partial files.
	if cfg.DefaultLanguage != "pl" || cfg.PromptsDir != "resources/prompts" {
		t.Errorf("defaults lost: %q %q", cfg.DefaultLanguage, cfg.PromptsDir)
	}
	if len(cfg.Hooks) != 1 || cfg.Hooks[0].Name != "regex_mask" || cfg.Hooks[0].Stage != StageMasker {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"server_port": 8888, "balance_strategy": "weighted"}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != 8888 || cfg.BalanceStrategy != "weighted" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "config.toml", "x = 1")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LLM_ROUTER_SERVER_PORT", "7001")
	t.Setenv("LLM_ROUTER_EP_PREFIX", "/gateway")
	t.Setenv("LLM_ROUTER_BALANCE_STRATEGY", "dynamic_weighted")
	t.Setenv("LLM_ROUTER_REDIS_HOST", "10.0.0.5")
	t.Setenv("LLM_ROUTER_FORCE_MASKING", "true")
	t.Setenv("LLM_ROUTER_USE_PROMETHEUS", "1")
	t.Setenv("LLM_ROUTER_LANGUAGES", "pl, en ,de")
	t.Setenv("LLM_ROUTER_MASKING_STRATEGY_PIPELINE", "regex_mask")
	t.Setenv("LLM_ROUTER_MINIMUM", "true")
	t.Setenv("LLM_ROUTER_PROVIDER_MONITOR_INTERVAL", "45")

	cfg := ConfigFromEnv(nil)
	if cfg.ServerPort != 7001 || cfg.EndpointPrefix != "/gateway" {
		t.Errorf("server settings = %d %q", cfg.ServerPort, cfg.EndpointPrefix)
	}
	if cfg.BalanceStrategy != "dynamic_weighted" || cfg.Redis.Host != "10.0.0.5" {
		t.Errorf("routing settings = %q %q", cfg.BalanceStrategy, cfg.Redis.Host)
	}
	if !cfg.ForceMasking || !cfg.UsePrometheus || !cfg.Minimum {
		t.Error("boolean toggles not applied")
	}
	if len(cfg.Languages) != 3 || cfg.Languages[2] != "de" {
		t.Errorf("languages = %v", cfg.Languages)
	}
	if len(cfg.Hooks) != 1 || cfg.Hooks[0].Name != "regex_mask" || !cfg.Hooks[0].Enabled {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
	if cfg.ProviderMonitorIntervalSec != 45 {
		t.Errorf("provider monitor interval = %d", cfg.ProviderMonitorIntervalSec)
	}
	// Untouched values keep their defaults.
	if cfg.ExternalTimeoutSec != 300 {
		t.Errorf("external timeout = %d", cfg.ExternalTimeoutSec)
	}
}

func TestConfigFromEnvOverridesFile(t *testing.T) {
	t.Setenv("LLM_ROUTER_SERVER_PORT", "7002")
	base := DefaultConfig()
	base.ServerPort = 9000
	base.DefaultLanguage = "en"

	cfg := ConfigFromEnv(&base)
	if cfg.ServerPort != 7002 {
		t.Errorf("env should win: port = %d", cfg.ServerPort)
	}
	if cfg.DefaultLanguage != "en" {
		t.Errorf("file value lost: language = %q", cfg.DefaultLanguage)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := DefaultConfig()
	if err := ValidateConfig(valid); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.ServerPort = 0 }},
		{"bad prefix", func(c *Config) { c.EndpointPrefix = "api" }},
		{"no catalog", func(c *Config) { c.ModelsConfig = "" }},
		{"no language", func(c *Config) { c.DefaultLanguage = "" }},
		{"default not in languages", func(c *Config) { c.DefaultLanguage = "de" }},
		{"bad timeout", func(c *Config) { c.ExternalTimeoutSec = 0 }},
		{"unknown strategy", func(c *Config) { c.BalanceStrategy = "round_robin" }},
		{"locking strategy without redis", func(c *Config) { c.BalanceStrategy = "first_available" }},
		{"bad hook stage", func(c *Config) {
			c.Hooks = []HookConfig{{Name: "x", Stage: "before", Enabled: true}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
