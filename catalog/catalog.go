// Package catalog provides the model catalog — the loaded, queryable view
// of which models are active and which concrete upstream providers serve
// each of them.
//
// The catalog is loaded once at router startup from a JSON file. Load is a
// pure function of the input bytes: no network, no defaults pulled from the
// environment. Validation failures that would leave the router unable to
// serve a listed model are fatal at load time.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// APIType identifies the wire dialect a provider speaks.
type APIType string

const (
	APITypeOpenAI   APIType = "openai"
	APITypeVLLM     APIType = "vllm"
	APITypeOllama   APIType = "ollama"
	APITypeLMStudio APIType = "lmstudio"
	APITypeBuiltin  APIType = "builtin"
)

// ProviderSpec describes one concrete upstream inference endpoint.
type ProviderSpec struct {
	ID          string      `json:"id"`
	APIHost     string      `json:"api_host"`
	APIToken    string      `json:"api_token,omitempty"`
	APIType     APIType     `json:"api_type"`
	ModelPath   string      `json:"model_path,omitempty"`
	InputSize   IntOrString `json:"input_size"`
	Weight      float64     `json:"weight,omitempty"`
	KeepAlive   string      `json:"keep_alive,omitempty"`
	ToolCalling bool        `json:"tool_calling,omitempty"`
}

// Host returns the host:port part of the provider's api_host. It is the
// coarse "physical box" key used by host-affine strategies and keep-alive.
func (p ProviderSpec) Host() string {
	u, err := url.Parse(p.APIHost)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(p.APIHost, "/")
	}
	return u.Host
}

// EffectiveWeight returns the configured weight, defaulting to 1.0 when the
// catalog omits it or sets a non-positive value.
func (p ProviderSpec) EffectiveWeight() float64 {
	if p.Weight <= 0 {
		return 1.0
	}
	return p.Weight
}

// IntOrString accepts a JSON number or a numeric string.
type IntOrString int

func (v *IntOrString) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = IntOrString(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("input_size must be a number or numeric string, got %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("input_size %q is not numeric", s)
	}
	*v = IntOrString(n)
	return nil
}

func (v IntOrString) Int() int { return int(v) }

// Entry holds the provider lists for one model. Providers is the primary
// pool; SleepProviders is a reserved fallback pool no current strategy
// consults.
type Entry struct {
	Providers      []ProviderSpec `json:"providers"`
	SleepProviders []ProviderSpec `json:"providers_sleep,omitempty"`
}

// Catalog maps active model names to their entries.
type Catalog struct {
	entries map[string]Entry
	active  []string
}

type rawCatalog struct {
	ActiveModels map[string][]string `json:"active_models"`
}

// Load reads and validates the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON bytes.
//
// Rules: active_models is mandatory; every listed model must resolve to an
// entry inside its group; groups not referenced by active_models are
// ignored; duplicate provider ids across the catalog are a warning only,
// since (model, provider-id) is the real identity.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if raw.ActiveModels == nil {
		return nil, fmt.Errorf("catalog is missing the mandatory active_models section")
	}

	var groups map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse catalog groups: %w", err)
	}

	c := &Catalog{entries: make(map[string]Entry)}
	seenIDs := make(map[string]string)

	groupNames := make([]string, 0, len(raw.ActiveModels))
	for g := range raw.ActiveModels {
		groupNames = append(groupNames, g)
	}
	sort.Strings(groupNames)

	for _, group := range groupNames {
		rawGroup, ok := groups[group]
		if !ok {
			return nil, fmt.Errorf("active_models references group %q which is not defined", group)
		}
		var models map[string]Entry
		if err := json.Unmarshal(rawGroup, &models); err != nil {
			return nil, fmt.Errorf("parse group %q: %w", group, err)
		}
		for _, model := range raw.ActiveModels[group] {
			entry, ok := models[model]
			if !ok {
				return nil, fmt.Errorf("active model %q is not defined in group %q", model, group)
			}
			if _, dup := c.entries[model]; dup {
				return nil, fmt.Errorf("model %q is active in more than one group", model)
			}
			for _, p := range entry.Providers {
				if p.ID == "" {
					return nil, fmt.Errorf("model %q has a provider without an id", model)
				}
				if prev, dup := seenIDs[p.ID]; dup {
					slog.Warn("duplicate provider id in catalog",
						"id", p.ID, "model", model, "also_in", prev)
				}
				seenIDs[p.ID] = model
				if p.KeepAlive != "" {
					if _, err := ParseKeepAlive(p.KeepAlive); err != nil {
						return nil, fmt.Errorf("model %q provider %q: %w", model, p.ID, err)
					}
				}
			}
			c.entries[model] = entry
			c.active = append(c.active, model)
		}
	}
	sort.Strings(c.active)
	return c, nil
}

// ActiveModels returns the sorted list of models the router exposes.
func (c *Catalog) ActiveModels() []string {
	out := make([]string, len(c.active))
	copy(out, c.active)
	return out
}

// Entry looks up the provider entry for an active model.
func (c *Catalog) Entry(model string) (Entry, bool) {
	e, ok := c.entries[model]
	return e, ok
}

// Providers returns the primary provider list for a model, or nil when the
// model is not active.
func (c *Catalog) Providers(model string) []ProviderSpec {
	return c.entries[model].Providers
}

// ProviderByHost returns the first primary provider of model whose host
// matches host.
func (c *Catalog) ProviderByHost(model, host string) (ProviderSpec, bool) {
	for _, p := range c.entries[model].Providers {
		if p.Host() == host {
			return p, true
		}
	}
	return ProviderSpec{}, false
}

var keepAliveRe = regexp.MustCompile(`^(\d+)([smh])$`)

// ParseKeepAlive parses a catalog keep-alive string such as "30s", "45m" or
// "2h". Only these three units are accepted.
func ParseKeepAlive(s string) (time.Duration, error) {
	m := keepAliveRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid keep_alive %q: want <number>[smh]", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid keep_alive %q: %w", s, err)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	default:
		return time.Duration(n) * time.Hour, nil
	}
}
