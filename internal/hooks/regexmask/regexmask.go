// Package regexmask provides a masking rule engine that replaces regex
// matches in message contents with placeholder tokens. Register it with a
// blank import:
//
//	_ "github.com/radlab/llm-router/internal/hooks/regexmask"
package regexmask

import (
	"context"
	"fmt"
	"regexp"

	"github.com/radlab/llm-router/hook"
)

func init() {
	hook.RegisterMaskerFactory("regex_mask", func() hook.Masker {
		return &RegexMask{rules: defaultRules()}
	})
}

type rule struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

func defaultRules() []rule {
	return []rule{
		{
			name:        "email",
			pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			replacement: "[EMAIL]",
		},
		{
			name:        "phone",
			pattern:     regexp.MustCompile(`(?:\+\d{2}[ \-]?)?\d{3}[ \-]?\d{3}[ \-]?\d{3}\b`),
			replacement: "[PHONE]",
		},
		{
			name:        "national_id",
			pattern:     regexp.MustCompile(`\b\d{11}\b`),
			replacement: "[ID]",
		},
	}
}

// RegexMask rewrites message contents by replacing rule matches with their
// placeholder tokens.
type RegexMask struct {
	rules []rule
}

// Name returns the masker identifier.
func (m *RegexMask) Name() string { return "regex_mask" }

// Init adds custom rules from config. Each entry of "rules" is a map with
// "name", "pattern" and "replacement".
func (m *RegexMask) Init(config map[string]any) error {
	raw, ok := config["rules"].([]any)
	if !ok {
		return nil
	}
	for _, r := range raw {
		spec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		name, _ := spec["name"].(string)
		pattern, _ := spec["pattern"].(string)
		replacement, _ := spec["replacement"].(string)
		if pattern == "" {
			return fmt.Errorf("masking rule %q has no pattern", name)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("masking rule %q: %w", name, err)
		}
		m.rules = append(m.rules, rule{name: name, pattern: re, replacement: replacement})
	}
	return nil
}

// Mask rewrites every string message content in place and reports which
// rules fired.
func (m *RegexMask) Mask(_ context.Context, envelope map[string]any) (map[string]any, *hook.AuditRecord, error) {
	messages, ok := envelope["messages"].([]any)
	if !ok {
		return envelope, nil, nil
	}

	hits := map[string]int{}
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content, ok := msg["content"].(string)
		if !ok {
			continue
		}
		for _, r := range m.rules {
			n := len(r.pattern.FindAllStringIndex(content, -1))
			if n == 0 {
				continue
			}
			hits[r.name] += n
			content = r.pattern.ReplaceAllString(content, r.replacement)
		}
		msg["content"] = content
	}

	if len(hits) == 0 {
		return envelope, nil, nil
	}
	payload := map[string]any{"rule_hits": map[string]any{}}
	for name, n := range hits {
		payload["rule_hits"].(map[string]any)[name] = n
	}
	return envelope, &hook.AuditRecord{AuditType: "masking", Payload: payload}, nil
}
