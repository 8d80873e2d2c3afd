// Package lengthguard provides a guardrail that caps request size: the
// max_tokens field, the message count and the total input length. Register
// it with a blank import:
//
//	_ "github.com/radlab/llm-router/internal/hooks/lengthguard"
package lengthguard

import (
	"context"
	"fmt"

	"github.com/radlab/llm-router/hook"
)

func init() {
	hook.RegisterGuardrailFactory("length_guard", func() hook.Guardrail {
		return &LengthGuard{}
	})
}

// LengthGuard enforces request size limits before the upstream call.
type LengthGuard struct {
	maxTokens   int
	maxMessages int
	maxInputLen int
}

// Name returns the guardrail identifier.
func (g *LengthGuard) Name() string { return "length_guard" }

// Init configures the guardrail from the provided options map.
func (g *LengthGuard) Init(config map[string]any) error {
	g.maxTokens = intOption(config, "max_tokens", 4096)
	g.maxMessages = intOption(config, "max_messages", 100)
	g.maxInputLen = intOption(config, "max_input_length", 0) // 0 = no limit
	return nil
}

// Inspect checks the envelope against the configured limits.
func (g *LengthGuard) Inspect(_ context.Context, envelope map[string]any) (hook.Verdict, error) {
	if requested, ok := envelopeMaxTokens(envelope); ok && requested > g.maxTokens {
		return hook.Verdict{
			Allow:  false,
			Reason: fmt.Sprintf("max_tokens %d exceeds limit of %d", requested, g.maxTokens),
		}, nil
	}

	contents := hook.MessageContents(envelope)
	if len(contents) > g.maxMessages {
		return hook.Verdict{
			Allow:  false,
			Reason: fmt.Sprintf("message count %d exceeds limit of %d", len(contents), g.maxMessages),
		}, nil
	}

	if g.maxInputLen > 0 {
		total := 0
		for _, c := range contents {
			total += len(c)
		}
		if total > g.maxInputLen {
			return hook.Verdict{
				Allow:  false,
				Reason: fmt.Sprintf("total input length %d exceeds limit of %d", total, g.maxInputLen),
			}, nil
		}
	}
	return hook.Verdict{Allow: true}, nil
}

func envelopeMaxTokens(envelope map[string]any) (int, bool) {
	for _, key := range []string{"max_tokens", "max_new_tokens"} {
		switch v := envelope[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		}
	}
	return 0, false
}

func intOption(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
