// Package wordguard provides a word-list guardrail that blocks requests
// containing configured words or phrases. Register it with a blank import:
//
//	_ "github.com/radlab/llm-router/internal/hooks/wordguard"
package wordguard

import (
	"context"
	"strings"

	"github.com/radlab/llm-router/hook"
)

func init() {
	hook.RegisterGuardrailFactory("word_guard", func() hook.Guardrail {
		return &WordGuard{}
	})
}

// WordGuard blocks envelopes whose message contents contain a configured
// word or phrase.
type WordGuard struct {
	blockedWords  []string
	caseSensitive bool
}

// Name returns the guardrail identifier.
func (w *WordGuard) Name() string { return "word_guard" }

// Init configures the guardrail from the provided options map.
func (w *WordGuard) Init(config map[string]any) error {
	if words, ok := config["blocked_words"]; ok {
		switch list := words.(type) {
		case []any:
			for _, word := range list {
				if s, ok := word.(string); ok {
					w.blockedWords = append(w.blockedWords, s)
				}
			}
		case []string:
			w.blockedWords = append(w.blockedWords, list...)
		}
	}
	if cs, ok := config["case_sensitive"].(bool); ok {
		w.caseSensitive = cs
	}
	return nil
}

// Inspect scans every message content for blocked words.
func (w *WordGuard) Inspect(_ context.Context, envelope map[string]any) (hook.Verdict, error) {
	if len(w.blockedWords) == 0 {
		return hook.Verdict{Allow: true}, nil
	}

	for _, content := range hook.MessageContents(envelope) {
		if !w.caseSensitive {
			content = strings.ToLower(content)
		}
		for _, word := range w.blockedWords {
			check := word
			if !w.caseSensitive {
				check = strings.ToLower(check)
			}
			if strings.Contains(content, check) {
				return hook.Verdict{Allow: false, Reason: "blocked word detected: " + word}, nil
			}
		}
	}
	return hook.Verdict{Allow: true}, nil
}
