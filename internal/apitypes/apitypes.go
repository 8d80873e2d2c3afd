// Package apitypes maps a provider's api_type tag to the URL paths and HTTP
// methods of its wire dialect. This table is the only place the router
// hardcodes upstream dialects.
package apitypes

import (
	"fmt"
	"net/http"

	"github.com/radlab/llm-router/catalog"
)

// Framing identifies how an upstream frames its streamed responses.
type Framing int

const (
	// FramingSSE is "data: {...}\n\n" server-sent events terminated by
	// "data: [DONE]".
	FramingSSE Framing = iota
	// FramingNDJSON is one JSON object per line, terminated by an object
	// with "done": true.
	FramingNDJSON
)

// Spec describes the request surface of one api_type.
type Spec struct {
	ChatPath          string
	ChatMethod        string
	CompletionsPath   string
	CompletionsMethod string
	EmbeddingsPath    string
	StreamFraming     Framing
}

// ErrUnknown is returned for api_type tags outside the dialect table.
var ErrUnknown = fmt.Errorf("unknown api_type")

var table = map[catalog.APIType]Spec{
	catalog.APITypeOpenAI: {
		ChatPath:          "/v1/chat/completions",
		ChatMethod:        http.MethodPost,
		CompletionsPath:   "/v1/completions",
		CompletionsMethod: http.MethodPost,
		EmbeddingsPath:    "/v1/embeddings",
		StreamFraming:     FramingSSE,
	},
	catalog.APITypeVLLM: {
		ChatPath:          "/v1/chat/completions",
		ChatMethod:        http.MethodPost,
		CompletionsPath:   "/v1/completions",
		CompletionsMethod: http.MethodPost,
		EmbeddingsPath:    "/v1/embeddings",
		StreamFraming:     FramingSSE,
	},
	catalog.APITypeOllama: {
		ChatPath:          "/api/chat",
		ChatMethod:        http.MethodPost,
		CompletionsPath:   "/api/generate",
		CompletionsMethod: http.MethodPost,
		EmbeddingsPath:    "/api/embed",
		StreamFraming:     FramingNDJSON,
	},
	catalog.APITypeLMStudio: {
		ChatPath:          "/api/v0/chat/completions",
		ChatMethod:        http.MethodPost,
		CompletionsPath:   "/api/v0/completions",
		CompletionsMethod: http.MethodPost,
		EmbeddingsPath:    "/api/v0/embeddings",
		StreamFraming:     FramingSSE,
	},
	// builtin endpoints post-process locally and never reach an upstream.
	catalog.APITypeBuiltin: {},
}

// Resolve returns the dialect spec for an api_type tag.
func Resolve(t catalog.APIType) (Spec, error) {
	s, ok := table[t]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknown, t)
	}
	return s, nil
}

// Known reports whether t appears in the dialect table.
func Known(t catalog.APIType) bool {
	_, ok := table[t]
	return ok
}
