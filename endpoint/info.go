package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/radlab/llm-router/catalog"
)

// Ping answers liveness probes.
type Ping struct{}

func (Ping) Descriptor() Descriptor {
	return Descriptor{
		Name:             "ping",
		Path:             "/ping",
		Method:           http.MethodGet,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (Ping) PreparePayload(_ context.Context, call *Call) error {
	call.Raw = []byte("pong")
	call.RawContentType = "text/plain; charset=utf-8"
	return nil
}

// Root mimics Ollama's health banner so Ollama clients accept the router
// as their server.
type Root struct{}

func (Root) Descriptor() Descriptor {
	return Descriptor{
		Name:             "root",
		Path:             "/",
		Method:           http.MethodGet,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (Root) PreparePayload(_ context.Context, call *Call) error {
	call.Raw = []byte("Ollama is running")
	call.RawContentType = "text/plain; charset=utf-8"
	return nil
}

// Version reports the router build version.
type Version struct {
	BuildVersion string
}

func (Version) Descriptor() Descriptor {
	return Descriptor{
		Name:             "version",
		Path:             "/version",
		Method:           http.MethodGet,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (v Version) PreparePayload(_ context.Context, call *Call) error {
	call.Envelope = map[string]any{"version": v.BuildVersion}
	return nil
}

// OllamaTags lists the active models in Ollama's /api/tags shape.
type OllamaTags struct {
	Catalog *catalog.Catalog
}

func (OllamaTags) Descriptor() Descriptor {
	return Descriptor{
		Name:             "ollama_tags",
		Path:             "/tags",
		Method:           http.MethodGet,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (t OllamaTags) PreparePayload(_ context.Context, call *Call) error {
	models := make([]map[string]any, 0)
	for _, name := range t.Catalog.ActiveModels() {
		models = append(models, map[string]any{
			"name":        name,
			"model":       name,
			"modified_at": time.Now().UTC().Format(time.RFC3339),
			"size":        0,
		})
	}
	call.Envelope = map[string]any{"models": models}
	return nil
}

// OpenAIModels lists the active models in OpenAI's /v1/models shape.
type OpenAIModels struct {
	Catalog *catalog.Catalog
}

func (OpenAIModels) Descriptor() Descriptor {
	return Descriptor{
		Name:             "openai_models",
		Path:             "/models",
		Method:           http.MethodGet,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (m OpenAIModels) PreparePayload(_ context.Context, call *Call) error {
	data := make([]map[string]any, 0)
	for _, name := range m.Catalog.ActiveModels() {
		data = append(data, map[string]any{
			"id":       name,
			"object":   "model",
			"owned_by": "llm-router",
		})
	}
	call.Envelope = map[string]any{"object": "list", "data": data}
	return nil
}

// LMStudioModels lists the active models in LM Studio's /api/v0/models
// shape.
type LMStudioModels struct {
	Catalog *catalog.Catalog
}

func (LMStudioModels) Descriptor() Descriptor {
	return Descriptor{
		Name:             "lmstudio_models",
		Path:             "/api/v0/models",
		Method:           http.MethodPost,
		DirectReturn:     true,
		DontAddAPIPrefix: true,
	}
}

func (m LMStudioModels) PreparePayload(_ context.Context, call *Call) error {
	data := make([]map[string]any, 0)
	for _, name := range m.Catalog.ActiveModels() {
		data = append(data, map[string]any{
			"id":     name,
			"object": "llm",
			"type":   "llm",
			"state":  "loaded",
		})
	}
	call.Envelope = map[string]any{"object": "list", "data": data}
	return nil
}

// Builtin returns every endpoint the router ships with, in mount order.
func Builtin(cat *catalog.Catalog, version string) []Handler {
	handlers := []Handler{
		Conversation{},
		ExtendedConversation{},
		GenerativeAnswer{},
		GenerateQuestions{},
		NewTranslate(),
		NewSimplifyText(),
		NewGenerateArticle(),
		FullArticle{},
		BatchFileSummaries{},
	}
	handlers = append(handlers, ChatPassthroughs()...)
	handlers = append(handlers, EmbeddingsPassthroughs()...)
	handlers = append(handlers,
		Ping{},
		Root{},
		Version{BuildVersion: version},
		OllamaTags{Catalog: cat},
		OpenAIModels{Catalog: cat},
		LMStudioModels{Catalog: cat},
	)
	return handlers
}
