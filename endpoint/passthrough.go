package endpoint

import (
	"context"
	"net/http"

	"github.com/radlab/llm-router/catalog"
)

// Passthrough relays the client payload to the selected provider without
// reshaping it. With no required parameters the engine runs it in
// simple-proxy mode: body and status come back verbatim.
type Passthrough struct {
	name     string
	path     string
	op       Operation
	stream   bool
	apiTypes []catalog.APIType
}

func (p Passthrough) Descriptor() Descriptor {
	return Descriptor{
		Name:             p.name,
		Path:             p.path,
		Method:           http.MethodPost,
		APITypes:         p.apiTypes,
		DontAddAPIPrefix: true,
		DefaultStream:    p.stream,
		Operation:        p.op,
	}
}

func (Passthrough) PreparePayload(_ context.Context, _ *Call) error { return nil }

// ChatPassthroughs returns the OpenAI, vLLM, Ollama and LM Studio
// compatible chat surfaces.
func ChatPassthroughs() []Handler {
	return []Handler{
		Passthrough{name: "chat_completions", path: "/chat/completions", op: OpChat, stream: true},
		Passthrough{name: "v1_chat_completions", path: "/v1/chat/completions", op: OpChat, stream: true},
		Passthrough{name: "api_chat_completions", path: "/api/chat/completions", op: OpChat, stream: true},
		Passthrough{name: "api_chat", path: "/api/chat", op: OpChat, stream: true},
		Passthrough{
			name:     "v1_responses",
			path:     "/v1/responses",
			op:       OpChat,
			apiTypes: []catalog.APIType{catalog.APITypeOpenAI, catalog.APITypeVLLM},
		},
	}
}

// EmbeddingsPassthroughs returns the embeddings surfaces. Embeddings never
// stream.
func EmbeddingsPassthroughs() []Handler {
	return []Handler{
		Passthrough{name: "api_embeddings", path: "/api/embeddings", op: OpEmbeddings},
		Passthrough{name: "v1_embeddings", path: "/v1/embeddings", op: OpEmbeddings},
		Passthrough{name: "api_embed", path: "/api/embed", op: OpEmbeddings},
	}
}
