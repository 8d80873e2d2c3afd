// Package endpoint implements the request dispatch pipeline: endpoint
// descriptors, the lifecycle engine that validates, rewrites and relays
// requests, and the built-in endpoints the router ships with.
//
// A concrete endpoint is a Handler: a static Descriptor plus a
// PreparePayload transformation. The engine owns everything around it —
// parsing, validation, masking and guardrail hooks, system prompt
// injection, provider selection, the upstream call and the response relay.
package endpoint

import (
	"context"
	"time"

	"github.com/radlab/llm-router/catalog"
)

// Operation selects which upstream dialect path an endpoint targets.
type Operation int

const (
	OpChat Operation = iota
	OpEmbeddings
)

// Descriptor is the static declaration of one endpoint.
type Descriptor struct {
	// Name identifies the endpoint in logs and metrics.
	Name string
	// Path is relative to the global prefix unless DontAddAPIPrefix is
	// set, in which case it is served as given.
	Path   string
	Method string
	// APITypes restricts which provider dialects the endpoint may
	// target. Empty means any known dialect.
	APITypes []catalog.APIType
	// Required and Optional declare the endpoint's parameters. An
	// endpoint with no required parameters runs in simple-proxy mode:
	// the client payload is forwarded unchanged.
	Required []string
	Optional []string
	// SystemPromptNames maps a language to the prompt id injected as the
	// system message. The key "*" matches any language.
	SystemPromptNames map[string]string
	// DirectReturn short-circuits after PreparePayload: the prepared
	// payload goes back to the client without an upstream call.
	DirectReturn bool
	// CallForEachUserMsg fans the request out into one upstream call per
	// user message. The handler must implement Aggregator.
	CallForEachUserMsg bool
	// DontAddAPIPrefix opts the path out of the global prefix.
	DontAddAPIPrefix bool
	// DefaultStream is the stream setting applied when the request does
	// not carry one.
	DefaultStream bool
	Operation     Operation
}

// Handler is a concrete endpoint.
type Handler interface {
	Descriptor() Descriptor
	// PreparePayload transforms the parsed envelope into its
	// upstream-ready form. Setting call.Envelope["status"] = false makes
	// the pipeline return the envelope verbatim without calling
	// upstream.
	PreparePayload(ctx context.Context, call *Call) error
}

// Aggregator combines the sub-responses of a multi-shot endpoint into the
// final response body. contents holds the extracted completion text of
// each sub-response, in request order.
type Aggregator interface {
	AggregateResponses(call *Call, responses []map[string]any, contents []string) (map[string]any, error)
}

// Call carries one request through the pipeline.
type Call struct {
	// Envelope is the parsed request payload. The endpoint owns it from
	// parse until response emission.
	Envelope map[string]any
	// Language resolved from the request or the configured default.
	Language string
	// Model is the catalog model name the request targets.
	Model string

	// MapPrompt holds placeholder substitutions applied to the system
	// prompt, e.g. "##QUESTION_STR##" -> the user's question.
	MapPrompt map[string]string
	// PromptStrForce, when set, is used verbatim as the system prompt.
	PromptStrForce string
	// PromptStrPostfix is appended to the resolved system prompt.
	PromptStrPostfix string

	// Meta is endpoint-private state shared between PreparePayload and
	// AggregateResponses.
	Meta map[string]any

	// Raw, when set by a direct-return endpoint, is written to the client
	// as-is instead of the JSON envelope.
	Raw            []byte
	RawContentType string

	started time.Time
}

// Elapsed returns the time since the pipeline accepted the request.
func (c *Call) Elapsed() time.Duration {
	return time.Since(c.started)
}

// StringArg returns a string-valued envelope key.
func (c *Call) StringArg(name string) string {
	s, _ := c.Envelope[name].(string)
	return s
}

// IntArg returns an integer-valued envelope key, accepting JSON numbers.
func (c *Call) IntArg(name string, def int) int {
	switch v := c.Envelope[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// Consume removes an endpoint-level argument from the envelope so it does
// not leak upstream, returning its value.
func (c *Call) Consume(name string) any {
	v, ok := c.Envelope[name]
	if ok {
		delete(c.Envelope, name)
	}
	return v
}
