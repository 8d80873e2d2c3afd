package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/radlab/llm-router/apierror"
	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/hook"
	"github.com/radlab/llm-router/internal/apitypes"
	"github.com/radlab/llm-router/internal/logging"
	"github.com/radlab/llm-router/internal/metrics"
	"github.com/radlab/llm-router/internal/prompts"
	"github.com/radlab/llm-router/internal/strategies"
)

// Engine executes the request lifecycle for every registered endpoint:
// parse, validate, mask, guard, prepare, select, call upstream, relay,
// release.
type Engine struct {
	Catalog *catalog.Catalog
	Chooser strategies.Chooser
	Hooks   *hook.Manager
	Prompts prompts.Repository
	Client  *http.Client

	// Timeout bounds the upstream leg of each request.
	Timeout time.Duration
	// DefaultLanguage is used when the request carries no language.
	DefaultLanguage string
	// Languages lists the accepted language codes.
	Languages []string

	ForceMasking           bool
	ForceGuardrailRequest  bool
	ForceGuardrailResponse bool
}

// lockRefresher is implemented by locking choosers so multi-shot endpoints
// can extend the provider lock between sub-requests.
type lockRefresher interface {
	Refresh(ctx context.Context, model string, p catalog.ProviderSpec) error
}

// Handle wraps a Handler into an http.HandlerFunc running the full
// lifecycle.
func (e *Engine) Handle(h Handler) http.HandlerFunc {
	desc := h.Descriptor()
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		model, err := e.serve(w, r, h, desc)

		status := "success"
		switch {
		case apierror.IsCode(err, apierror.CodeGuardrailBlocked):
			status = "blocked"
		case err != nil:
			status = "error"
		}
		metrics.RequestsTotal.WithLabelValues(desc.Name, model, status).Inc()
		metrics.RequestDuration.WithLabelValues(desc.Name, model).Observe(time.Since(start).Seconds())

		if err != nil {
			logging.FromContext(r.Context()).Warn("request failed",
				"endpoint", desc.Name, "model", model, "err", err)
			apierror.Write(w, err)
		}
	}
}

// serve runs steps 1-14 and returns the resolved model (for metrics) and
// the terminal error, if any. A nil error means the response has been
// written.
func (e *Engine) serve(w http.ResponseWriter, r *http.Request, h Handler, desc Descriptor) (string, error) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	call, err := e.parse(r)
	if err != nil {
		return "", err
	}

	// Step 2: required parameters.
	for _, name := range desc.Required {
		if v, ok := call.Envelope[name]; !ok || v == nil {
			return "", apierror.MissingParam(name)
		}
	}
	// Language is an argument only on endpoints that declare their own
	// parameters. Simple proxies relay the envelope untouched.
	if len(desc.Required) > 0 {
		if err := e.resolveLanguage(call); err != nil {
			return "", err
		}
	} else {
		call.Language = e.DefaultLanguage
	}

	// Step 3: masking pre-hook.
	maskRequested, _ := call.Envelope["mask_payload"].(bool)
	pipeline := stringSlice(call.Envelope["masker_pipeline"])
	delete(call.Envelope, "mask_payload")
	delete(call.Envelope, "masker_pipeline")
	if (e.ForceMasking || maskRequested) && e.Hooks != nil && e.Hooks.HasMaskers() {
		masked, err := e.Hooks.RunMaskers(ctx, call.Envelope, pipeline)
		if err != nil {
			return "", apierror.Internal(err)
		}
		call.Envelope = masked
	}

	// Step 4: request guardrails.
	if e.ForceGuardrailRequest && e.Hooks != nil && e.Hooks.HasRequestGuardrails() {
		verdict, name, err := e.Hooks.RunRequestGuardrails(ctx, call.Envelope)
		if err != nil {
			return "", apierror.Internal(err)
		}
		if !verdict.Allow {
			metrics.GuardrailBlocks.WithLabelValues("request", name).Inc()
			return "", apierror.GuardrailBlocked(verdict.Reason)
		}
	}

	// Step 5: the endpoint's own transformation.
	if err := h.PreparePayload(ctx, call); err != nil {
		return call.Model, err
	}
	if status, ok := call.Envelope["status"].(bool); ok && !status {
		return call.Model, writeJSON(w, http.StatusOK, call.Envelope)
	}

	// Step 6: direct return.
	if desc.DirectReturn {
		if call.Raw != nil {
			ct := call.RawContentType
			if ct == "" {
				ct = "application/json"
			}
			w.Header().Set("Content-Type", ct)
			w.WriteHeader(http.StatusOK)
			_, err := w.Write(call.Raw)
			return call.Model, err
		}
		return call.Model, writeJSON(w, http.StatusOK, call.Envelope)
	}

	// Step 7: system prompt.
	if err := e.injectSystemPrompt(call, desc); err != nil {
		return call.Model, err
	}

	// Step 8: provider selection.
	model := call.Model
	if model == "" {
		if model, _ = call.Envelope["model_name"].(string); model == "" {
			model, _ = call.Envelope["model"].(string)
		}
	}
	if model == "" {
		return "", apierror.MissingParam("model")
	}
	call.Model = model

	provider, err := e.Chooser.Choose(ctx, model, e.Catalog.Providers(model))
	if err != nil {
		return model, err
	}
	metrics.ProviderSelections.WithLabelValues(e.Chooser.Name(), model, provider.ID).Inc()
	log.Info("provider selected",
		"endpoint", desc.Name, "model", model,
		"provider", provider.ID, "strategy", e.Chooser.Name())

	// Step 14: release runs on every path out, including client
	// disconnect, hence the detached context.
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := e.Chooser.Release(context.WithoutCancel(ctx), model, provider); err != nil {
			log.Warn("provider release failed", "model", model, "provider", provider.ID, "err", err)
		}
	}
	defer release()

	// Step 9: api-type check.
	if len(desc.APITypes) > 0 && !supportsAPIType(desc.APITypes, provider.APIType) {
		return model, apierror.ApiTypeMismatch(desc.Name, string(provider.APIType))
	}
	dialect, err := apitypes.Resolve(provider.APIType)
	if err != nil {
		return model, apierror.ApiTypeMismatch(desc.Name, string(provider.APIType))
	}

	// Step 10: URL composition.
	path, method := dialect.ChatPath, dialect.ChatMethod
	if desc.Operation == OpEmbeddings {
		path, method = dialect.EmbeddingsPath, http.MethodPost
	}
	if path == "" {
		return model, apierror.ApiTypeMismatch(desc.Name, string(provider.APIType))
	}
	url := strings.TrimSuffix(provider.APIHost, "/") + path

	// The upstream model field: the provider's model_path when set,
	// otherwise the catalog name.
	upstreamModel := provider.ModelPath
	if upstreamModel == "" {
		upstreamModel = model
	}
	call.Envelope["model"] = upstreamModel
	delete(call.Envelope, "model_name")

	stream := desc.DefaultStream
	if v, ok := call.Envelope["stream"].(bool); ok {
		stream = v
	}
	if desc.CallForEachUserMsg && stream {
		log.Info("stream disabled for multi-shot endpoint", "endpoint", desc.Name)
		stream = false
	}
	if desc.Operation == OpEmbeddings {
		stream = false
	}
	if desc.Operation == OpChat {
		call.Envelope["stream"] = stream
	}

	upCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	// Steps 11-13.
	if desc.CallForEachUserMsg {
		return model, e.multiShot(upCtx, w, h, desc, call, provider, method, url)
	}
	if stream {
		return model, e.relayStream(upCtx, w, call, provider, dialect, method, url, release)
	}
	return model, e.buffered(upCtx, w, desc, call, provider, method, url)
}

// buffered performs one upstream call and emits the final JSON body.
func (e *Engine) buffered(ctx context.Context, w http.ResponseWriter, desc Descriptor, call *Call, provider catalog.ProviderSpec, method, url string) error {
	status, body, err := e.callUpstream(ctx, call, provider, method, url, call.Envelope)
	if err != nil {
		return err
	}

	// Step 12: response guardrails (buffered responses only).
	if e.ForceGuardrailResponse && e.Hooks != nil && e.Hooks.HasResponseGuardrails() {
		if parsed, ok := decodeObject(body); ok {
			verdict, name, err := e.Hooks.RunResponseGuardrails(ctx, parsed)
			if err != nil {
				return apierror.Internal(err)
			}
			if !verdict.Allow {
				metrics.GuardrailBlocks.WithLabelValues("response", name).Inc()
				return apierror.GuardrailBlocked(verdict.Reason)
			}
		}
	}

	// Simple-proxy endpoints relay the upstream body verbatim under the
	// upstream status; built-ins wrap it in the response envelope.
	if len(desc.Required) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, err := w.Write(body)
		return err
	}

	parsed, ok := decodeObject(body)
	if !ok {
		metrics.ProviderErrors.WithLabelValues(provider.ID, "bad_response").Inc()
		return apierror.UpstreamError(status, truncate(string(body), 512))
	}
	return writeJSON(w, http.StatusOK, map[string]any{"status": true, "body": parsed})
}

// multiShot issues one upstream call per user message against the already
// selected provider and aggregates the results.
func (e *Engine) multiShot(ctx context.Context, w http.ResponseWriter, h Handler, desc Descriptor, call *Call, provider catalog.ProviderSpec, method, url string) error {
	agg, ok := h.(Aggregator)
	if !ok {
		return apierror.MisconfiguredEndpoint("endpoint %s fans out per user message but has no aggregator", desc.Name)
	}

	allMsgs, _ := call.Envelope["messages"].([]any)
	var systemMsg any
	var userMsgs []any
	for _, m := range allMsgs {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		switch msg["role"] {
		case "system":
			if systemMsg == nil {
				systemMsg = m
			}
		case "user":
			userMsgs = append(userMsgs, m)
		}
	}
	if len(userMsgs) == 0 {
		return apierror.ValidationError("messages", "at least one user message is required")
	}

	refresher, canRefresh := e.Chooser.(lockRefresher)

	responses := make([]map[string]any, 0, len(userMsgs))
	contents := make([]string, 0, len(userMsgs))
	for _, userMsg := range userMsgs {
		if canRefresh {
			if err := refresher.Refresh(ctx, call.Model, provider); err != nil {
				return err
			}
		}

		payload := make(map[string]any, len(call.Envelope))
		for k, v := range call.Envelope {
			payload[k] = v
		}
		shot := make([]any, 0, 2)
		if systemMsg != nil {
			shot = append(shot, systemMsg)
		}
		shot = append(shot, userMsg)
		payload["messages"] = shot

		status, body, err := e.callUpstream(ctx, call, provider, method, url, payload)
		if err != nil {
			return err
		}
		parsed, ok := decodeObject(body)
		if !ok {
			metrics.ProviderErrors.WithLabelValues(provider.ID, "bad_response").Inc()
			return apierror.UpstreamError(status, truncate(string(body), 512))
		}
		responses = append(responses, parsed)
		contents = append(contents, completionText(parsed))
	}

	result, err := agg.AggregateResponses(call, responses, contents)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, result)
}

// callUpstream performs one buffered upstream exchange. Upstream statuses
// below 500 are returned to the caller; 500+ and transport failures map to
// the error taxonomy.
func (e *Engine) callUpstream(ctx context.Context, call *Call, provider catalog.ProviderSpec, method, url string, payload map[string]any) (int, []byte, error) {
	resp, err := e.doRequest(ctx, call, provider, method, url, payload)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	latency := call.Elapsed()
	if err != nil {
		e.Chooser.Feedback(call.Model, provider.ID, latency, true)
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.ProviderErrors.WithLabelValues(provider.ID, "timeout").Inc()
			return 0, nil, apierror.UpstreamTimeout(call.Model)
		}
		metrics.ProviderErrors.WithLabelValues(provider.ID, "network").Inc()
		return 0, nil, apierror.UpstreamError(resp.StatusCode, err.Error())
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.Chooser.Feedback(call.Model, provider.ID, latency, true)
		metrics.ProviderErrors.WithLabelValues(provider.ID, "http_error").Inc()
		return 0, nil, apierror.UpstreamError(resp.StatusCode, truncate(string(body), 512))
	}
	e.Chooser.Feedback(call.Model, provider.ID, latency, false)
	return resp.StatusCode, body, nil
}

func (e *Engine) doRequest(ctx context.Context, call *Call, provider catalog.ProviderSpec, method, url string, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if provider.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+provider.APIToken)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		e.Chooser.Feedback(call.Model, provider.ID, call.Elapsed(), true)
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.ProviderErrors.WithLabelValues(provider.ID, "timeout").Inc()
			return nil, apierror.UpstreamTimeout(call.Model)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		metrics.ProviderErrors.WithLabelValues(provider.ID, "network").Inc()
		return nil, apierror.UpstreamError(0, err.Error())
	}
	return resp, nil
}

// parse builds the call envelope from the request: JSON body for POST,
// query string for GET.
func (e *Engine) parse(r *http.Request) (*Call, error) {
	call := &Call{
		Envelope: map[string]any{},
		Meta:     map[string]any{},
		started:  time.Now(),
	}

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		for key := range q {
			call.Envelope[key] = q.Get(key)
		}
		return call, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return nil, apierror.BadRequest("unsupported content type %q", ct)
		}
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apierror.BadRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return call, nil
	}
	if err := json.Unmarshal(body, &call.Envelope); err != nil {
		return nil, apierror.BadRequest("malformed JSON body")
	}
	return call, nil
}

func (e *Engine) resolveLanguage(call *Call) error {
	lang, _ := call.Envelope["language"].(string)
	delete(call.Envelope, "language")
	if lang == "" {
		call.Language = e.DefaultLanguage
		return nil
	}
	if len(e.Languages) > 0 {
		valid := false
		for _, l := range e.Languages {
			if l == lang {
				valid = true
				break
			}
		}
		if !valid {
			return apierror.ValidationError("language",
				fmt.Sprintf("must be one of %s", strings.Join(e.Languages, ", ")))
		}
	}
	call.Language = lang
	return nil
}

// injectSystemPrompt resolves the endpoint's system prompt and prepends it
// to messages. A forced prompt is used verbatim; otherwise the named
// template is fetched, placeholders substituted and the postfix appended.
func (e *Engine) injectSystemPrompt(call *Call, desc Descriptor) error {
	text := call.PromptStrForce
	if text == "" {
		if len(desc.SystemPromptNames) == 0 {
			return nil
		}
		id, ok := desc.SystemPromptNames[call.Language]
		if !ok {
			id, ok = desc.SystemPromptNames["*"]
		}
		if !ok {
			id, ok = desc.SystemPromptNames[e.DefaultLanguage]
		}
		if !ok {
			return apierror.ValidationError("language",
				fmt.Sprintf("no system prompt for language %q", call.Language))
		}
		var err error
		text, err = e.Prompts.Get(id, call.Language)
		if err != nil {
			return apierror.MisconfiguredEndpoint("system prompt %q: %v", id, err)
		}
		text = prompts.Substitute(text, call.MapPrompt)
		if call.PromptStrPostfix != "" {
			text += call.PromptStrPostfix
		}
	}
	if text == "" {
		return nil
	}

	messages, _ := call.Envelope["messages"].([]any)
	withSystem := make([]any, 0, len(messages)+1)
	withSystem = append(withSystem, map[string]any{"role": "system", "content": text})
	withSystem = append(withSystem, messages...)
	call.Envelope["messages"] = withSystem
	return nil
}

func supportsAPIType(allowed []catalog.APIType, t catalog.APIType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// completionText extracts the generated text from an upstream response
// body, covering the OpenAI and Ollama shapes.
func completionText(body map[string]any) string {
	if choices, ok := body["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok {
					return s
				}
			}
			if s, ok := choice["text"].(string); ok {
				return s
			}
		}
	}
	if msg, ok := body["message"].(map[string]any); ok {
		if s, ok := msg["content"].(string); ok {
			return s
		}
	}
	if s, ok := body["response"].(string); ok {
		return s
	}
	return ""
}

func decodeObject(body []byte) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
