package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/hook"
	"github.com/radlab/llm-router/internal/prompts"
	"github.com/radlab/llm-router/internal/store"
	"github.com/radlab/llm-router/internal/strategies"
)

func testCatalog(t *testing.T, upstream, apiType string) *catalog.Catalog {
	t.Helper()
	raw := fmt.Sprintf(`{
		"active_models": {"research": ["bielik-11b"]},
		"research": {
			"bielik-11b": {
				"providers": [
					{"id": "p1", "api_host": %q, "api_type": %q, "input_size": 4096}
				]
			}
		}
	}`, upstream, apiType)
	cat, err := catalog.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return cat
}

type fakeRepo map[string]string

func (r fakeRepo) Get(id, language string) (string, error) {
	id = strings.ReplaceAll(id, "{lang}", language)
	if text, ok := r[id]; ok {
		return text, nil
	}
	return "", fmt.Errorf("prompt %q: %w", id, prompts.ErrNotFound)
}

func testEngine(cat *catalog.Catalog, ch strategies.Chooser, repo prompts.Repository) *Engine {
	return &Engine{
		Catalog:         cat,
		Chooser:         ch,
		Prompts:         repo,
		Client:          http.DefaultClient,
		Timeout:         5 * time.Second,
		DefaultLanguage: "pl",
		Languages:       []string{"pl", "en"},
	}
}

func mountEndpoints(t *testing.T, e *Engine, handlers ...Handler) http.Handler {
	t.Helper()
	reg := NewRegistry(e, "/api")
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	router := chi.NewRouter()
	reg.Mount(router)
	return router
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	if status, ok := body["status"].(bool); !ok || status {
		t.Fatalf("error envelope status = %v", body["status"])
	}
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestPassthroughRelaysVerbatim(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	upstreamResponse := `{"id":"cmpl-1","object":"chat.completion","choices":[]}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamResponse))
	}))
	defer upstream.Close()

	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[{"role":"user","content":"hi"}],"stream":false,"temperature":0.7}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != upstreamResponse {
		t.Errorf("body not relayed verbatim: %s", rec.Body.String())
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("upstream path = %s", gotPath)
	}
	if gotBody["model"] != "bielik-11b" {
		t.Errorf("upstream model = %v", gotBody["model"])
	}
	if gotBody["stream"] != false {
		t.Errorf("upstream stream = %v", gotBody["stream"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("upstream temperature = %v", gotBody["temperature"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("upstream messages = %v", gotBody["messages"])
	}
}

func TestConversationInjectsSystemPrompt(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer upstream.Close()

	repo := fakeRepo{
		"builtin/system/en/chat-conversation-simple": "You are a helpful assistant.",
	}
	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), repo), Conversation{})

	rec := postJSON(t, router, "/api/conversation_with_model",
		`{"model_name":"bielik-11b","user_last_statement":"hi","language":"en"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("upstream messages = %v", gotBody["messages"])
	}
	system := msgs[0].(map[string]any)
	if system["role"] != "system" || system["content"] != "You are a helpful assistant." {
		t.Errorf("system message = %v", system)
	}
	user := msgs[1].(map[string]any)
	if user["role"] != "user" || user["content"] != "hi" {
		t.Errorf("user message = %v", user)
	}
	if gotBody["model"] != "bielik-11b" {
		t.Errorf("upstream model = %v", gotBody["model"])
	}
	if _, leaked := gotBody["model_name"]; leaked {
		t.Error("model_name leaked upstream")
	}
	if _, leaked := gotBody["language"]; leaked {
		t.Error("language leaked upstream")
	}

	body := decodeBody(t, rec)
	if body["status"] != true {
		t.Errorf("response status = %v", body["status"])
	}
	if _, ok := body["body"].(map[string]any); !ok {
		t.Errorf("response body missing: %v", body)
	}
}

func TestBatchFileSummariesAggregates(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		payloads = append(payloads, body)
		n := len(payloads)
		mu.Unlock()
		resp := fmt.Sprintf(`{"choices":[{"message":{"content":"Summary %d\n- point %d"}}]}`, n, n)
		_, _ = w.Write([]byte(resp))
	}))
	defer upstream.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb)

	repo := fakeRepo{"builtin/system/pl/file-summary": "Summarize the file."}
	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t,
		testEngine(cat, strategies.NewFirstAvailable(st, time.Minute), repo),
		BatchFileSummaries{})

	rec := postJSON(t, router, "/api/batch_file_summaries",
		`{"model_name":"bielik-11b","files":[{"name":"a.txt","content":"alpha"},{"name":"b.txt","content":"beta"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(payloads) != 2 {
		t.Fatalf("upstream calls = %d, want 2", len(payloads))
	}
	for i, want := range []string{"alpha", "beta"} {
		msgs, _ := payloads[i]["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("call %d messages = %v", i, payloads[i]["messages"])
		}
		if role := msgs[0].(map[string]any)["role"]; role != "system" {
			t.Errorf("call %d first role = %v", i, role)
		}
		if content := msgs[1].(map[string]any)["content"]; content != want {
			t.Errorf("call %d user content = %v, want %s", i, content, want)
		}
		if payloads[i]["stream"] != false {
			t.Errorf("call %d stream = %v", i, payloads[i]["stream"])
		}
	}

	body := decodeBody(t, rec)
	summaries, _ := body["response"].([]any)
	if len(summaries) != 2 {
		t.Fatalf("response = %v", body["response"])
	}
	first := summaries[0].(map[string]any)
	if first["name"] != "a.txt" || first["summary"] != "Summary 1\n- point 1" {
		t.Errorf("first summary = %v", first)
	}
	points, _ := first["key_points"].([]any)
	if len(points) != 1 || points[0] != "point 1" {
		t.Errorf("key points = %v", points)
	}
	if summaries[1].(map[string]any)["name"] != "b.txt" {
		t.Errorf("order not preserved: %v", summaries[1])
	}
	if _, ok := body["generation_time"].(float64); !ok {
		t.Errorf("generation_time missing: %v", body)
	}

	locked, err := st.Locked(context.Background(), "bielik-11b", "p1")
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if locked {
		t.Error("provider lock not released after aggregation")
	}
}

func TestMultiShotCoercesStreamAndRefreshesLock(t *testing.T) {
	const lockTTL = 10 * time.Second
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb)

	// Each shot records the remaining lock TTL and then burns 4 s of the
	// store clock, so a missing refresh shows up as a shrinking TTL.
	var payloads []map[string]any
	var ttls []time.Duration
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		payloads = append(payloads, body)
		ttls = append(ttls, mr.TTL("lock:model:bielik-11b:provider:p1"))
		mr.FastForward(4 * time.Second)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"part"}}]}`))
	}))
	defer upstream.Close()

	repo := fakeRepo{"builtin/system/pl/full-article": "Merge the texts."}
	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t,
		testEngine(cat, strategies.NewFirstAvailable(st, lockTTL), repo),
		FullArticle{})

	rec := postJSON(t, router, "/api/create_full_article_from_texts",
		`{"model_name":"bielik-11b","texts":["alpha","beta"],"stream":true}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(payloads) != 2 {
		t.Fatalf("upstream calls = %d, want 2", len(payloads))
	}
	for i := range payloads {
		if payloads[i]["stream"] != false {
			t.Errorf("call %d stream = %v, want false", i, payloads[i]["stream"])
		}
	}
	if ttls[1] <= lockTTL-4*time.Second {
		t.Errorf("lock not refreshed before second shot: ttl = %v", ttls[1])
	}

	body := decodeBody(t, rec)
	if body["response"] != "part\n\npart" {
		t.Errorf("response = %v", body["response"])
	}
	locked, err := st.Locked(context.Background(), "bielik-11b", "p1")
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if locked {
		t.Error("provider lock not released after aggregation")
	}
}

func TestMultiShotKeepsUpstreamStatusOnBadBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("not json"))
	}))
	defer upstream.Close()

	repo := fakeRepo{"builtin/system/pl/full-article": "Merge the texts."}
	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t,
		testEngine(cat, strategies.NewBalanced(nil), repo), FullArticle{})

	rec := postJSON(t, router, "/api/create_full_article_from_texts",
		`{"model_name":"bielik-11b","texts":["alpha"]}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "upstream_error" {
		t.Errorf("code = %v", errObj["code"])
	}
	details, _ := errObj["details"].(map[string]any)
	if details["upstream_status"] != float64(http.StatusTeapot) {
		t.Errorf("upstream_status = %v, want %d", details["upstream_status"], http.StatusTeapot)
	}
}

func TestPassthroughKeepsLanguageField(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

	// "fr" is not a configured language; a passthrough must neither strip
	// nor validate it.
	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[],"stream":false,"language":"fr"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotBody["language"] != "fr" {
		t.Errorf("language field = %v, want fr relayed verbatim", gotBody["language"])
	}
}

func TestUpstreamReadTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer upstream.Close()

	cat := testCatalog(t, upstream.URL, "vllm")
	e := testEngine(cat, strategies.NewBalanced(nil), nil)
	e.Timeout = 150 * time.Millisecond
	router := mountEndpoints(t, e, ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[],"stream":false}`)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "upstream_timeout" {
		t.Errorf("code = %s", code)
	}
}

func TestMissingRequiredParam(t *testing.T) {
	cat := testCatalog(t, "http://unused:8000", "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), NewTranslate())

	rec := postJSON(t, router, "/api/translate", `{"model_name":"bielik-11b"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "missing_param" {
		t.Errorf("code = %s", code)
	}
}

func TestUnknownModel(t *testing.T) {
	cat := testCatalog(t, "http://unused:8000", "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"ghost","messages":[],"stream":false}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "no_provider_available" {
		t.Errorf("code = %s", code)
	}
}

func TestApiTypeMismatch(t *testing.T) {
	cat := testCatalog(t, "http://unused:8000", "ollama")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/responses",
		`{"model":"bielik-11b","messages":[],"stream":false}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "api_type_mismatch" {
		t.Errorf("code = %s", code)
	}
}

type denyAll struct{}

func (denyAll) Name() string              { return "deny_all" }
func (denyAll) Init(map[string]any) error { return nil }
func (denyAll) Inspect(context.Context, map[string]any) (hook.Verdict, error) {
	return hook.Verdict{Allow: false, Reason: "blocked for test"}, nil
}

func TestRequestGuardrailBlocks(t *testing.T) {
	hooks := hook.NewManager()
	hooks.AddRequestGuardrail(denyAll{})

	cat := testCatalog(t, "http://unused:8000", "vllm")
	e := testEngine(cat, strategies.NewBalanced(nil), nil)
	e.Hooks = hooks
	e.ForceGuardrailRequest = true
	router := mountEndpoints(t, e, ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusUnavailableForLegalReasons {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "guardrail_blocked" {
		t.Errorf("code = %s", code)
	}
}

type upperMasker struct{}

func (upperMasker) Name() string              { return "upper" }
func (upperMasker) Init(map[string]any) error { return nil }
func (upperMasker) Mask(_ context.Context, env map[string]any) (map[string]any, *hook.AuditRecord, error) {
	msgs, _ := env["messages"].([]any)
	for _, m := range msgs {
		if msg, ok := m.(map[string]any); ok {
			if s, ok := msg["content"].(string); ok {
				msg["content"] = strings.ToUpper(s)
			}
		}
	}
	return env, nil, nil
}

func TestMaskingAppliedOnRequest(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	hooks := hook.NewManager()
	hooks.AddMasker(upperMasker{})

	cat := testCatalog(t, upstream.URL, "vllm")
	e := testEngine(cat, strategies.NewBalanced(nil), nil)
	e.Hooks = hooks
	router := mountEndpoints(t, e, ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[{"role":"user","content":"hi"}],"stream":false,"mask_payload":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	msgs, _ := gotBody["messages"].([]any)
	if content := msgs[0].(map[string]any)["content"]; content != "HI" {
		t.Errorf("masked content = %v", content)
	}
	if _, leaked := gotBody["mask_payload"]; leaked {
		t.Error("mask_payload leaked upstream")
	}
}

func TestUpstreamErrors(t *testing.T) {
	t.Run("server error maps to upstream_error", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer upstream.Close()

		cat := testCatalog(t, upstream.URL, "vllm")
		router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

		rec := postJSON(t, router, "/v1/chat/completions",
			`{"model":"bielik-11b","messages":[],"stream":false}`)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "upstream_error" {
			t.Errorf("code = %s", code)
		}
	})

	t.Run("client error relays verbatim", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer upstream.Close()

		cat := testCatalog(t, upstream.URL, "vllm")
		router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

		rec := postJSON(t, router, "/v1/chat/completions",
			`{"model":"bielik-11b","messages":[],"stream":false}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Body.String() != `{"error":"model not found"}` {
			t.Errorf("body = %s", rec.Body.String())
		}
	})
}

func TestStreamingRelay(t *testing.T) {
	frames := []string{
		`data: {"choices":[{"delta":{"content":"hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: [DONE]`,
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			_, _ = fmt.Fprintf(w, "%s\n\n", frame)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	cat := testCatalog(t, upstream.URL, "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil), ChatPassthroughs()...)

	rec := postJSON(t, router, "/v1/chat/completions",
		`{"model":"bielik-11b","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %s", ct)
	}
	body := rec.Body.String()
	for _, frame := range frames {
		if !strings.Contains(body, frame) {
			t.Errorf("frame %q missing from stream: %s", frame, body)
		}
	}
}

func TestInfoEndpoints(t *testing.T) {
	cat := testCatalog(t, "http://unused:8000", "vllm")
	router := mountEndpoints(t, testEngine(cat, strategies.NewBalanced(nil), nil),
		Ping{}, Root{}, Version{BuildVersion: "1.2.3"},
		OllamaTags{Catalog: cat}, OpenAIModels{Catalog: cat}, LMStudioModels{Catalog: cat})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := get("/ping"); rec.Body.String() != "pong" {
		t.Errorf("/ping = %q", rec.Body.String())
	}
	if rec := get("/"); rec.Body.String() != "Ollama is running" {
		t.Errorf("/ = %q", rec.Body.String())
	}
	if body := decodeBody(t, get("/version")); body["version"] != "1.2.3" {
		t.Errorf("/version = %v", body)
	}

	body := decodeBody(t, get("/models"))
	data, _ := body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["id"] != "bielik-11b" {
		t.Errorf("/models = %v", body)
	}

	body = decodeBody(t, get("/tags"))
	models, _ := body["models"].([]any)
	if len(models) != 1 || models[0].(map[string]any)["name"] != "bielik-11b" {
		t.Errorf("/tags = %v", body)
	}

	rec := postJSON(t, router, "/api/v0/models", `{}`)
	body = decodeBody(t, rec)
	data, _ = body["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["state"] != "loaded" {
		t.Errorf("/api/v0/models = %v", body)
	}
}

type badDescriptor struct{ desc Descriptor }

func (b badDescriptor) Descriptor() Descriptor { return b.desc }

func (badDescriptor) PreparePayload(context.Context, *Call) error { return nil }

func TestRegistryValidation(t *testing.T) {
	cat := testCatalog(t, "http://unused:8000", "vllm")
	reg := NewRegistry(testEngine(cat, strategies.NewBalanced(nil), nil), "/api")

	if err := reg.Register(badDescriptor{Descriptor{Name: "x", Path: "/x", Method: http.MethodDelete}}); err == nil {
		t.Error("bad method accepted")
	}
	if err := reg.Register(badDescriptor{Descriptor{Name: "x", Path: "x", Method: http.MethodPost}}); err == nil {
		t.Error("relative path accepted")
	}
	if err := reg.Register(badDescriptor{Descriptor{
		Name: "x", Path: "/x", Method: http.MethodPost,
		CallForEachUserMsg: true, DirectReturn: true,
	}}); err == nil {
		t.Error("fan-out with direct return accepted")
	}
	if err := reg.Register(badDescriptor{Descriptor{
		Name: "x", Path: "/x", Method: http.MethodPost, CallForEachUserMsg: true,
	}}); err == nil {
		t.Error("fan-out without aggregator accepted")
	}

	if err := reg.Register(Conversation{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Conversation{}); err == nil {
		t.Error("duplicate endpoint accepted")
	}
}
