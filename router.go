// Package llmrouter is a reverse proxy for self-hosted LLM backends. It
// exposes OpenAI, Ollama and LM Studio compatible surfaces plus a set of
// built-in task endpoints, and routes each request to one provider of the
// requested model according to a configurable balance strategy.
//
// The Router type is the main entry point: create one with New, optionally
// add custom endpoints with Register, then serve Handler() and call
// Start to run the background monitors.
package llmrouter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radlab/llm-router/catalog"
	"github.com/radlab/llm-router/endpoint"
	"github.com/radlab/llm-router/hook"
	"github.com/radlab/llm-router/internal/audit"
	"github.com/radlab/llm-router/internal/hooks/auditlogger"
	"github.com/radlab/llm-router/internal/keepalive"
	"github.com/radlab/llm-router/internal/logging"
	"github.com/radlab/llm-router/internal/prompts"
	"github.com/radlab/llm-router/internal/providermon"
	"github.com/radlab/llm-router/internal/store"
	"github.com/radlab/llm-router/internal/strategies"
	"github.com/radlab/llm-router/internal/version"
)

// Router wires the catalog, store, strategy, hook pipelines and endpoint
// registry into one servable unit.
type Router struct {
	cfg      Config
	catalog  *catalog.Catalog
	store    *store.Store
	chooser  strategies.Chooser
	hooks    *hook.Manager
	engine   *endpoint.Engine
	registry *endpoint.Registry
	auditor  *audit.SQLWriter
	monitor  *keepalive.Monitor
	provmon  *providermon.Monitor

	buildOnce sync.Once
	mux       *chi.Mux
}

// New creates a Router from cfg. It fails fast on anything the spec treats
// as a startup error: invalid config, unreadable catalog, or an
// unreachable store when the strategy depends on it.
func New(ctx context.Context, cfg Config) (*Router, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cat, err := catalog.Load(cfg.ModelsConfig)
	if err != nil {
		return nil, err
	}

	var st *store.Store
	if cfg.Redis.Host != "" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		st, err = store.Dial(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			if strategies.RequiresStore(cfg.BalanceStrategy) || !cfg.Minimum {
				return nil, fmt.Errorf("coordination store at %s: %w", addr, err)
			}
			logging.Logger.Warn("coordination store unreachable, continuing without it",
				"addr", addr, "err", err)
			st = nil
		}
	}

	chooser, err := strategies.New(cfg.BalanceStrategy, st, cfg.LockTTL())
	if err != nil {
		return nil, err
	}

	hooks := hook.NewManager()
	if err := loadHooks(hooks, cfg.Hooks); err != nil {
		return nil, err
	}

	r := &Router{
		cfg:     cfg,
		catalog: cat,
		store:   st,
		chooser: chooser,
		hooks:   hooks,
	}

	if cfg.AuditMasking || cfg.AuditGuardrail {
		w, err := openAuditWriter(cfg.AuditDB)
		if err != nil {
			if !cfg.Minimum {
				return nil, fmt.Errorf("audit writer: %w", err)
			}
			logging.Logger.Warn("audit writer unavailable, auditing disabled", "err", err)
		} else {
			r.auditor = w
			hooks.SetAuditor(auditlogger.New(w), cfg.AuditMasking, cfg.AuditGuardrail)
		}
	}

	r.engine = &endpoint.Engine{
		Catalog:                cat,
		Chooser:                chooser,
		Hooks:                  hooks,
		Prompts:                prompts.NewFileStore(cfg.PromptsDir),
		Client:                 &http.Client{},
		Timeout:                cfg.ExternalTimeout(),
		DefaultLanguage:        cfg.DefaultLanguage,
		Languages:              cfg.Languages,
		ForceMasking:           cfg.ForceMasking,
		ForceGuardrailRequest:  cfg.ForceGuardrailRequest,
		ForceGuardrailResponse: cfg.ForceGuardrailResponse,
	}
	r.registry = endpoint.NewRegistry(r.engine, cfg.EndpointPrefix)
	for _, h := range endpoint.Builtin(cat, version.Short()) {
		if err := r.registry.Register(h); err != nil {
			return nil, err
		}
	}

	if st != nil {
		r.monitor = keepalive.New(st, cat,
			keepalive.WithCheckInterval(cfg.KeepAliveInterval()),
			keepalive.WithClearBuffers(cfg.KeepAliveClearBuffers))
		r.provmon = providermon.New(st, cat,
			providermon.WithCheckInterval(cfg.ProviderMonitorInterval()),
			providermon.WithClearBuffers(cfg.KeepAliveClearBuffers))
	}
	return r, nil
}

// Register adds a custom endpoint. Must be called before the first call to
// Handler.
func (r *Router) Register(h endpoint.Handler) error {
	if r.mux != nil {
		return fmt.Errorf("endpoint %s registered after the router was built", h.Descriptor().Name)
	}
	return r.registry.Register(h)
}

// Catalog returns the loaded model catalog.
func (r *Router) Catalog() *catalog.Catalog { return r.catalog }

// Endpoints returns the registered endpoints.
func (r *Router) Endpoints() []endpoint.Handler { return r.registry.Handlers() }

// Handler builds (once) and returns the HTTP handler serving every
// registered endpoint.
func (r *Router) Handler() http.Handler {
	r.buildOnce.Do(func() {
		mux := chi.NewRouter()
		mux.Use(middleware.RealIP)
		mux.Use(logging.Middleware)
		mux.Use(middleware.Recoverer)
		r.registry.Mount(mux)
		if r.cfg.UsePrometheus {
			mux.Handle("/metrics", promhttp.Handler())
		}
		r.mux = mux
	})
	return r.mux
}

// Start launches the background workers: the keep-alive monitor and the
// provider availability monitor. They stop when ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	if r.monitor != nil {
		r.monitor.Start(ctx)
	}
	if r.provmon != nil {
		r.provmon.Start(ctx)
	}
}

// Close releases the store and audit connections.
func (r *Router) Close() error {
	var firstErr error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			firstErr = err
		}
	}
	if r.auditor != nil {
		if err := r.auditor.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// loadHooks instantiates the configured maskers and guardrails from the
// factory registries.
func loadHooks(m *hook.Manager, configs []HookConfig) error {
	for _, hc := range configs {
		if !hc.Enabled {
			continue
		}
		switch hc.Stage {
		case StageMasker:
			factory, ok := hook.GetMaskerFactory(hc.Name)
			if !ok {
				return fmt.Errorf("unknown masker: %s", hc.Name)
			}
			mk := factory()
			if err := mk.Init(hc.Config); err != nil {
				return fmt.Errorf("masker %s init failed: %w", hc.Name, err)
			}
			m.AddMasker(mk)
		case StageGuardrailRequest, StageGuardrailResponse:
			factory, ok := hook.GetGuardrailFactory(hc.Name)
			if !ok {
				return fmt.Errorf("unknown guardrail: %s", hc.Name)
			}
			g := factory()
			if err := g.Init(hc.Config); err != nil {
				return fmt.Errorf("guardrail %s init failed: %w", hc.Name, err)
			}
			if hc.Stage == StageGuardrailRequest {
				m.AddRequestGuardrail(g)
			} else {
				m.AddResponseGuardrail(g)
			}
		}
	}
	return nil
}

func openAuditWriter(dsn string) (*audit.SQLWriter, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return audit.NewPostgresWriter(dsn)
	}
	return audit.NewSQLiteWriter(dsn)
}
