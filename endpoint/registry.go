package endpoint

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/radlab/llm-router/internal/logging"
)

// Registry holds the endpoints to be mounted on the router. Registration
// validates each descriptor so misdeclared endpoints fail at startup, not
// on first request.
type Registry struct {
	engine   *Engine
	prefix   string
	handlers []Handler
	names    map[string]bool
	routes   map[string]bool
}

// NewRegistry creates a registry mounting endpoints under prefix (e.g.
// "/api"). Descriptors with DontAddAPIPrefix keep their path as declared.
func NewRegistry(engine *Engine, prefix string) *Registry {
	prefix = strings.TrimSuffix(prefix, "/")
	return &Registry{
		engine: engine,
		prefix: prefix,
		names:  map[string]bool{},
		routes: map[string]bool{},
	}
}

// Register validates and adds one endpoint.
func (r *Registry) Register(h Handler) error {
	desc := h.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("endpoint has no name")
	}
	if !strings.HasPrefix(desc.Path, "/") {
		return fmt.Errorf("endpoint %s: path %q must start with /", desc.Name, desc.Path)
	}
	switch desc.Method {
	case http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("endpoint %s: unsupported method %q", desc.Name, desc.Method)
	}
	if desc.CallForEachUserMsg && desc.DirectReturn {
		return fmt.Errorf("endpoint %s: direct return cannot fan out per user message", desc.Name)
	}
	if desc.CallForEachUserMsg {
		if _, ok := h.(Aggregator); !ok {
			return fmt.Errorf("endpoint %s: fan-out endpoints must implement Aggregator", desc.Name)
		}
	}
	if r.names[desc.Name] {
		return fmt.Errorf("endpoint %s: duplicate name", desc.Name)
	}
	route := desc.Method + " " + r.routePath(desc)
	if r.routes[route] {
		return fmt.Errorf("endpoint %s: route %s already registered", desc.Name, route)
	}

	r.names[desc.Name] = true
	r.routes[route] = true
	r.handlers = append(r.handlers, h)
	return nil
}

// MustRegister registers handlers and panics on a bad descriptor. Used for
// the built-in set, whose descriptors are static.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Mount attaches every registered endpoint to router.
func (r *Registry) Mount(router chi.Router) {
	for _, h := range r.handlers {
		desc := h.Descriptor()
		path := r.routePath(desc)
		router.Method(desc.Method, path, r.engine.Handle(h))
		logging.Logger.Debug("endpoint mounted",
			"endpoint", desc.Name, "method", desc.Method, "path", path)
	}
}

// Handlers returns the registered endpoints in registration order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

func (r *Registry) routePath(desc Descriptor) string {
	if desc.DontAddAPIPrefix || r.prefix == "" {
		return desc.Path
	}
	return r.prefix + desc.Path
}
