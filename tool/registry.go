package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Registry holds named tools and the middleware wrapped around them.
// Execute is the single entrypoint for running a call. All methods are safe
// for concurrent use.
type Registry struct {
	tools   map[string]Tool
	global  []Middleware
	perTool map[string][]Middleware
	logger  *slog.Logger
	mu      sync.RWMutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for per-call debug records.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		perTool: make(map[string][]Middleware),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register adds or replaces tools in the registry.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Definition().Name] = t
	}
}

// RegisterFunc registers a function as a tool.
func (r *Registry) RegisterFunc(name, description string, schema map[string]interface{}, fn func(ctx context.Context, input json.RawMessage, tc *ToolContext) (*Output, error)) {
	r.Register(NewFunc(name, description, schema, fn))
}

// Unregister removes a tool and its per-tool middleware.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.perTool, name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns every tool definition sorted by name, so identical
// registries always produce identical requests.
func (r *Registry) Definitions() []Definition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// LLMDefinitions returns the definitions in the form sent to a backend.
func (r *Registry) LLMDefinitions() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	out := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = d.LLM()
	}
	return out
}

// Use appends global middleware that wraps every tool.
func (r *Registry) Use(mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, mws...)
}

// UseFor appends middleware that wraps only the named tool. Per-tool
// middleware runs inside the global middleware.
func (r *Registry) UseFor(name string, mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perTool[name] = append(r.perTool[name], mws...)
}

// Execute runs call through global middleware, then the tool's own
// middleware, then the tool. An unknown tool name fails with KindNotFound
// before any middleware runs.
func (r *Registry) Execute(ctx context.Context, call Call, tc *ToolContext) (*Output, error) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	mws := make([]Middleware, 0, len(r.global)+len(r.perTool[call.Name]))
	mws = append(mws, r.global...)
	mws = append(mws, r.perTool[call.Name]...)
	r.mu.RUnlock()

	if !ok {
		return nil, NotFound(call.Name)
	}
	if tc == nil {
		tc = &ToolContext{}
	}

	terminal := func(ctx context.Context, call Call, tc *ToolContext) (*Output, error) {
		out, err := t.Call(ctx, call.Input, tc)
		if err != nil {
			return nil, classify(call.Name, err)
		}
		if out == nil {
			out = &Output{}
		}
		return out, nil
	}

	start := time.Now()
	out, err := chain{mws: mws, terminal: terminal}.run(ctx, call, tc)
	r.logger.Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"is_error", err != nil || (out != nil && out.IsError),
		"error_kind", KindOf(err),
	)
	return out, err
}

// classify makes sure anything a tool returns is a tool Error.
func classify(name string, err error) error {
	if te, ok := AsError(err); ok {
		if te.Tool == "" {
			te.Tool = name
		}
		return te
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled(name)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut(name, fmt.Sprintf("tool '%s' exceeded its deadline", name))
	}
	return ExecutionFailed(name, err)
}
