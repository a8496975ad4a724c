package main

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SecBear/neuron-sub003/agentloop"
	"github.com/SecBear/neuron-sub003/compact"
	"github.com/SecBear/neuron-sub003/config"
	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/hooks"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/toolset"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// app is everything one invocation of run needs.
type app struct {
	engine  *agentloop.Engine
	tc      *tool.ToolContext
	runID   string
	closers []closer
}

func (a *app) close(logger *slog.Logger) { closeAll(a.closers, logger) }

// setup wires the backend, tools, hooks, context strategy and durability
// router from cfg. On error the returned app is still safe to close.
func setup(ctx context.Context, cfg *config.Config, cwd string, logger *slog.Logger) (*app, error) {
	a := &app{runID: cfg.Durability.RunID}
	if a.runID == "" {
		a.runID = uuid.New().String()
	}

	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return a, err
	}

	reg, closers, err := buildRegistry(ctx, cfg, logger)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return a, err
	}

	d, closers, err := buildHooks(ctx, cfg, logger)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return a, err
	}

	strategy, err := buildStrategy(cfg.Context, backend, cfg.Backend.Model)
	if err != nil {
		return a, err
	}

	router, closers, err := buildRouter(ctx, cfg.Durability, a.runID, logger)
	a.closers = append(a.closers, closers...)
	if err != nil {
		return a, err
	}

	ec := cfg.EngineConfig()
	base := ec.SystemPrompt
	if base == "" {
		base = agentloop.DefaultBasePrompt
	}

	opts := []agentloop.Option{
		agentloop.WithStrategy(strategy),
		agentloop.WithHooks(d),
		agentloop.WithRouter(router),
		agentloop.WithLogger(logger),
		agentloop.WithRunID(a.runID),
	}

	// The delegate tool runs a child engine with the same backend and tools
	// but no delegate tool of its own.
	childCfg := ec
	childCfg.SystemPrompt = agentloop.BuildSystemPrompt(ctx, agentloop.PromptOptions{
		Base: base, Cwd: cwd, Model: ec.Model, Provider: ec.Provider, Tools: reg.Definitions(),
	})
	child := agentloop.New(backend, reg, childCfg, agentloop.WithStrategy(strategy), agentloop.WithLogger(logger))
	parentReg := cloneRegistry(reg, logger)
	parentReg.Register(agentloop.NewSubAgentTool(child, "delegate",
		"Delegate a self-contained task to a subagent with the same tools. Returns the subagent's final answer."))
	if err := applyMiddleware(parentReg, cfg.Tools, logger); err != nil {
		return a, err
	}

	ec.SystemPrompt = agentloop.BuildSystemPrompt(ctx, agentloop.PromptOptions{
		Base:     base,
		Cwd:      cwd,
		Model:    ec.Model,
		Provider: ec.Provider,
		Tools:    parentReg.Definitions(),
		Git:      cfg.Loop.Git,
	})
	a.engine = agentloop.New(backend, parentReg, ec, opts...)

	a.tc = tool.NewToolContext(cwd)
	a.tc.SessionID = a.runID
	return a, nil
}

func buildBackend(cfg *config.Config, logger *slog.Logger) (unifiedllm.Backend, error) {
	b := cfg.Backend
	opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithModel(b.Model)}
	if b.MaxTokens > 0 {
		opts = append(opts, unifiedllm.WithMaxTokens(b.MaxTokens))
	}
	if b.Temperature != nil {
		opts = append(opts, unifiedllm.WithTemperature(*b.Temperature))
	}
	adapter, err := unifiedllm.NewGollmAdapter(b.Provider, b.APIKey(), opts...)
	if err != nil {
		return nil, err
	}
	return unifiedllm.NewClient(
		unifiedllm.WithProvider(b.Provider, adapter),
		unifiedllm.WithDefaultProvider(b.Provider),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
	), nil
}

// buildRegistry registers the built-in tools and any MCP server tools and
// installs the configured middleware.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tool.Registry, []closer, error) {
	reg := tool.NewRegistry(tool.WithLogger(logger))
	opts := toolset.DefaultOptions()
	opts.ShellTimeout = cfg.Tools.ShellTimeout.Std()
	opts.MaxShellTimeout = cfg.Tools.MaxShellTimeout.Std()
	opts.Shell = cfg.Tools.Shell
	toolset.Register(reg, opts)

	var closers []closer
	for _, s := range cfg.Tools.MCP {
		env := make([]string, 0, len(s.Env))
		for k, v := range s.Env {
			env = append(env, k+"="+v)
		}
		client, err := tool.ConnectMCPStdio(ctx, s.Command, env, s.Args...)
		if err != nil {
			return reg, closers, err
		}
		closers = append(closers, func(context.Context) error { return client.Close() })
		names, err := tool.LoadMCPTools(ctx, reg, client, s.Name)
		if err != nil {
			return reg, closers, fmt.Errorf("loading tools from MCP server %q: %w", s.Name, err)
		}
		logger.Debug("mcp tools loaded", "server", s.Name, "tools", len(names))
	}

	if err := applyMiddleware(reg, cfg.Tools, logger); err != nil {
		return reg, closers, err
	}
	return reg, closers, nil
}

// applyMiddleware installs, outermost first: permission checks, rate
// limiting, schema validation, the timeout and output truncation.
func applyMiddleware(reg *tool.Registry, cfg config.ToolsConfig, logger *slog.Logger) error {
	if len(cfg.Deny) > 0 {
		reg.Use(tool.PermissionChecker(tool.DenyList(cfg.Deny...)))
	}
	if len(cfg.Rules) > 0 {
		policy, err := tool.NewCELPolicy(cfg.Rules, tool.Allow())
		if err != nil {
			return fmt.Errorf("tools.rules: %w", err)
		}
		reg.Use(tool.PermissionChecker(policy))
	}
	if cfg.RateLimit.PerSecond > 0 {
		reg.Use(tool.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Wait, logger).Middleware())
	}
	reg.Use(tool.SchemaValidator(reg))
	if t := cfg.Timeout.Std(); t > 0 {
		reg.Use(tool.Timeout(t, tool.WithToolTimeout("shell", max(t, cfg.MaxShellTimeout.Std()))))
	}
	if cfg.OutputLimit > 0 {
		reg.Use(tool.OutputFormatter(cfg.OutputLimit,
			tool.WithHeadTail("shell", "read_file", "delegate"),
			tool.WithLineLimit("shell", 256),
			tool.WithLineLimit("grep", 200),
			tool.WithLineLimit("glob", 500),
		))
	}
	return nil
}

// cloneRegistry copies the tools of reg, without its middleware.
func cloneRegistry(reg *tool.Registry, logger *slog.Logger) *tool.Registry {
	out := tool.NewRegistry(tool.WithLogger(logger))
	for _, name := range reg.Names() {
		if t, ok := reg.Get(name); ok {
			out.Register(t)
		}
	}
	return out
}

func buildHooks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*hooks.Dispatcher, []closer, error) {
	d := hooks.NewDispatcher(hooks.WithLogger(logger))
	d.Register(hooks.NewLogger(logger, slog.LevelDebug))
	d.Register(hooks.NewLoopDetector(cfg.Tools.LoopWindow), hooks.PointPreToolExecution)
	d.Register(hooks.NewGuardrail(logger).Input(credentialGuardrail), hooks.PointPreModelCall)

	var closers []closer
	if cfg.Tracing.Enabled {
		tp, err := initTracing(ctx, cfg.Tracing)
		if err != nil {
			return d, closers, err
		}
		closers = append(closers, tp.Shutdown)
		d.Register(hooks.NewTracer(tp))
	}
	return d, closers, nil
}

var credentialPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{20,}|AKIA[0-9A-Z]{16}|gh[pousr]_[A-Za-z0-9]{36,}|xox[baprs]-[A-Za-z0-9-]{10,})\b`)

// credentialGuardrail stops a run before a prompt carrying an API key or
// access token is sent to the backend.
var credentialGuardrail = hooks.InputGuardrailFunc(func(_ context.Context, input string) hooks.GuardrailResult {
	if credentialPattern.MatchString(input) {
		return hooks.Tripwire("prompt contains what looks like a credential; remove it and retry")
	}
	return hooks.Pass()
})

func buildStrategy(cfg config.ContextConfig, backend unifiedllm.Backend, model string) (compact.Strategy, error) {
	var (
		counter compact.Counter = compact.CharCounter{}
		opts    []compact.Option
	)
	if cfg.Counter == config.CounterTiktoken {
		c, err := compact.NewTiktokenCounter(model, compact.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		counter = c
		opts = append(opts, compact.WithCounter(c))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = compact.Threshold(model, cfg.ThresholdRatio)
	}

	switch cfg.Strategy {
	case "", config.StrategyNone:
		return compact.None{Counter: counter}, nil
	case config.StrategySlidingWindow:
		return compact.NewSlidingWindow(cfg.Window, maxTokens, opts...), nil
	case config.StrategyToolResultClearing:
		return compact.NewToolResultClearing(cfg.KeepRecent, maxTokens, opts...), nil
	case config.StrategySummarization:
		return compact.NewSummarization(backend, model, cfg.PreserveRecent, maxTokens, opts...), nil
	case config.StrategyComposite:
		return compact.NewComposite(maxTokens, []compact.Strategy{
			compact.NewToolResultClearing(cfg.KeepRecent, maxTokens, opts...),
			compact.NewSummarization(backend, model, cfg.PreserveRecent, maxTokens, opts...),
		}, opts...), nil
	default:
		return nil, fmt.Errorf("unknown context strategy %q", cfg.Strategy)
	}
}

// buildRouter journals the run when a store is configured.
func buildRouter(ctx context.Context, cfg config.DurabilityConfig, runID string, logger *slog.Logger) (durable.Router, []closer, error) {
	var (
		store   durable.Store
		closers []closer
	)
	switch cfg.Store {
	case config.StoreNone:
		return durable.Local{}, nil, nil
	case config.StoreMemory:
		store = durable.NewMemoryStore()
	case config.StoreSQLite, config.StorePostgres:
		driver := "sqlite"
		if cfg.Store == config.StorePostgres {
			driver = "pgx"
		}
		s, err := durable.OpenSQLStore(ctx, driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closers = append(closers, func(context.Context) error { return s.Close() })
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("durability.dsn: %w", err)
		}
		client := redis.NewClient(opt)
		store = durable.NewRedisStore(client, "", cfg.TTL.Std())
		closers = append(closers, func(context.Context) error { return client.Close() })
	default:
		return nil, nil, fmt.Errorf("unknown journal store %q", cfg.Store)
	}
	logger.Debug("journaling run", "store", cfg.Store, "run_id", runID)
	return durable.NewJournaled(store, runID, durable.WithJournalLogger(logger)), closers, nil
}
