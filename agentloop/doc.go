// Package agentloop drives a conversational agent turn by turn.
//
// An Engine pairs a model backend with a tool registry. Each turn it checks
// cancellation and the turn ceiling, lets the context strategy compact the
// history, calls the model through the durability router, executes the
// requested tools through the registry's middleware pipeline and folds the
// results back into the history. The run ends with a final response, a
// reached limit, or an error.
//
// # Architecture
//
//   - Engine: immutable configuration plus attachments (strategy, hooks,
//     router, logger). Safe to share; every run owns its own history.
//   - Run: drives a run to completion and returns the final response or
//     the first terminal error as a *LoopError.
//   - Step: the same state machine, one TurnOutcome per call, with message
//     injection and state inspection between turns.
//   - RunStreaming: the same state machine again, delivering text deltas,
//     tool activity and the final response on a channel. Tools run
//     sequentially in this mode.
//
// # Quick Start
//
//	registry := tool.NewRegistry()
//	registry.RegisterFunc("calc", "Evaluate arithmetic", schema, calc)
//
//	cfg := agentloop.DefaultConfig()
//	cfg.Model = "claude-sonnet-4-5"
//	engine := agentloop.New(backend, registry, cfg,
//	    agentloop.WithStrategy(compact.NewSlidingWindow(40, 100000)),
//	)
//
//	final, err := engine.Run(ctx, unifiedllm.UserMessage("2+2?"), tool.NewToolContext("."))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(final.Text, final.TurnCount)
package agentloop
