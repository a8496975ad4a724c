package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SecBear/neuron-sub003/agentloop"
	"github.com/SecBear/neuron-sub003/config"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

type runFlags struct {
	model      string
	provider   string
	maxTurns   int
	parallel   bool
	stream     bool
	journal    string
	runID      string
	cwd        string
	transcript string
}

func runCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent on a prompt (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			prompt, err := readPrompt(cmd, args)
			if err != nil {
				return err
			}
			cwd, err := workDir(f.cwd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := g.logger()
			a, err := setup(ctx, cfg, cwd, logger)
			defer a.close(logger)
			if err != nil {
				return err
			}

			msg := unifiedllm.UserMessage(prompt)
			var final *agentloop.FinalResponse
			if f.stream {
				final, err = stream(ctx, cmd, a, msg)
			} else {
				final, err = a.engine.Run(ctx, msg, a.tc)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), final.Text)
				}
			}
			if err != nil {
				return err
			}
			logger.Info("run finished",
				"run_id", a.runID,
				"turns", final.TurnCount,
				"input_tokens", final.Usage.InputTokens,
				"output_tokens", final.Usage.OutputTokens,
			)
			if f.transcript != "" {
				return writeTranscript(f.transcript, final.Messages)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.model, "model", "", "model id (overrides config)")
	fl.StringVar(&f.provider, "provider", "", "backend provider (overrides config)")
	fl.IntVar(&f.maxTurns, "max-turns", 0, "model call ceiling, 0 for unlimited")
	fl.BoolVar(&f.parallel, "parallel", true, "run a turn's tool calls concurrently")
	fl.BoolVar(&f.stream, "stream", false, "stream text as it is generated")
	fl.StringVar(&f.journal, "journal", "", "journal model and tool calls to this sqlite file")
	fl.StringVar(&f.runID, "run-id", "", "run id; reusing one replays its journal")
	fl.StringVar(&f.cwd, "cwd", "", "working directory for tools (default current)")
	fl.StringVar(&f.transcript, "transcript", "", "write the run's transcript as JSON to this file")
	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("model") {
		cfg.Backend.Model = f.model
	}
	if fl.Changed("provider") {
		cfg.Backend.Provider = f.provider
	}
	if fl.Changed("max-turns") {
		cfg.Loop.MaxTurns = f.maxTurns
	}
	if fl.Changed("parallel") {
		cfg.Loop.ParallelToolExecution = f.parallel
	}
	if fl.Changed("journal") {
		cfg.Durability.Store = config.StoreSQLite
		cfg.Durability.DSN = f.journal
	}
	if fl.Changed("run-id") {
		cfg.Durability.RunID = f.runID
	}
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

// stream prints text deltas to stdout and tool activity to stderr until the
// run's terminal event.
func stream(ctx context.Context, cmd *cobra.Command, a *app, msg unifiedllm.Message) (*agentloop.FinalResponse, error) {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for ev := range a.engine.RunStreaming(ctx, msg, a.tc) {
		switch ev.Kind {
		case agentloop.StreamTextDelta:
			fmt.Fprint(out, ev.Delta)
		case agentloop.StreamToolCall:
			fmt.Fprintf(errOut, "\n[turn %d] %s %s\n", ev.Turn, ev.ToolCall.Name, ev.ToolCall.Input)
		case agentloop.StreamCompaction:
			fmt.Fprintf(errOut, "[turn %d] history compacted\n", ev.Turn)
		case agentloop.StreamFinal:
			fmt.Fprintln(out)
			final, _ := ev.Outcome.(*agentloop.FinalResponse)
			return final, nil
		case agentloop.StreamError:
			fmt.Fprintln(out)
			return nil, ev.Err
		}
	}
	return nil, errors.New("stream ended without a terminal event")
}

func writeTranscript(path string, history []unifiedllm.Message) error {
	data, err := json.MarshalIndent(agentloop.Transcript(history), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}
