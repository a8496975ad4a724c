package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SecBear/neuron-sub003/config"
	"github.com/SecBear/neuron-sub003/tool"
)

var version = "dev"

type globalFlags struct {
	configPath string
	verbose    bool
}

func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "neuron",
		Short:        "Run a tool-using LLM agent loop",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (.yaml, .yml, .json or .jsonc)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	cmd.AddCommand(runCmd(g), toolsCmd(g), versionCmd())
	return cmd
}

func toolsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent would be given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			logger := g.logger()
			reg, closers, err := buildRegistry(cmd.Context(), cfg, logger)
			defer closeAll(closers, logger)
			if err != nil {
				return err
			}
			printTools(cmd, reg.Definitions())
			return nil
		},
	}
}

func printTools(cmd *cobra.Command, defs []tool.Definition) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tHINTS\tDESCRIPTION\n")
	for _, def := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, hints(def.Annotations), firstLine(def.Description))
	}
	tw.Flush()
}

func hints(a *tool.Annotations) string {
	if a == nil {
		return "-"
	}
	var hs []string
	if a.ReadOnly {
		hs = append(hs, "read-only")
	}
	if a.Destructive {
		hs = append(hs, "destructive")
	}
	if a.Idempotent {
		hs = append(hs, "idempotent")
	}
	if a.OpenWorld {
		hs = append(hs, "open-world")
	}
	if len(hs) == 0 {
		return "-"
	}
	sort.Strings(hs)
	return strings.Join(hs, ",")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neuron %s\n", version)
		},
	}
}

func workDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", abs)
	}
	return abs, nil
}

type closer func(context.Context) error

func closeAll(closers []closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](context.Background()); err != nil {
			logger.Warn("shutdown failed", "error", err)
		}
	}
}
