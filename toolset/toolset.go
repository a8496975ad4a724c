// Package toolset provides in-process filesystem and shell tools for an
// agent working in a local directory. Paths are resolved against the
// ToolContext working directory.
package toolset

import (
	"os"
	"path/filepath"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
)

// Options configures the registered tools.
type Options struct {
	ShellTimeout    time.Duration // default per command
	MaxShellTimeout time.Duration // ceiling for a model-requested timeout
	ReadLimit       int           // default lines returned by read_file
	MaxGrepResults  int
	Shell           bool // register the shell tool
}

// DefaultOptions returns 10s shell commands capped at 10 minutes and 2000
// line reads.
func DefaultOptions() Options {
	return Options{
		ShellTimeout:    10 * time.Second,
		MaxShellTimeout: 10 * time.Minute,
		ReadLimit:       2000,
		MaxGrepResults:  100,
		Shell:           true,
	}
}

// Register adds the filesystem tools, and the shell tool when enabled, to
// reg.
func Register(reg *tool.Registry, opts Options) {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 2000
	}
	if opts.MaxGrepResults <= 0 {
		opts.MaxGrepResults = 100
	}
	reg.Register(
		ReadFile(opts.ReadLimit),
		WriteFile(),
		EditFile(),
		ListDir(),
		Glob(),
		Grep(opts.MaxGrepResults),
	)
	if opts.Shell {
		reg.Register(Shell(opts.ShellTimeout, opts.MaxShellTimeout))
	}
}

// resolve makes path absolute against the call's working directory.
func resolve(tc *tool.ToolContext, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	base := ""
	if tc != nil {
		base = tc.Cwd
	}
	if base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Join(base, path)
}

func withAnnotations(f *tool.Func, a tool.Annotations) *tool.Func {
	f.Def.Annotations = &a
	return f
}
