package toolset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
)

type shellInput struct {
	Command   string `json:"command" jsonschema:"description=The command to run."`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"description=Timeout in milliseconds."`
	Workdir   string `json:"workdir,omitempty" jsonschema:"description=Directory to run in. Defaults to the working directory."`
}

// Shell runs a command through the system shell. Commands that outlive
// their timeout are killed with their whole process group and reported as
// a timeout. A non-zero exit status is an error-flagged result.
func Shell(defaultTimeout, maxTimeout time.Duration) tool.Tool {
	f := tool.NewTyped("shell", "Execute a shell command. Returns stdout, stderr and the exit code.",
		func(ctx context.Context, in shellInput, tc *tool.ToolContext) (*tool.Output, error) {
			if strings.TrimSpace(in.Command) == "" {
				return nil, tool.ModelRetry("shell", "command is required")
			}
			timeout := defaultTimeout
			if in.TimeoutMs > 0 {
				timeout = time.Duration(in.TimeoutMs) * time.Millisecond
			}
			if maxTimeout > 0 && timeout > maxTimeout {
				timeout = maxTimeout
			}

			dir := ""
			if in.Workdir != "" {
				dir = resolve(tc, in.Workdir)
			} else if tc != nil {
				dir = tc.Cwd
			}
			var extra map[string]string
			if tc != nil {
				extra = tc.Environment
			}

			res, err := runCommand(ctx, in.Command, dir, timeout, extra)
			if err != nil {
				return nil, tool.ExecutionFailed("shell", err)
			}
			if res.timedOut {
				return nil, tool.TimedOut("shell", fmt.Sprintf(
					"command timed out after %s\n%s", timeout, res.output()))
			}
			text := res.output()
			if res.exitCode != 0 {
				return tool.ErrorText(fmt.Sprintf("%s\nExit code: %d", text, res.exitCode)), nil
			}
			return tool.Text(text), nil
		})
	return withAnnotations(f, tool.Annotations{Destructive: true, OpenWorld: true})
}

type execResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

func (r execResult) output() string {
	switch {
	case r.stderr == "":
		return r.stdout
	case r.stdout == "":
		return r.stderr
	default:
		return r.stdout + "\n" + r.stderr
	}
}

func runCommand(ctx context.Context, command, dir string, timeout time.Duration, extra map[string]string) (execResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := shellCommand(ctx, command)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	env := FilterEnvironment(os.Environ())
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{stdout: stdout.String(), stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.timedOut = true
		res.exitCode = -1
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

var sensitiveSuffixes = []string{"_API_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_CREDENTIAL"}

var alwaysKept = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true, "LANG": true,
	"TERM": true, "TMPDIR": true, "GOPATH": true, "GOROOT": true,
}

// FilterEnvironment drops variables whose names look like credentials.
func FilterEnvironment(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if alwaysKept[name] || !isSensitive(name) {
			out = append(out, kv)
		}
	}
	return out
}

func isSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}
