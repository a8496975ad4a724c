package agentloop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/SecBear/neuron-sub003/tool"
)

// MaxProjectDocBytes caps the project instructions added to a prompt.
const MaxProjectDocBytes = 32 * 1024

const projectDocsTruncated = "[Project instructions truncated at 32KB]"

// PromptOptions describes the system prompt to assemble.
type PromptOptions struct {
	Base     string // agent instructions, placed first
	Cwd      string
	Model    string
	Provider string            // selects provider-specific instruction files
	Tools    []tool.Definition // listed by name and description
	Git      bool              // include branch, status and recent commits
	Now      func() time.Time
}

// BuildSystemPrompt assembles base instructions, an environment block, git
// context, the tool list and project instruction files, in that order.
// Empty sections are left out.
func BuildSystemPrompt(ctx context.Context, opts PromptOptions) string {
	var sections []string
	if opts.Base != "" {
		sections = append(sections, strings.TrimSpace(opts.Base))
	}
	sections = append(sections, EnvironmentContext(ctx, opts))
	if opts.Git {
		if g := GitContext(ctx, opts.Cwd); g != "" {
			sections = append(sections, g)
		}
	}
	if len(opts.Tools) > 0 {
		var sb strings.Builder
		sb.WriteString("# Available Tools\n")
		for _, def := range opts.Tools {
			fmt.Fprintf(&sb, "\n## %s\n%s\n", def.Name, def.Description)
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}
	if docs := DiscoverProjectDocs(ctx, opts.Cwd, opts.Provider); docs != "" {
		sections = append(sections, docs)
	}
	return strings.Join(sections, "\n\n")
}

// EnvironmentContext renders the <environment> block.
func EnvironmentContext(ctx context.Context, opts PromptOptions) string {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	branch := ""
	inRepo := gitRoot(ctx, opts.Cwd) != ""
	if inRepo {
		branch = git(ctx, opts.Cwd, "rev-parse", "--abbrev-ref", "HEAD")
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", opts.Cwd)
	fmt.Fprintf(&sb, "Is git repository: %v\n", inRepo)
	if branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", now().Format("2006-01-02"))
	if opts.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", opts.Model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// instructionFiles lists the project files loaded for a provider. AGENTS.md
// is always loaded.
func instructionFiles(provider string) []string {
	files := []string{"AGENTS.md"}
	switch provider {
	case "anthropic":
		files = append(files, "CLAUDE.md")
	case "gemini":
		files = append(files, "GEMINI.md")
	case "openai":
		files = append(files, ".codex/instructions.md")
	}
	return files
}

// DiscoverProjectDocs loads instruction files from every directory between
// the repository root (or cwd outside a repository) and cwd, outermost
// first, up to MaxProjectDocBytes in total.
func DiscoverProjectDocs(ctx context.Context, cwd, provider string) string {
	if cwd == "" {
		return ""
	}
	root := gitRoot(ctx, cwd)
	if root == "" {
		root = cwd
	}

	var docs []string
	budget := MaxProjectDocBytes
	for _, dir := range pathHierarchy(root, cwd) {
		for _, name := range instructionFiles(provider) {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			if budget <= 0 {
				return strings.Join(append(docs, projectDocsTruncated), "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > budget {
				text = text[:budget] + "\n" + projectDocsTruncated
			}
			budget -= len(content)
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", name, dir, text))
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GitContext summarizes branch, working tree state and recent commits.
func GitContext(ctx context.Context, cwd string) string {
	root := gitRoot(ctx, cwd)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := git(ctx, root, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := git(ctx, root, "status", "--short"); status != "" {
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(strings.Split(status, "\n")))
	}
	if log := git(ctx, root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
		sb.WriteString("\n")
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// pathHierarchy returns the directories from root down to target,
// inclusive. A target outside root yields only target.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{target}
	}
	dirs := []string{root}
	if rel == "." {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(ctx context.Context, dir string) string {
	if dir == "" {
		return ""
	}
	return git(ctx, dir, "rev-parse", "--show-toplevel")
}

// git runs a git subcommand in dir and returns its trimmed output, or ""
// on any failure.
func git(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// DefaultBasePrompt is used when no instructions are configured.
const DefaultBasePrompt = `You are an autonomous agent working in the environment described below.
Use the available tools to complete the task. Prefer small, verifiable steps.
When the task is complete, reply with a concise final answer and no tool calls.`
