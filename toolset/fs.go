package toolset

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/SecBear/neuron-sub003/tool"
)

type readFileInput struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to the file to read."`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from."`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read."`
}

// ReadFile returns line-numbered file content, limit lines at a time.
func ReadFile(defaultLimit int) tool.Tool {
	f := tool.NewTyped("read_file", "Read a file from the filesystem. Returns line-numbered content.",
		func(_ context.Context, in readFileInput, tc *tool.ToolContext) (*tool.Output, error) {
			if in.FilePath == "" {
				return nil, tool.ModelRetry("read_file", "file_path is required")
			}
			data, err := os.ReadFile(resolve(tc, in.FilePath))
			if err != nil {
				return tool.ErrorText(fmt.Sprintf("cannot read %s: %v", in.FilePath, err)), nil
			}
			limit := in.Limit
			if limit <= 0 {
				limit = defaultLimit
			}
			return tool.Text(numberLines(string(data), in.Offset, limit)), nil
		})
	return withAnnotations(f, tool.Annotations{ReadOnly: true, Idempotent: true})
}

func numberLines(content string, offset, limit int) string {
	lines := strings.Split(content, "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String()
}

type writeFileInput struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to write to."`
	Content  string `json:"content" jsonschema:"description=The full file content."`
}

// WriteFile creates or replaces a file, creating parent directories.
func WriteFile() tool.Tool {
	f := tool.NewTyped("write_file", "Write content to a file. Creates the file and parent directories if needed.",
		func(_ context.Context, in writeFileInput, tc *tool.ToolContext) (*tool.Output, error) {
			if in.FilePath == "" {
				return nil, tool.ModelRetry("write_file", "file_path is required")
			}
			path := resolve(tc, in.FilePath)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, tool.ExecutionFailed("write_file", err)
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return nil, tool.ExecutionFailed("write_file", err)
			}
			return tool.Text(fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.FilePath)), nil
		})
	return withAnnotations(f, tool.Annotations{Destructive: true, Idempotent: true})
}

type editFileInput struct {
	FilePath   string `json:"file_path" jsonschema:"description=Path to the file to edit."`
	OldString  string `json:"old_string" jsonschema:"description=Exact text to find."`
	NewString  string `json:"new_string" jsonschema:"description=Replacement text."`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence."`
}

// EditFile replaces an exact string. The string must be unique unless
// replace_all is set; a missing or ambiguous match is a retry hint.
func EditFile() tool.Tool {
	f := tool.NewTyped("edit_file", "Replace an exact string in a file. old_string must be unique unless replace_all is true.",
		func(_ context.Context, in editFileInput, tc *tool.ToolContext) (*tool.Output, error) {
			if in.FilePath == "" || in.OldString == "" {
				return nil, tool.ModelRetry("edit_file", "file_path and old_string are required")
			}
			path := resolve(tc, in.FilePath)
			data, err := os.ReadFile(path)
			if err != nil {
				return tool.ErrorText(fmt.Sprintf("cannot read %s: %v", in.FilePath, err)), nil
			}
			content := string(data)
			n := strings.Count(content, in.OldString)
			switch {
			case n == 0:
				return nil, tool.ModelRetry("edit_file", fmt.Sprintf("old_string not found in %s", in.FilePath))
			case n > 1 && !in.ReplaceAll:
				return nil, tool.ModelRetry("edit_file", fmt.Sprintf(
					"old_string matches %d times in %s; add context to make it unique or set replace_all", n, in.FilePath))
			}
			replaced := 1
			if in.ReplaceAll {
				replaced = n
				content = strings.ReplaceAll(content, in.OldString, in.NewString)
			} else {
				content = strings.Replace(content, in.OldString, in.NewString, 1)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, tool.ExecutionFailed("edit_file", err)
			}
			return tool.Text(fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, in.FilePath)), nil
		})
	return withAnnotations(f, tool.Annotations{Destructive: true})
}

type listDirInput struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list. Defaults to the working directory."`
}

// ListDir lists a directory, directories first.
func ListDir() tool.Tool {
	f := tool.NewTyped("list_dir", "List the entries of a directory.",
		func(_ context.Context, in listDirInput, tc *tool.ToolContext) (*tool.Output, error) {
			entries, err := os.ReadDir(resolve(tc, in.Path))
			if err != nil {
				return tool.ErrorText(fmt.Sprintf("cannot list %s: %v", in.Path, err)), nil
			}
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].IsDir() && !entries[j].IsDir()
			})
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintf(&sb, "%s/\n", e.Name())
					continue
				}
				size := int64(0)
				if info, err := e.Info(); err == nil {
					size = info.Size()
				}
				fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name(), size)
			}
			return tool.Text(sb.String()), nil
		})
	return withAnnotations(f, tool.Annotations{ReadOnly: true, Idempotent: true})
}

type globInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern such as *.go or cmd/*/main.go."`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search from."`
}

// Glob matches a pattern relative to a directory.
func Glob() tool.Tool {
	f := tool.NewTyped("glob", "Find files matching a glob pattern.",
		func(_ context.Context, in globInput, tc *tool.ToolContext) (*tool.Output, error) {
			if in.Pattern == "" {
				return nil, tool.ModelRetry("glob", "pattern is required")
			}
			base := resolve(tc, in.Path)
			matches, err := filepath.Glob(filepath.Join(base, in.Pattern))
			if err != nil {
				return nil, tool.ModelRetry("glob", fmt.Sprintf("bad pattern: %v", err))
			}
			for i, m := range matches {
				if rel, err := filepath.Rel(base, m); err == nil {
					matches[i] = rel
				}
			}
			if len(matches) == 0 {
				return tool.Text("No files matched."), nil
			}
			return tool.Text(strings.Join(matches, "\n")), nil
		})
	return withAnnotations(f, tool.Annotations{ReadOnly: true, Idempotent: true})
}

type grepInput struct {
	Pattern         string `json:"pattern" jsonschema:"description=Regular expression to search for."`
	Path            string `json:"path,omitempty" jsonschema:"description=File or directory to search."`
	Glob            string `json:"glob,omitempty" jsonschema:"description=Only search files whose name matches this glob."`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
}

// Grep searches file contents with a regular expression, skipping hidden
// directories and binary files. Results are path:line: text.
func Grep(maxResults int) tool.Tool {
	f := tool.NewTyped("grep", "Search file contents with a regular expression.",
		func(ctx context.Context, in grepInput, tc *tool.ToolContext) (*tool.Output, error) {
			pattern := in.Pattern
			if in.CaseInsensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil || in.Pattern == "" {
				return nil, tool.ModelRetry("grep", fmt.Sprintf("invalid pattern %q: %v", in.Pattern, err))
			}
			base := resolve(tc, in.Path)

			var results []string
			walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					if path != base && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if in.Glob != "" {
					if ok, _ := filepath.Match(in.Glob, d.Name()); !ok {
						return nil
					}
				}
				data, err := os.ReadFile(path)
				if err != nil || bytes.IndexByte(data[:min(len(data), 512)], 0) >= 0 {
					return nil
				}
				rel, _ := filepath.Rel(base, path)
				if rel == "." {
					rel = filepath.Base(path)
				}
				for i, line := range strings.Split(string(data), "\n") {
					if re.MatchString(line) {
						results = append(results, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
						if len(results) >= maxResults {
							return fs.SkipAll
						}
					}
				}
				return nil
			})
			if walkErr != nil {
				return nil, walkErr
			}
			if len(results) == 0 {
				return tool.Text("No matches found."), nil
			}
			return tool.Text(strings.Join(results, "\n")), nil
		})
	return withAnnotations(f, tool.Annotations{ReadOnly: true, Idempotent: true})
}
