package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const listDescription = `Lists files and directories in a given path.

Usage:
- The path parameter should be an absolute path
- Optional ignore parameter takes glob patterns to exclude
- Common noise directories (.git, node_modules, etc.) are skipped
- Output is a tree rooted at the listed directory`

const listMaxEntries = 1000

var listDefaultIgnore = []string{
	".git",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"__pycache__",
	".idea",
	".vscode",
}

// ListTool lists a directory as a tree.
type ListTool struct {
	workDir string
}

// ListInput is the list tool's argument object.
type ListInput struct {
	Path   string   `json:"path,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
}

// NewListTool creates the list tool.
func NewListTool(workDir string) *ListTool {
	return &ListTool{workDir: workDir}
}

func (t *ListTool) ID() string          { return "list" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The absolute path to the directory to list (defaults to the working directory)"
			},
			"ignore": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Glob patterns to exclude from the listing"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params ListInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}

	root := params.Path
	if root == "" {
		root = tc.Dir(t.workDir)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, Userf("path not found: %s", root)
	}
	if !info.IsDir() {
		return nil, Userf("path is not a directory: %s", root)
	}

	var entries []string
	truncated := false
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if shouldIgnore(d.Name(), rel, params.Ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(entries) >= listMaxEntries {
			truncated = true
			return filepath.SkipAll
		}
		if d.IsDir() {
			rel += string(os.PathSeparator)
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sort.Strings(entries)

	var sb strings.Builder
	sb.WriteString(root + string(os.PathSeparator) + "\n")
	for _, e := range entries {
		depth := strings.Count(filepath.ToSlash(strings.TrimSuffix(e, string(os.PathSeparator))), "/")
		sb.WriteString(strings.Repeat("  ", depth+1))
		sb.WriteString("- " + filepath.Base(strings.TrimSuffix(e, string(os.PathSeparator))))
		if strings.HasSuffix(e, string(os.PathSeparator)) {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(Listing truncated at %d entries)", listMaxEntries))
	}

	return &Result{
		Title:  fmt.Sprintf("Listed %s", root),
		Output: sb.String(),
		Metadata: map[string]any{
			"path":      root,
			"count":     len(entries),
			"truncated": truncated,
		},
	}, nil
}

func shouldIgnore(name, rel string, extra []string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		for _, keep := range []string{".github", ".config"} {
			if name == keep {
				return false
			}
		}
		return true
	}
	for _, p := range listDefaultIgnore {
		if name == p {
			return true
		}
	}
	for _, p := range extra {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}
