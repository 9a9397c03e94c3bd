package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tandemcode/tandem/internal/find"
)

const grepDescription = `Fast content search tool that works with any codebase size.

Usage:
- Searches file contents using regular expressions
- Supports full regex syntax (e.g. "log.*Error", "function\s+\w+")
- Filter files by pattern with the include parameter (e.g. "*.js")
- Returns matching lines with file paths and line numbers`

const grepMaxMatches = 100

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	workDir string
}

// GrepInput is the grep tool's argument object.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// NewGrepTool creates the grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in (default: current directory)"
			},
			"include": {
				"type": "string",
				"description": "File pattern to include in the search (e.g. \"*.js\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params GrepInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}

	searchDir := tc.Dir(t.workDir)
	if params.Path != "" {
		if filepath.IsAbs(params.Path) {
			searchDir = params.Path
		} else {
			searchDir = filepath.Join(searchDir, params.Path)
		}
	}

	matches, truncated, err := find.Text(ctx, searchDir, params.Pattern, params.Include, grepMaxMatches)
	if err != nil {
		return nil, Userf("search failed: %v", err)
	}
	if len(matches) == 0 {
		return &Result{
			Title:  "Grep search",
			Output: "No matches found",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Text)
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(Results limited to %d matches)", grepMaxMatches))
	}
	return &Result{
		Title:  fmt.Sprintf("Found %d matches", len(matches)),
		Output: sb.String(),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}
