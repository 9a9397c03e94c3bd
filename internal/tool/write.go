package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tandemcode/tandem/internal/permission"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- This tool will overwrite existing files
- Parent directories will be created if they don't exist
- ALWAYS prefer editing existing files over creating new ones`

// WriteTool writes whole files. Overwrites require that the session
// read the file first and that the client approves the edit.
type WriteTool struct {
	workDir string
}

// WriteInput is the write tool's argument object.
type WriteInput struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// NewWriteTool creates the write tool.
func NewWriteTool(workDir string) *WriteTool {
	return &WriteTool{workDir: workDir}
}

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write to the file"
			}
		},
		"required": ["filePath", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params WriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}

	if tc != nil && tc.Files != nil {
		if err := tc.Files.AssertFresh(tc.SessionID, params.FilePath); err != nil {
			return nil, Userf("%v; read the file first", err)
		}
	}

	if tc != nil && tc.Gate != nil {
		err := tc.Gate.Require(ctx, permission.Request{
			SessionID: tc.SessionID,
			Tool:      t.ID(),
			Action:    "edit",
			Patterns:  []string{params.FilePath},
			Title:     fmt.Sprintf("Write %s", params.FilePath),
		})
		if err != nil {
			return nil, err
		}
	}

	before := ""
	if existing, err := os.ReadFile(params.FilePath); err == nil {
		before = string(existing)
	}

	if err := os.MkdirAll(filepath.Dir(params.FilePath), 0o755); err != nil {
		return nil, Transient(fmt.Errorf("create directory: %w", err))
	}
	if err := os.WriteFile(params.FilePath, []byte(params.Content), 0o644); err != nil {
		return nil, Transient(fmt.Errorf("write file: %w", err))
	}

	if tc != nil && tc.Files != nil {
		tc.Files.NoteRead(tc.SessionID, params.FilePath)
	}
	tc.fileEdited(params.FilePath)

	diff, additions, deletions := buildDiffMetadata(params.FilePath, before, params.Content, t.workDir)

	return &Result{
		Title:  fmt.Sprintf("Wrote %s", filepath.Base(params.FilePath)),
		Output: fmt.Sprintf("Successfully wrote %d bytes to %s", len(params.Content), params.FilePath),
		Metadata: map[string]any{
			"file":      params.FilePath,
			"bytes":     len(params.Content),
			"diff":      diff,
			"additions": additions,
			"deletions": deletions,
		},
	}, nil
}
