package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/tandemcode/tandem/internal/permission"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The filePath parameter must be an absolute path
- The oldString must exist in the file (exact match required)
- The newString will replace oldString
- Use replaceAll to replace all occurrences
- The edit will FAIL if oldString is not unique (unless using replaceAll)`

// fuzzyThreshold is the minimum similarity for a fallback match when
// the exact string is absent.
const fuzzyThreshold = 0.7

// EditTool performs targeted string replacement, guarded the same way
// as write.
type EditTool struct {
	workDir string
}

// EditInput is the edit tool's argument object.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates the edit tool.
func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, tc *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, Userf("invalid input: %v", err)
	}
	if params.OldString == params.NewString {
		return nil, Userf("oldString and newString must be different")
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
			Title:     fmt.Sprintf("Edit %s", params.FilePath),
		})
		if err != nil {
			return nil, err
		}
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, Userf("failed to read file: %v", err)
	}
	text := string(content)

	newText, count, how, err := t.replace(text, params)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(params.FilePath, []byte(newText), 0o644); err != nil {
		return nil, Transient(fmt.Errorf("write file: %w", err))
	}
	if tc != nil && tc.Files != nil {
		tc.Files.NoteRead(tc.SessionID, params.FilePath)
	}
	tc.fileEdited(params.FilePath)

	diff, additions, deletions := buildDiffMetadata(params.FilePath, text, newText, t.workDir)

	title := fmt.Sprintf("Edited %s", filepath.Base(params.FilePath))
	if how != "" {
		title += " (" + how + ")"
	}
	return &Result{
		Title:  title,
		Output: fmt.Sprintf("Replaced %d occurrence(s)", count),
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": count,
			"diff":         diff,
			"additions":    additions,
			"deletions":    deletions,
		},
	}, nil
}

// replace tries exact matching first, then line-ending normalization,
// then a fuzzy block match.
func (t *EditTool) replace(text string, params EditInput) (string, int, string, error) {
	count := strings.Count(text, params.OldString)
	switch {
	case count > 0 && params.ReplaceAll:
		return strings.ReplaceAll(text, params.OldString, params.NewString), count, "", nil
	case count == 1:
		return strings.Replace(text, params.OldString, params.NewString, 1), 1, "", nil
	case count > 1:
		return "", 0, "", Userf("oldString appears %d times in file; use replaceAll or provide more context", count)
	}

	normalizedOld := normalizeLineEndings(params.OldString)
	normalizedText := normalizeLineEndings(text)
	if strings.Contains(normalizedText, normalizedOld) {
		return strings.Replace(normalizedText, normalizedOld, params.NewString, 1), 1, "normalized", nil
	}

	match, sim := bestMatch(text, params.OldString)
	if match != "" && sim >= fuzzyThreshold {
		return strings.Replace(text, match, params.NewString, 1), 1,
			fmt.Sprintf("fuzzy, %.0f%% similarity", sim*100), nil
	}

	return "", 0, "", Userf("oldString not found in file; the content may have changed")
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// bestMatch finds the line block most similar to target.
func bestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")
	window := len(targetLines)

	best := ""
	bestSim := 0.0
	for i := 0; i+window <= len(lines); i++ {
		block := strings.Join(lines[i:i+window], "\n")
		if sim := similarity(block, target); sim > bestSim {
			bestSim = sim
			best = block
		}
	}
	return best, bestSim
}

// similarity is normalized Levenshtein similarity, with a cheap
// length-ratio approximation for very large inputs.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		maxLen := max(len(a), len(b))
		minLen := min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(max(len(a), len(b)))
}
