package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func globFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"main.go", "util.go", "README.md", "sub/helper.go"} {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("package x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestGlobToolMatches(t *testing.T) {
	dir := globFixture(t)

	input, _ := json.Marshal(GlobInput{Pattern: "**/*.go"})
	result, err := NewGlobTool(dir).Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Metadata["count"].(int) != 3 {
		t.Errorf("expected 3 matches, got %v", result.Metadata["count"])
	}
	if !strings.Contains(result.Output, "helper.go") {
		t.Errorf("nested file should match: %q", result.Output)
	}
	if strings.Contains(result.Output, "README.md") {
		t.Errorf("non-matching file in output: %q", result.Output)
	}
}

func TestGlobToolNoMatches(t *testing.T) {
	dir := globFixture(t)

	input, _ := json.Marshal(GlobInput{Pattern: "*.rs"})
	result, err := NewGlobTool(dir).Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "No files matched") {
		t.Errorf("expected no-match output, got %q", result.Output)
	}
}

func TestGlobToolRelativePath(t *testing.T) {
	dir := globFixture(t)

	input, _ := json.Marshal(GlobInput{Pattern: "*.go", Path: "sub"})
	result, err := NewGlobTool(dir).Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Metadata["count"].(int) != 1 {
		t.Errorf("expected 1 match under sub/, got %v", result.Metadata["count"])
	}
}
