package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func editFixture(t *testing.T, tc *Context, content string) string {
	t.Helper()
	target := filepath.Join(t.TempDir(), "file.go")
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	tc.Files.NoteRead(tc.SessionID, target)
	return target
}

func TestEditToolExactReplace(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "func main() {\n\tprintln(\"hi\")\n}\n")

	input, _ := json.Marshal(EditInput{
		FilePath:  target,
		OldString: `println("hi")`,
		NewString: `println("bye")`,
	})
	result, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), `println("bye")`) {
		t.Errorf("replacement not applied: %q", data)
	}
	if result.Metadata["replacements"].(int) != 1 {
		t.Errorf("expected 1 replacement, got %v", result.Metadata["replacements"])
	}
}

func TestEditToolAmbiguousMatch(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "x := 1\nx := 1\n")

	input, _ := json.Marshal(EditInput{FilePath: target, OldString: "x := 1", NewString: "y := 2"})
	_, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err == nil || !strings.Contains(err.Error(), "replaceAll") {
		t.Errorf("ambiguous match should suggest replaceAll, got %v", err)
	}
}

func TestEditToolReplaceAll(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "a b a b a\n")

	input, _ := json.Marshal(EditInput{FilePath: target, OldString: "a", NewString: "z", ReplaceAll: true})
	result, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Metadata["replacements"].(int) != 3 {
		t.Errorf("expected 3 replacements, got %v", result.Metadata["replacements"])
	}

	data, _ := os.ReadFile(target)
	if string(data) != "z b z b z\n" {
		t.Errorf("wrong content: %q", data)
	}
}

func TestEditToolNormalizedLineEndings(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "one\r\ntwo\r\nthree\r\n")

	input, _ := json.Marshal(EditInput{FilePath: target, OldString: "one\ntwo", NewString: "uno\ndos"})
	result, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Title, "normalized") {
		t.Errorf("title should mark the normalized match: %q", result.Title)
	}

	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), "uno\ndos") {
		t.Errorf("replacement not applied: %q", data)
	}
}

func TestEditToolFuzzyMatch(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "func handleRequest(w http.ResponseWriter, r *http.Request) {\n\treturn\n}\n")

	// Slightly wrong whitespace still resolves to the real block.
	input, _ := json.Marshal(EditInput{
		FilePath:  target,
		OldString: "func handleRequest(w http.ResponseWriter,  r *http.Request) {\n  return\n}",
		NewString: "func handleRequest(w http.ResponseWriter, r *http.Request) {\n\tpanic(\"todo\")\n}",
	})
	result, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Title, "fuzzy") {
		t.Errorf("title should mark the fuzzy match: %q", result.Title)
	}

	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), `panic("todo")`) {
		t.Errorf("replacement not applied: %q", data)
	}
}

func TestEditToolNotFound(t *testing.T) {
	tc := testContext(t)
	target := editFixture(t, tc, "alpha beta gamma\n")

	input, _ := json.Marshal(EditInput{FilePath: target, OldString: "completely unrelated text", NewString: "x"})
	_, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestEditToolIdenticalStrings(t *testing.T) {
	input, _ := json.Marshal(EditInput{FilePath: "/tmp/x", OldString: "same", NewString: "same"})
	_, err := NewEditTool("").Execute(context.Background(), input, testContext(t))
	if err == nil {
		t.Fatal("identical oldString and newString should fail")
	}
}

func TestEditToolRequiresPriorRead(t *testing.T) {
	tc := testContext(t)
	target := filepath.Join(t.TempDir(), "unread.txt")
	if err := os.WriteFile(target, []byte("content"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	input, _ := json.Marshal(EditInput{FilePath: target, OldString: "content", NewString: "changed"})
	_, err := NewEditTool("").Execute(context.Background(), input, tc)
	if err == nil || !strings.Contains(err.Error(), "read the file first") {
		t.Errorf("editing an unread file should fail, got %v", err)
	}
}
