// Package find implements workspace search: file content, file names
// and a rough symbol lookup. It shells out to ripgrep when available
// and falls back to a pure-Go scan otherwise.
package find

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is one content hit.
type Match struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Directories never worth searching.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	".venv":        true,
	"venv":         true,
}

// Text searches file contents under root for the regex pattern.
// include optionally narrows to a file glob like "*.go". The bool
// result reports truncation at limit.
func Text(ctx context.Context, root, pattern, include string, limit int) ([]Match, bool, error) {
	if limit <= 0 {
		limit = 100
	}
	if _, err := exec.LookPath("rg"); err == nil {
		return ripgrep(ctx, root, pattern, include, limit)
	}
	return scan(ctx, root, pattern, include, limit)
}

func ripgrep(ctx context.Context, root, pattern, include string, limit int) ([]Match, bool, error) {
	args := []string{"--line-number", "--with-filename", "--color=never"}
	if include != "" {
		args = append(args, "--glob", include)
	}
	args = append(args, pattern, root)

	out, err := exec.CommandContext(ctx, "rg", args...).Output()
	if err != nil && len(out) == 0 {
		// Exit code 1 means no matches; anything else is a real
		// failure.
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return nil, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("ripgrep: %w", err)
	}

	var matches []Match
	truncated := false
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		if len(matches) >= limit {
			truncated = true
			break
		}
		lineNum, _ := strconv.Atoi(parts[1])
		matches = append(matches, Match{File: parts[0], Line: lineNum, Text: parts[2]})
	}
	return matches, truncated, nil
}

func scan(ctx context.Context, root, pattern, include string, limit int) ([]Match, bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false, fmt.Errorf("compile pattern: %w", err)
	}

	var matches []Match
	truncated := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := doublestar.Match(include, d.Name()); !ok {
				return nil
			}
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			text := scanner.Text()
			if strings.ContainsRune(text, 0) {
				// Binary file, move on.
				return nil
			}
			if re.MatchString(text) {
				if len(matches) >= limit {
					truncated = true
					return filepath.SkipAll
				}
				matches = append(matches, Match{File: path, Line: lineNum, Text: text})
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return matches, truncated, nil
}

// Files matches file paths under root against a doublestar glob like
// "**/*.go", newest first. The bool result reports truncation.
func Files(ctx context.Context, root, pattern string, limit int) ([]string, bool, error) {
	if limit <= 0 {
		limit = 100
	}

	paths, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, false, fmt.Errorf("glob %q: %w", pattern, err)
	}

	type entry struct {
		path  string
		mtime int64
	}
	entries := make([]entry, 0, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		info, err := os.Stat(filepath.Join(root, p))
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, entry{path: p, mtime: info.ModTime().UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].mtime != entries[j].mtime {
			return entries[i].mtime > entries[j].mtime
		}
		return entries[i].path < entries[j].path
	})

	truncated := len(entries) > limit
	if truncated {
		entries = entries[:limit]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, truncated, nil
}

// FuzzyFiles matches file paths whose name contains every character of
// query in order, the cheap subsequence match editors use.
func FuzzyFiles(ctx context.Context, root, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	query = strings.ToLower(query)

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		if subsequence(strings.ToLower(rel), query) {
			out = append(out, rel)
			if len(out) >= limit {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return out, err
}

// Symbols finds definition-shaped lines mentioning query: functions,
// types, classes across the common languages. It is a text heuristic,
// not a parser.
func Symbols(ctx context.Context, root, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := fmt.Sprintf(`(func|type|struct|interface|class|def|function|const|var)\s+\w*%s\w*`, regexp.QuoteMeta(query))
	matches, _, err := Text(ctx, root, pattern, "", limit)
	return matches, err
}

func subsequence(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	i := 0
	for _, r := range haystack {
		if byte(r) == needle[i] {
			i++
			if i == len(needle) {
				return true
			}
		}
	}
	return false
}
