// Package vcs integrates with git: change status for the file
// endpoints and a workspace watcher for external edits.
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FileStatus is one changed file in the working tree.
type FileStatus struct {
	Path    string `json:"path"`
	Status  string `json:"status"` // "added" | "modified" | "deleted" | "untracked"
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// IsRepo reports whether dir is inside a git worktree.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Branch returns the current branch name, empty outside a repo.
func Branch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Status lists the working tree's changed files with line counts from
// the diff against HEAD. Untracked files carry no counts.
func Status(ctx context.Context, dir string) ([]FileStatus, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	var files []FileStatus
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		// Renames show as "old -> new"; report the new path.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, FileStatus{Path: path, Status: statusName(code)})
	}

	counts, err := numstat(ctx, dir)
	if err != nil {
		return files, nil
	}
	for i := range files {
		if c, ok := counts[files[i].Path]; ok {
			files[i].Added = c.added
			files[i].Removed = c.removed
		}
	}
	return files, nil
}

// Diff returns the unified diff of one file against HEAD.
func Diff(ctx context.Context, dir, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "HEAD", "--", path)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff %s: %w", path, err)
	}
	return string(out), nil
}

func statusName(code string) string {
	switch {
	case code == "??":
		return "untracked"
	case strings.ContainsAny(code, "A"):
		return "added"
	case strings.ContainsAny(code, "D"):
		return "deleted"
	default:
		return "modified"
	}
}

type lineCounts struct {
	added   int
	removed int
}

func numstat(ctx context.Context, dir string) (map[string]lineCounts, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "HEAD", "--numstat")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]lineCounts)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// Binary files report "-" for both counts.
		added, _ := strconv.Atoi(fields[0])
		removed, _ := strconv.Atoi(fields[1])
		counts[fields[2]] = lineCounts{added: added, removed: removed}
	}
	return counts, nil
}
