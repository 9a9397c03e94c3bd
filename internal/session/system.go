package session

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tandemcode/tandem/pkg/types"
)

const basePrompt = `You are a coding agent operating inside the user's workspace.

You have tools that read, search, write and execute. Use them to do the
work instead of describing it. Read files before editing them, keep
changes minimal, and match the existing code style.`

const planPrompt = `You are in planning mode. Investigate the workspace with the read-only
tools and produce a concrete plan. Do not modify files or run commands
that change state.`

// contextFileName is the project context file appended to the system
// prompt when present at the workspace root.
const contextFileName = "CONTEXT.md"

// systemPrompt assembles the turn's system message: base or mode
// prompt, environment block, project context and extra instruction
// files from config.
func (e *Engine) systemPrompt(sess *types.Session, md mode) string {
	workDir := sess.Directory
	if workDir == "" {
		workDir = e.workDir
	}

	sections := []string{basePrompt}
	if md.prompt != "" {
		sections = append(sections, md.prompt)
	}
	sections = append(sections, environmentContext(workDir))

	if content := readWorkspaceFile(filepath.Join(workDir, contextFileName)); content != "" {
		sections = append(sections, "# Project Context\n\n"+content)
	}
	if e.config != nil {
		for _, path := range e.config.Instructions {
			if !filepath.IsAbs(path) {
				path = filepath.Join(workDir, path)
			}
			if content := readWorkspaceFile(path); content != "" {
				sections = append(sections, content)
			}
		}
	}

	return strings.Join(sections, "\n\n")
}

// environmentContext renders the workspace facts the model needs to
// ground paths and commands.
func environmentContext(workDir string) string {
	var b strings.Builder
	b.WriteString("# Environment\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	return b.String()
}

func readWorkspaceFile(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}
