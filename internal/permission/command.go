package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command is one simple command extracted from a shell line.
type Command struct {
	Name       string
	Args       []string
	Subcommand string // first non-flag argument, e.g. "commit" in "git commit"
}

// ParseCommands splits a shell line into its simple commands, looking
// through pipes, lists and substitutions.
func ParseCommands(line string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)
	file, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, fmt.Errorf("parse shell command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd, ok := commandOf(call); ok {
				commands = append(commands, cmd)
			}
		}
		return true
	})
	return commands, nil
}

// CommandPatterns renders a shell line as approval patterns, one per
// simple command: "git commit *", "ls *". An unparseable line yields
// the raw line itself, so it can only ever match an identical grant.
func CommandPatterns(line string) []string {
	commands, err := ParseCommands(line)
	if err != nil || len(commands) == 0 {
		return []string{line}
	}

	seen := make(map[string]bool, len(commands))
	var patterns []string
	for _, cmd := range commands {
		p := cmd.Pattern()
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Pattern renders the command as its approval pattern.
func (c Command) Pattern() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand + " *"
	}
	return c.Name + " *"
}

func commandOf(call *syntax.CallExpr) (Command, bool) {
	if len(call.Args) == 0 {
		return Command{}, false
	}

	cmd := Command{Name: wordText(call.Args[0])}
	if cmd.Name == "" {
		return Command{}, false
	}
	for _, arg := range call.Args[1:] {
		text := wordText(arg)
		cmd.Args = append(cmd.Args, text)
		if cmd.Subcommand == "" && isSubcommand(text) {
			cmd.Subcommand = text
		}
	}
	return cmd, true
}

// isSubcommand accepts plain words like "commit" or "run" and rejects
// flags, paths and anything dynamic, so patterns never hinge on file
// names or substitutions.
func isSubcommand(text string) bool {
	if text == "" || !isLetter(rune(text[0])) {
		return false
	}
	for _, r := range text {
		if !isLetter(r) && !isDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return !strings.HasPrefix(text, "-")
}

func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }

// wordText flattens a shell word to plain text. Dynamic pieces keep a
// marker so they never accidentally match a literal grant.
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
