package workflow

import (
	"fmt"
	"os"
	"strings"
)

type Replacement struct {
	Action  ActionReference
	SHA     string
	Version string
}

// Uses renders the pinned value with its trailing version comment.
func (r Replacement) Uses() string {
	q := r.Action.Quote
	return fmt.Sprintf("%s%s@%s%s  # %s", q, r.Action.Action(), r.SHA, q, r.Version)
}

// Apply rewrites each referenced line in content. Everything from the
// start of the value to the end of the line is replaced, so an existing
// comment gives way to the new version comment.
func Apply(content []byte, replacements []Replacement) ([]byte, error) {
	lines := strings.Split(string(content), "\n")

	for _, repl := range replacements {
		idx := repl.Action.Line - 1
		if idx < 0 || idx >= len(lines) {
			return nil, fmt.Errorf("line %d out of range for %s", repl.Action.Line, repl.Action.FullUses)
		}

		line := lines[idx]
		cr := ""
		if strings.HasSuffix(line, "\r") {
			cr = "\r"
			line = strings.TrimSuffix(line, "\r")
		}

		runes := []rune(line)
		start := repl.Action.Column - 1
		written := repl.Action.Quote + repl.Action.FullUses + repl.Action.Quote
		if start < 0 || start > len(runes) || !strings.HasPrefix(string(runes[start:]), written) {
			return nil, fmt.Errorf("line %d no longer contains %s", repl.Action.Line, repl.Action.FullUses)
		}

		lines[idx] = string(runes[:start]) + repl.Uses() + cr
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// WriteFile replaces the content of an existing file, keeping its
// permissions.
func WriteFile(filePath string, content []byte) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if err := os.WriteFile(filePath, content, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
