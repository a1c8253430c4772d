package workflow

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionReference is one "uses:" value of the form owner/repo[/path]@ref.
type ActionReference struct {
	Owner string
	Repo  string
	// Path is the directory inside the repository, empty for root actions.
	Path string
	Ref  string
	// Comment is the text of a trailing "# ..." comment, without the marker.
	Comment string
	// Line and Column (both 1-based, Column in runes) locate the start of
	// the value, including an opening quote.
	Line     int
	Column   int
	Quote    string
	FilePath string
	FullUses string
	IsPinned bool
}

// Action returns the reference without its version, e.g.
// "github/codeql-action/init".
func (a ActionReference) Action() string {
	if a.Path == "" {
		return a.Owner + "/" + a.Repo
	}
	return a.Owner + "/" + a.Repo + "/" + a.Path
}

// Repository returns the owner/name coordinate of the action.
func (a ActionReference) Repository() string {
	return a.Owner + "/" + a.Repo
}

var actionRegex = regexp.MustCompile(`^([^/\s]+)/([^@\s]+)@(\S+)$`)
var shaRegex = regexp.MustCompile(`^[a-f0-9]{40}$`)

// usesLineRegex is used when a file is not valid YAML, e.g. because it
// contains template markers.
var usesLineRegex = regexp.MustCompile(`^(\s*(?:-\s+)?uses:\s+)(['"]?)([^/\s'"]+/[^@\s'"]+@[^#\s'"]+)(['"]?)(\s*(?:#\s*(.*))?)?$`)

func ParseWorkflowFile(filePath string) ([]ActionReference, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(filePath, content), nil
}

// Parse finds every remote action reference in a workflow or composite
// action definition. Local actions ("./path") and docker images are
// skipped, as are values that do not end their line.
func Parse(filePath string, content []byte) []ActionReference {
	lines := strings.Split(string(content), "\n")

	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return scanLines(filePath, lines)
	}

	var values []*yaml.Node
	collectUses(&root, &values)

	var actions []ActionReference
	for _, v := range values {
		if action, ok := referenceFromNode(filePath, lines, v); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

func collectUses(n *yaml.Node, out *[]*yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			collectUses(c, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Value == "uses" && value.Kind == yaml.ScalarNode {
				*out = append(*out, value)
				continue
			}
			collectUses(value, out)
		}
	}
}

func referenceFromNode(filePath string, lines []string, v *yaml.Node) (ActionReference, bool) {
	var quote string
	switch v.Style {
	case 0:
	case yaml.DoubleQuotedStyle:
		quote = `"`
	case yaml.SingleQuotedStyle:
		quote = "'"
	default:
		return ActionReference{}, false
	}

	if v.Line < 1 || v.Line > len(lines) || v.Column < 1 {
		return ActionReference{}, false
	}
	line := []rune(lines[v.Line-1])
	start := v.Column - 1
	written := quote + v.Value + quote
	if start > len(line) || !strings.HasPrefix(string(line[start:]), written) {
		return ActionReference{}, false
	}

	rest := strings.TrimSpace(string(line[start+len([]rune(written)):]))
	if rest != "" && !strings.HasPrefix(rest, "#") {
		return ActionReference{}, false
	}

	action, ok := parseActionString(v.Value, filePath, v.Line)
	if !ok {
		return ActionReference{}, false
	}
	action.Column = v.Column
	action.Quote = quote
	action.Comment = strings.TrimSpace(strings.TrimPrefix(rest, "#"))
	return action, true
}

func scanLines(filePath string, lines []string) []ActionReference {
	var actions []ActionReference
	for i, line := range lines {
		m := usesLineRegex.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil || m[2] != m[4] {
			continue
		}
		action, ok := parseActionString(m[3], filePath, i+1)
		if !ok {
			continue
		}
		action.Column = len([]rune(m[1])) + 1
		action.Quote = m[2]
		action.Comment = strings.TrimSpace(m[6])
		actions = append(actions, action)
	}
	return actions
}

func parseActionString(uses, filePath string, lineNum int) (ActionReference, bool) {
	uses = strings.TrimSpace(uses)

	matches := actionRegex.FindStringSubmatch(uses)
	if matches == nil {
		return ActionReference{}, false
	}

	owner := matches[1]
	if strings.HasPrefix(owner, ".") || strings.Contains(owner, ":") {
		return ActionReference{}, false
	}

	repo, path, _ := strings.Cut(matches[2], "/")
	if repo == "" {
		return ActionReference{}, false
	}

	ref := matches[3]
	return ActionReference{
		Owner:    owner,
		Repo:     repo,
		Path:     path,
		Ref:      ref,
		Line:     lineNum,
		FilePath: filePath,
		FullUses: uses,
		IsPinned: shaRegex.MatchString(ref),
	}, true
}
