package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WorkflowDir is where GitHub looks for workflow definitions.
const WorkflowDir = ".github/workflows"

// FindWorkflowFiles returns the workflow files under root/.github/workflows
// together with composite action definitions (action.yml) found under
// root/.github/actions and at root itself.
func FindWorkflowFiles(root string) ([]string, error) {
	workflowDir := filepath.Join(root, WorkflowDir)
	if _, err := os.Stat(workflowDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("workflows directory not found: %s", workflowDir)
	}

	var files []string

	walk := func(dir string, accept func(name string) bool) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if accept(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
	}

	if err := walk(workflowDir, isYAML); err != nil {
		return nil, fmt.Errorf("failed to scan workflows directory: %w", err)
	}

	actionsDir := filepath.Join(root, ".github", "actions")
	if _, err := os.Stat(actionsDir); err == nil {
		if err := walk(actionsDir, isActionFile); err != nil {
			return nil, fmt.Errorf("failed to scan actions directory: %w", err)
		}
	}

	for _, name := range []string{"action.yml", "action.yaml"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yml" || ext == ".yaml"
}

func isActionFile(name string) bool {
	return name == "action.yml" || name == "action.yaml"
}
