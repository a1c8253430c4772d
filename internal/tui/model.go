package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thinesjs/tag2sha/internal/backup"
	"github.com/thinesjs/tag2sha/internal/pin"
	"github.com/thinesjs/tag2sha/internal/resolver"
	"github.com/thinesjs/tag2sha/internal/workflow"
)

type State int

const (
	StateLoading State = iota
	StateFileSelection
	StateScanning
	StateActionReview
	StateResolving
	StateConfirming
	StateProcessing
	StateComplete
	StateBackupList
	StateRestoring
	StateError
	StateRateLimited
)

// RunnerFactory builds a dry-run runner authenticated with token.
type RunnerFactory func(token string) (*pin.Runner, error)

type Options struct {
	Root      string
	Token     string
	Mode      resolver.Mode
	DryRun    bool
	Backup    bool
	NewRunner RunnerFactory
}

type Model struct {
	ctx           context.Context
	opts          Options
	state         State
	spinner       spinner.Model
	workflowFiles []string
	selectedFiles []string
	fileList      list.Model
	backupList    list.Model
	actions       []workflow.ActionReference
	report        *pin.Report
	applied       bool
	err           error
	backupPath    string
	message       string
	tokenPrompt   bool
	tokenInput    string
}

type workflowFileItem struct {
	title   string
	checked bool
}

func (i workflowFileItem) Title() string {
	checkbox := "[ ]"
	if i.checked {
		checkbox = "[✓]"
	}
	return checkbox + " " + i.title
}
func (i workflowFileItem) Description() string { return "" }
func (i workflowFileItem) FilterValue() string { return i.title }

type loadingCompleteMsg struct {
	files []string
	err   error
}

type scanCompleteMsg struct {
	actions []workflow.ActionReference
	err     error
}

type resolveCompleteMsg struct {
	report *pin.Report
	err    error
}

type processCompleteMsg struct {
	backupPath string
	err        error
}

type backupListMsg struct {
	backups []backup.BackupInfo
	err     error
}

type restoreCompleteMsg struct {
	err error
}

type backupItem struct {
	info backup.BackupInfo
}

func (i backupItem) Title() string {
	return fmt.Sprintf("%s (%d files)", i.info.Timestamp, i.info.FileCount)
}
func (i backupItem) Description() string { return i.info.Path }
func (i backupItem) FilterValue() string { return i.info.Timestamp }

func NewModel(ctx context.Context, opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		opts:    opts,
		state:   StateLoading,
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.loadWorkflowFiles,
	)
}

// Report returns the outcome of the session, or nil when nothing was
// resolved.
func (m Model) Report() *pin.Report {
	return m.report
}

// Applied reports whether the changes were written to disk.
func (m Model) Applied() bool {
	return m.applied
}

func (m Model) loadWorkflowFiles() tea.Msg {
	files, err := workflow.FindWorkflowFiles(m.opts.Root)
	return loadingCompleteMsg{files: files, err: err}
}
