package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thinesjs/tag2sha/internal/backup"
	"github.com/thinesjs/tag2sha/internal/github"
	"github.com/thinesjs/tag2sha/internal/resolver"
	"github.com/thinesjs/tag2sha/internal/workflow"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == StateFileSelection {
			switch msg.String() {
			case "enter":
				return m.handleEnterKey()
			case "ctrl+c", "q":
				return m, tea.Quit
			case " ":
				return m.toggleFileSelection()
			default:
				var cmd tea.Cmd
				m.fileList, cmd = m.fileList.Update(msg)
				return m, cmd
			}
		}
		return m.handleKeyPress(msg)

	case loadingCompleteMsg:
		return m.handleLoadingComplete(msg)

	case scanCompleteMsg:
		return m.handleScanComplete(msg)

	case resolveCompleteMsg:
		return m.handleResolveComplete(msg)

	case processCompleteMsg:
		return m.handleProcessComplete(msg)

	case backupListMsg:
		return m.handleBackupList(msg)

	case restoreCompleteMsg:
		return m.handleRestoreComplete(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case StateComplete:
		switch msg.String() {
		case "d":
			if m.backupPath != "" {
				return m.handleDeleteBackup()
			}
		case "k", "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m.loadBackupList()
		}
		return m, nil

	case StateBackupList:
		switch msg.String() {
		case "enter":
			return m.handleRestoreBackup()
		case "q", "esc":
			m.state = StateComplete
			return m, nil
		default:
			var cmd tea.Cmd
			m.backupList, cmd = m.backupList.Update(msg)
			return m, cmd
		}

	case StateError:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case StateRateLimited:
		if m.tokenPrompt {
			return m.handleTokenInput(msg)
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		if m.state != StateProcessing {
			return m, tea.Quit
		}
	case "enter":
		return m.handleEnterKey()
	}

	return m, nil
}

func (m Model) handleTokenInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		m.opts.Token = m.tokenInput
		m.tokenPrompt = false
		m.state = StateResolving
		return m, tea.Batch(m.spinner.Tick, m.resolveActions())
	case "backspace":
		if len(m.tokenInput) > 0 {
			m.tokenInput = m.tokenInput[:len(m.tokenInput)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.tokenInput += msg.String()
		}
	}
	return m, nil
}

func (m Model) handleEnterKey() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateFileSelection:
		m.selectedFiles = m.getSelectedFiles()
		if len(m.selectedFiles) == 0 {
			m.err = fmt.Errorf("no files selected")
			m.state = StateError
			return m, nil
		}
		m.state = StateScanning
		return m, tea.Batch(m.spinner.Tick, m.scanFiles())

	case StateActionReview:
		if len(m.actions) == 0 {
			m.message = "No actions to pin"
			m.state = StateComplete
			return m, nil
		}
		m.state = StateResolving
		return m, tea.Batch(m.spinner.Tick, m.resolveActions())

	case StateConfirming:
		if m.report == nil || m.report.TotalChanges() == 0 || m.opts.DryRun {
			m.state = StateComplete
			return m, nil
		}
		m.state = StateProcessing
		return m, tea.Batch(m.spinner.Tick, m.processActions())

	case StateRateLimited:
		m.tokenPrompt = true
		return m, nil
	}

	return m, nil
}

func (m Model) handleLoadingComplete(msg loadingCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	m.workflowFiles = msg.files
	if len(m.workflowFiles) == 0 {
		m.err = fmt.Errorf("no workflow files found in %s", workflow.WorkflowDir)
		m.state = StateError
		return m, nil
	}

	items := make([]list.Item, len(m.workflowFiles))
	for i, f := range m.workflowFiles {
		items[i] = workflowFileItem{title: f, checked: true}
	}

	m.fileList = newList(items, false, len(m.workflowFiles)+2)
	m.state = StateFileSelection
	return m, nil
}

func (m Model) handleScanComplete(msg scanCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	var candidates []workflow.ActionReference
	for _, action := range msg.actions {
		if m.opts.Mode == resolver.ModeUpdateToLatest || !action.IsPinned {
			candidates = append(candidates, action)
		}
	}

	m.actions = candidates
	m.state = StateActionReview
	return m, nil
}

func (m Model) handleResolveComplete(msg resolveCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	for _, err := range msg.report.Errors() {
		if github.IsRateLimitError(err) {
			m.err = err
			m.state = StateRateLimited
			return m, nil
		}
	}

	m.report = msg.report
	m.state = StateConfirming
	return m, nil
}

func (m Model) handleProcessComplete(msg processCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	m.applied = true
	m.backupPath = msg.backupPath
	m.state = StateComplete
	return m, nil
}

func (m Model) handleDeleteBackup() (tea.Model, tea.Cmd) {
	if err := backup.DeleteBackup(m.backupPath); err != nil {
		m.message = fmt.Sprintf("Failed to delete backup: %s", err.Error())
	} else {
		m.message = fmt.Sprintf("Deleted backup: %s", m.backupPath)
		m.backupPath = ""
	}
	return m, nil
}

func (m Model) loadBackupList() (tea.Model, tea.Cmd) {
	root := m.opts.Root
	return m, func() tea.Msg {
		backups, err := backup.ListBackups(root)
		return backupListMsg{backups: backups, err: err}
	}
}

func (m Model) handleBackupList(msg backupListMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	if len(msg.backups) == 0 {
		m.message = "No backups found"
		m.state = StateComplete
		return m, nil
	}

	items := make([]list.Item, len(msg.backups))
	for i, b := range msg.backups {
		items[i] = backupItem{info: b}
	}

	m.backupList = newList(items, true, len(msg.backups)*2+2)
	m.state = StateBackupList
	return m, nil
}

func (m Model) handleRestoreBackup() (tea.Model, tea.Cmd) {
	item, ok := m.backupList.SelectedItem().(backupItem)
	if !ok {
		return m, nil
	}

	root := m.opts.Root
	m.state = StateRestoring
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return restoreCompleteMsg{err: backup.RestoreBackup(root, item.info.Path)}
	})
}

func (m Model) handleRestoreComplete(msg restoreCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = StateError
		return m, nil
	}

	m.message = "Backup restored successfully!"
	m.state = StateComplete
	return m, nil
}

func (m Model) toggleFileSelection() (tea.Model, tea.Cmd) {
	selectedIdx := m.fileList.Index()
	if item, ok := m.fileList.SelectedItem().(workflowFileItem); ok {
		item.checked = !item.checked
		m.fileList.SetItem(selectedIdx, item)
	}
	return m, nil
}

func (m Model) getSelectedFiles() []string {
	var selected []string
	for _, item := range m.fileList.Items() {
		if wfItem, ok := item.(workflowFileItem); ok && wfItem.checked {
			selected = append(selected, wfItem.title)
		}
	}
	return selected
}

func (m Model) scanFiles() tea.Cmd {
	files := m.selectedFiles
	return func() tea.Msg {
		var allActions []workflow.ActionReference
		for _, file := range files {
			actions, err := workflow.ParseWorkflowFile(file)
			if err != nil {
				return scanCompleteMsg{err: err}
			}
			allActions = append(allActions, actions...)
		}
		return scanCompleteMsg{actions: allActions}
	}
}

// resolveActions runs the selected files through a dry-run runner; the
// report is written to disk only after confirmation.
func (m Model) resolveActions() tea.Cmd {
	ctx, files, token, factory := m.ctx, m.selectedFiles, m.opts.Token, m.opts.NewRunner
	return func() tea.Msg {
		if factory == nil {
			return resolveCompleteMsg{err: errors.New("no runner configured")}
		}
		runner, err := factory(token)
		if err != nil {
			return resolveCompleteMsg{err: err}
		}
		report, err := runner.Run(ctx, files)
		return resolveCompleteMsg{report: report, err: err}
	}
}

func (m Model) processActions() tea.Cmd {
	report, root, withBackup := m.report, m.opts.Root, m.opts.Backup
	return func() tea.Msg {
		var backupPath string
		if withBackup {
			path, err := backup.CreateBackup(root, report.ChangedFiles(), time.Now())
			if err != nil {
				return processCompleteMsg{err: err}
			}
			backupPath = path
		}

		if err := report.Write(); err != nil {
			return processCompleteMsg{err: err}
		}
		return processCompleteMsg{backupPath: backupPath}
	}
}

func newList(items []list.Item, showDescription bool, height int) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = showDescription
	if showDescription {
		delegate.SetHeight(2)
	} else {
		delegate.SetHeight(1)
	}
	delegate.SetSpacing(0)

	if height > 15 {
		height = 15
	}

	l := list.New(items, delegate, 80, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}
