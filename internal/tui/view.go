package tui

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/thinesjs/tag2sha/internal/pin"
	"github.com/thinesjs/tag2sha/internal/resolver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	fileStyle = lipgloss.NewStyle().
			Underline(true)

	pinnedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	indent = lipgloss.NewStyle().PaddingLeft(2)
)

// progressLabels are shown next to the spinner while a command runs.
var progressLabels = map[State]string{
	StateLoading:    "Finding workflow files...",
	StateScanning:   "Scanning workflow files for actions...",
	StateProcessing: "Writing pinned workflows...",
	StateRestoring:  "Restoring workflow files from backup...",
}

func (m Model) View() string {
	if label, ok := progressLabels[m.state]; ok {
		return fmt.Sprintf("\n%s %s\n", m.spinner.View(), label)
	}

	switch m.state {
	case StateFileSelection:
		return page("Select Workflow Files", m.fileList.View(),
			"↑/↓: navigate • space: toggle selection • enter: continue • q: quit")
	case StateActionReview:
		return m.viewActionReview()
	case StateResolving:
		return fmt.Sprintf("\n%s Resolving %d actions in %s mode...\n", m.spinner.View(), len(m.actions), m.opts.Mode)
	case StateConfirming:
		return m.viewConfirming()
	case StateComplete:
		return m.viewComplete()
	case StateBackupList:
		return page("Restore from Backup", m.backupList.View(),
			"↑/↓: navigate • enter: restore selected • q: cancel")
	case StateError:
		return page(errorStyle.Render("Error"), m.err.Error(), "Press q to quit")
	case StateRateLimited:
		return m.viewRateLimited()
	default:
		return "Unknown state"
	}
}

// page lays out a titled screen with a help line at the bottom.
func page(title, body, help string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		"",
		body,
		"",
		infoStyle.Render(help),
	)
}

func (m Model) viewActionReview() string {
	if len(m.actions) == 0 {
		return page("Actions Found",
			infoStyle.Render("No unpinned actions found. All actions are already pinned!"),
			"Press Enter to exit")
	}

	noun := "unpinned"
	if m.opts.Mode == resolver.ModeUpdateToLatest {
		noun = "updatable"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s actions:\n", len(m.actions), noun)

	file := ""
	for _, action := range m.actions {
		if action.FilePath != file {
			file = action.FilePath
			b.WriteString("\n" + fileStyle.Render(file) + "\n")
		}
		b.WriteString(indent.Render(fmt.Sprintf("%4d  %s@%s", action.Line, action.Action(), action.Ref)) + "\n")
	}

	return page("Actions Found", b.String(),
		fmt.Sprintf("Mode: %s • Press Enter to resolve and pin these actions, q to quit", m.opts.Mode))
}

func (m Model) viewConfirming() string {
	if m.report == nil || m.report.TotalChanges() == 0 {
		body := warningStyle.Render("No actions could be resolved") + "\n" + failures(m.report)
		return page("Ready to Pin Actions", body, "Press Enter to exit")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Will pin %d actions:\n", m.report.TotalChanges())

	for _, file := range m.report.Files {
		if len(file.Changes) == 0 {
			continue
		}
		b.WriteString("\n" + fileStyle.Render(file.Path) + "\n")
		for _, change := range file.Changes {
			b.WriteString(indent.Render(fmt.Sprintf("%4d  %s", change.Line, infoStyle.Render(change.From))) + "\n")
			b.WriteString(indent.Render("   → "+pinnedStyle.Render(change.To.Uses())) + "\n")
		}
	}

	b.WriteString("\n" + failures(m.report))
	if m.opts.DryRun {
		b.WriteString(warningStyle.Render("DRY RUN MODE - No changes will be made") + "\n")
	}

	return page("Ready to Pin Actions", b.String(), "Press Enter to confirm, q to cancel")
}

// failures lists the references of report that could not be resolved.
func failures(report *pin.Report) string {
	if report == nil || !report.Failed() {
		return ""
	}
	lines := []string{errorStyle.Render(fmt.Sprintf("%d references could not be resolved:", report.TotalErrors()))}
	for _, err := range report.Errors() {
		lines = append(lines, indent.Render(err.Error()))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) viewComplete() string {
	var lines []string

	if m.report != nil {
		verb := "Pinned"
		if !m.applied {
			verb = "Would have pinned"
		}
		lines = append(lines, fmt.Sprintf("%s %d actions in %d files", verb, m.report.TotalChanges(), len(m.report.ChangedFiles())))
		if m.report.Failed() {
			lines = append(lines, errorStyle.Render(fmt.Sprintf("%d references failed", m.report.TotalErrors())))
		}
	}
	if m.backupPath != "" {
		lines = append(lines, "Backup created at: "+m.backupPath)
	}
	if m.message != "" {
		lines = append(lines, "", successStyle.Render(m.message))
	}

	keys := []string{"r restore from backup", "q quit"}
	if m.backupPath != "" && m.applied {
		keys = append([]string{"d delete this backup", "k keep this backup"}, keys...)
	}

	return page(successStyle.Render("✓ Complete!"), strings.Join(lines, "\n"), strings.Join(keys, " • "))
}

func (m Model) viewRateLimited() string {
	title := warningStyle.Render("GitHub API Rate Limit Reached")

	if m.tokenPrompt {
		body := "Enter GitHub Personal Access Token:\n" + strings.Repeat("*", len(m.tokenInput))
		return page(title, body, "Press Enter when done, Ctrl+C to cancel")
	}

	lines := []string{"You've hit the GitHub API rate limit."}
	if m.err != nil {
		lines = append(lines, infoStyle.Render(m.err.Error()))
	}
	lines = append(lines,
		"",
		"Create a token with public_repo scope:",
		TokenCreationURL(time.Now()),
		"",
		"Save it for future use: tag2sha auth YOUR_TOKEN",
	)
	return page(title, strings.Join(lines, "\n"), "Press Enter to provide a GitHub token, q to quit")
}

// TokenCreationURL links to the GitHub page creating a token with the scope
// needed to read public repositories.
func TokenCreationURL(now time.Time) string {
	description := fmt.Sprintf("tag2sha-%s", now.Format("2006-01-02"))
	return fmt.Sprintf("https://github.com/settings/tokens/new?description=%s&scopes=public_repo",
		url.QueryEscape(description))
}
