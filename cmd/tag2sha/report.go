package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/thinesjs/tag2sha/internal/backup"
	"github.com/thinesjs/tag2sha/internal/github"
	"github.com/thinesjs/tag2sha/internal/pin"
	"github.com/thinesjs/tag2sha/internal/workflow"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// writeReport prints one row per rewritten or failed reference followed by
// the totals of the run.
func writeReport(w io.Writer, report *pin.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"File", "Line", "From", "To"})
	for _, file := range report.Files {
		for _, change := range file.Changes {
			t.AppendRow(table.Row{file.Path, change.Line, change.From, change.To.Uses()})
		}
		if file.Err != nil {
			t.AppendRow(table.Row{file.Path, "", "", "error: " + file.Err.Error()})
		}
		for _, occ := range file.Errors {
			t.AppendRow(table.Row{file.Path, occ.Line, occ.Uses, "error: " + occ.Err.Error()})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})

	verb := "Pinned"
	if report.DryRun {
		verb = "Would pin"
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d files", len(report.Files)),
		"",
		fmt.Sprintf("%s %d", verb, report.TotalChanges()),
		fmt.Sprintf("%d errors", report.TotalErrors()),
	})
	t.Render()
}

// writeDiffs prints a unified diff for every changed file.
func writeDiffs(w io.Writer, report *pin.Report) error {
	for _, file := range report.Files {
		if len(file.Changes) == 0 || file.Err != nil {
			continue
		}
		diff, err := workflow.UnifiedDiff(file.Path, file.Original, file.Updated)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, diff); err != nil {
			return err
		}
	}
	return nil
}

func writeBackups(w io.Writer, backups []backup.BackupInfo) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Timestamp", "Files", "Path"})
	for _, b := range backups {
		t.AppendRow(table.Row{b.Timestamp, b.FileCount, b.Path})
	}
	t.Render()
}

func writeRateLimit(w io.Writer, status *github.RateLimitStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Limit", "Remaining", "Reset"})
	t.AppendRow(table.Row{status.Limit, status.Remaining, status.Reset.Local().Format("2006-01-02 15:04:05")})
	t.Render()
}
