// Package pin rewrites action references in workflow files to commit SHAs.
package pin

import (
	"context"
	"fmt"
	"os"
	"sort"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/thinesjs/tag2sha/internal/github"
	"github.com/thinesjs/tag2sha/internal/resolver"
	"github.com/thinesjs/tag2sha/internal/workflow"
)

// DefaultConcurrency is the number of files processed in parallel.
const DefaultConcurrency = 4

// Resolver is implemented by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, ref resolver.Reference) (resolver.Resolution, error)
}

type Options struct {
	// DryRun computes changes without writing files.
	DryRun      bool
	Concurrency int
}

type Runner struct {
	resolver    Resolver
	dryRun      bool
	concurrency int
}

func NewRunner(r Resolver, opts Options) *Runner {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{resolver: r, dryRun: opts.DryRun, concurrency: concurrency}
}

// Change is one rewritten reference.
type Change struct {
	Line int
	From string
	To   workflow.Replacement
}

// OccurrenceError is a reference that could not be resolved.
type OccurrenceError struct {
	Line int
	Uses string
	Err  error
}

func (e OccurrenceError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Uses, e.Err)
}

func (e OccurrenceError) Unwrap() error {
	return e.Err
}

type FileResult struct {
	Path    string
	Changes []Change
	Errors  []OccurrenceError
	// Err is set when the file itself could not be read, rewritten or
	// written.
	Err      error
	Original []byte
	Updated  []byte
}

func (f FileResult) ErrorCount() int {
	n := len(f.Errors)
	if f.Err != nil {
		n++
	}
	return n
}

type Report struct {
	DryRun bool
	Files  []FileResult
}

func (r *Report) TotalChanges() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Changes)
	}
	return n
}

func (r *Report) TotalErrors() int {
	n := 0
	for _, f := range r.Files {
		n += f.ErrorCount()
	}
	return n
}

// ChangedFiles lists the files that received at least one change, sorted.
func (r *Report) ChangedFiles() []string {
	var files []string
	for _, f := range r.Files {
		if len(f.Changes) > 0 && f.Err == nil {
			files = append(files, f.Path)
		}
	}
	sort.Strings(files)
	return files
}

// Failed reports whether any reference or file failed. A run with failures
// is a failed run even when other files were rewritten.
func (r *Report) Failed() bool {
	return r.TotalErrors() > 0
}

// Write stores the updated content of every changed file. It is used to
// apply a report produced by a dry run.
func (r *Report) Write() error {
	for _, f := range r.Files {
		if f.Err != nil || len(f.Changes) == 0 {
			continue
		}
		if err := workflow.WriteFile(f.Path, f.Updated); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return nil
}

// Errors returns every occurrence and file error of the run.
func (r *Report) Errors() []error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
		}
		for _, e := range f.Errors {
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, e))
		}
	}
	return errs
}

// Run processes files in parallel. Failures are collected in the report;
// the returned error is only set when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, files []string) (*Report, error) {
	report := &Report{DryRun: r.dryRun, Files: make([]FileResult, len(files))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			report.Files[i] = r.processFile(gctx, path)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) processFile(ctx context.Context, path string) FileResult {
	logger := slogcontext.FromCtx(ctx).With("file", path)
	result := FileResult{Path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("cannot read workflow file", "error", err)
		result.Err = fmt.Errorf("failed to read file: %w", err)
		return result
	}
	result.Original = content
	result.Updated = content

	var replacements []workflow.Replacement
	for _, action := range workflow.Parse(path, content) {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}

		repl, changed, err := r.resolveAction(ctx, action)
		if err != nil {
			logger.Error("cannot resolve action", "line", action.Line, "uses", action.FullUses, "error", err)
			result.Errors = append(result.Errors, OccurrenceError{Line: action.Line, Uses: action.FullUses, Err: err})
			continue
		}
		if !changed {
			continue
		}

		logger.Info("pinning action", "uses", action.FullUses, "sha", repl.SHA, "version", repl.Version)
		replacements = append(replacements, repl)
		result.Changes = append(result.Changes, Change{Line: action.Line, From: action.FullUses, To: repl})
	}

	if len(replacements) == 0 {
		return result
	}

	updated, err := workflow.Apply(content, replacements)
	if err != nil {
		result.Err = err
		result.Changes = nil
		return result
	}
	result.Updated = updated

	if r.dryRun {
		return result
	}

	if err := workflow.WriteFile(path, updated); err != nil {
		logger.Error("cannot write workflow file", "error", err)
		result.Err = err
		result.Changes = nil
	}
	return result
}

func (r *Runner) resolveAction(ctx context.Context, action workflow.ActionReference) (workflow.Replacement, bool, error) {
	repo, err := github.ParseRepository(action.Repository())
	if err != nil {
		return workflow.Replacement{}, false, err
	}

	res, err := r.resolver.Resolve(ctx, resolver.Reference{
		Repository: repo,
		Specifier:  action.Ref,
		Label:      action.Comment,
	})
	if err != nil {
		return workflow.Replacement{}, false, err
	}
	if !res.Rewritten {
		return workflow.Replacement{}, false, nil
	}
	// Already pinned to this exact commit and label.
	if res.SHA == action.Ref && res.Label == action.Comment {
		return workflow.Replacement{}, false, nil
	}

	return workflow.Replacement{Action: action, SHA: res.SHA, Version: res.Label}, true, nil
}
