// Package git performs the version control side effects of a run: switching
// to a work branch, committing the rewritten files and pushing them.
package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	slogcontext "github.com/veqryn/slog-context"
)

const (
	DefaultRemote        = "origin"
	DefaultCommitMessage = "Convert GitHub Actions tags to SHA references"
)

// DefaultBranchName returns the timestamped branch used when none is given.
func DefaultBranchName(now time.Time) string {
	return "tag-to-sha-" + now.Format("20060102-150405")
}

type Repository struct {
	repo     *gogit.Repository
	worktree *gogit.Worktree
	root     string
}

// Open opens the repository containing path.
func Open(path string) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("not a git repository. Please run this command inside a git repository")
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	return &Repository{repo: repo, worktree: wt, root: wt.Filesystem.Root()}, nil
}

// SwitchBranch checks out name, creating it from HEAD when it does not
// exist yet. A new branch keeps local modifications; switching to an
// existing one requires a clean worktree.
func (r *Repository) SwitchBranch(ctx context.Context, name string) error {
	logger := slogcontext.FromCtx(ctx).With("branch", name)
	refName := plumbing.NewBranchReferenceName(name)

	_, err := r.repo.Reference(refName, true)
	switch {
	case err == nil:
		logger.Info("switching to existing branch")
		if err := r.worktree.Checkout(&gogit.CheckoutOptions{Branch: refName}); err != nil {
			return fmt.Errorf("failed to switch to branch %s: %w", name, err)
		}
		return nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		logger.Info("creating new branch")
		if err := r.worktree.Checkout(&gogit.CheckoutOptions{Branch: refName, Create: true, Keep: true}); err != nil {
			return fmt.Errorf("failed to create branch %s: %w", name, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up branch %s: %w", name, err)
	}
}

// CurrentBranch returns the short name of the checked out branch.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// Commit stages files and commits them with message. The author is taken
// from the git configuration.
func (r *Repository) Commit(ctx context.Context, files []string, message string) (string, error) {
	for _, file := range files {
		rel, err := r.relative(file)
		if err != nil {
			return "", err
		}
		if _, err := r.worktree.Add(rel); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", file, err)
		}
	}

	hash, err := r.worktree.Commit(message, &gogit.CommitOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to commit changes: %w", err)
	}

	slogcontext.FromCtx(ctx).Info("committed changes", "commit", hash.String(), "files", len(files))
	return hash.String(), nil
}

// Push pushes branch to remote and records remote as its upstream. token is
// used as HTTP basic auth for https remotes; ssh remotes use the agent.
func (r *Repository) Push(ctx context.Context, remote, branch, token string) error {
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return fmt.Errorf("unknown remote %s: %w", remote, err)
	}

	var auth transport.AuthMethod
	if urls := rem.Config().URLs; token != "" && len(urls) > 0 && strings.HasPrefix(urls[0], "http") {
		auth = &http.BasicAuth{Username: "x-access-token", Password: token}
	}

	refSpec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push branch %s to %s: %w", branch, remote, err)
	}

	err = r.repo.CreateBranch(&config.Branch{
		Name:   branch,
		Remote: remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	})
	if err != nil && !errors.Is(err, gogit.ErrBranchExists) {
		return fmt.Errorf("failed to set upstream for %s: %w", branch, err)
	}

	slogcontext.FromCtx(ctx).Info("pushed branch", "remote", remote, "branch", branch)
	return nil
}

func (r *Repository) relative(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", file, err)
	}
	rootAbs, err := filepath.Abs(r.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the repository", file)
	}
	return filepath.ToSlash(rel), nil
}
