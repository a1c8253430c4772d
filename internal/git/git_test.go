package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	require.NoError(t, repo.SetConfig(cfg))

	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultBranchName(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "tag-to-sha-20240305-140709", DefaultBranchName(now))
}

func TestOpenOutsideRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorContains(t, err, "not a git repository")
}

func TestBranchAndCommit(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	workflow := filepath.Join(dir, ".github", "workflows", "ci.yml")
	writeFile(t, workflow, "steps:\n  - uses: actions/checkout@v4\n")

	repo, err := Open(dir)
	require.NoError(t, err)

	_, err = repo.Commit(ctx, []string{workflow}, "initial")
	require.NoError(t, err)

	require.NoError(t, repo.SwitchBranch(ctx, "tag-to-sha-test"))
	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "tag-to-sha-test", branch)

	writeFile(t, workflow, "steps:\n  - uses: actions/checkout@1111111111111111111111111111111111111111  # v4.1.7\n")
	hash, err := repo.Commit(ctx, []string{workflow}, DefaultCommitMessage)
	require.NoError(t, err)

	commit, err := repo.repo.CommitObject(plumbing.NewHash(hash))
	require.NoError(t, err)
	assert.Equal(t, DefaultCommitMessage, commit.Message)
	assert.Equal(t, "Test User", commit.Author.Name)

	require.NoError(t, repo.SwitchBranch(ctx, "master"))
	require.NoError(t, repo.SwitchBranch(ctx, "tag-to-sha-test"))
	branch, err = repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "tag-to-sha-test", branch)
}

func TestCommitRejectsFilesOutsideRepository(t *testing.T) {
	dir := initRepo(t)
	repo, err := Open(dir)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "ci.yml")
	writeFile(t, outside, "x: 1\n")

	_, err = repo.Commit(context.Background(), []string{outside}, "msg")
	assert.ErrorContains(t, err, "outside the repository")
}

func TestPushToLocalRemote(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	remoteDir := t.TempDir()
	_, err := gogit.PlainInit(remoteDir, true)
	require.NoError(t, err)

	workflow := filepath.Join(dir, "ci.yml")
	writeFile(t, workflow, "steps: []\n")

	repo, err := Open(dir)
	require.NoError(t, err)
	_, err = repo.repo.CreateRemote(&config.RemoteConfig{Name: DefaultRemote, URLs: []string{remoteDir}})
	require.NoError(t, err)

	_, err = repo.Commit(ctx, []string{workflow}, "initial")
	require.NoError(t, err)
	require.NoError(t, repo.SwitchBranch(ctx, "pinned"))

	require.NoError(t, repo.Push(ctx, DefaultRemote, "pinned", ""))
	require.NoError(t, repo.Push(ctx, DefaultRemote, "pinned", ""))

	remote, err := gogit.PlainOpen(remoteDir)
	require.NoError(t, err)
	_, err = remote.Reference(plumbing.NewBranchReferenceName("pinned"), true)
	assert.NoError(t, err)

	cfg, err := repo.repo.Config()
	require.NoError(t, err)
	require.Contains(t, cfg.Branches, "pinned")
	assert.Equal(t, DefaultRemote, cfg.Branches["pinned"].Remote)

	assert.Error(t, repo.Push(ctx, "nowhere", "pinned", ""))
}
