package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/thinesjs/tag2sha/internal/backup"
	"github.com/thinesjs/tag2sha/internal/config"
	"github.com/thinesjs/tag2sha/internal/git"
	"github.com/thinesjs/tag2sha/internal/github"
	"github.com/thinesjs/tag2sha/internal/logging"
	"github.com/thinesjs/tag2sha/internal/pin"
	"github.com/thinesjs/tag2sha/internal/resolver"
	"github.com/thinesjs/tag2sha/internal/tui"
	"github.com/thinesjs/tag2sha/internal/updater"
	"github.com/thinesjs/tag2sha/internal/workflow"
)

var (
	version         = "dev"
	token           string
	dryRun          bool
	showDiff        bool
	branch          string
	commitMsg       string
	push            bool
	remote          string
	noGit           bool
	convertBranches bool
	updateToLatest  bool
	withBackup      bool
	interactive     bool
	concurrency     int
	apiURL          string
	timeout         time.Duration
	logLevel        string
)

// errRunFailed is returned when at least one reference could not be
// resolved; the summary has already been printed.
var errRunFailed = errors.New("some action references could not be resolved")

var rootCmd = &cobra.Command{
	Use:   "tag2sha [files...]",
	Short: "Pin GitHub Actions references to commit SHAs",
	Long: `tag2sha rewrites the "uses:" references of GitHub Actions workflows from
mutable tags and branches to immutable commit SHAs, keeping the resolved tag
as a trailing comment.

Without file arguments it processes every workflow under .github/workflows
and every action.yml of the repository. Unless --dry-run or --no-git is
given, the changes are committed on a new branch.`,
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tag2sha version %s\n", version)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check whether a newer tag2sha release is available",
	RunE:  runUpdate,
}

var authCmd = &cobra.Command{
	Use:   "auth [token]",
	Short: "Save GitHub token for future use",
	Long: `Save a GitHub Personal Access Token for automatic use in future commands.
The token is stored in ~/.config/tag2sha/token with 0600 permissions.

Alternatively, you can set the GITHUB_TOKEN or TAG2SHA_TOKEN environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuth,
}

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Show the GitHub API rate limit of the current token",
	RunE:  runRateLimit,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [timestamp|path]",
	Short: "List backups, or restore the given one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRestore,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&token, "token", "", "GitHub token (create at: https://github.com/settings/tokens/new?description=tag2sha&scopes=public_repo)")
	flags.StringVar(&apiURL, "api-url", "", "GitHub REST API URL, for GitHub Enterprise")
	flags.DurationVar(&timeout, "timeout", 0, "Timeout of each GitHub API call (default 30s)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without modifying files")
	rootCmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of every changed file")
	rootCmd.Flags().StringVar(&branch, "branch", "", "Branch receiving the commit (default tag-to-sha-<timestamp>)")
	rootCmd.Flags().StringVar(&commitMsg, "commit-msg", "", "Commit message (default \""+git.DefaultCommitMessage+"\")")
	rootCmd.Flags().BoolVar(&push, "push", false, "Push the branch after committing")
	rootCmd.Flags().StringVar(&remote, "remote", "", "Remote to push to (default \""+git.DefaultRemote+"\")")
	rootCmd.Flags().BoolVar(&noGit, "no-git", false, "Only rewrite files, skip branch and commit")
	rootCmd.Flags().BoolVar(&convertBranches, "convert-main-to-release", false, "Replace main/master references with the latest release")
	rootCmd.Flags().BoolVar(&updateToLatest, "update-to-latest", false, "Move every reference, pinned or not, to the latest release")
	rootCmd.Flags().BoolVar(&withBackup, "backup", false, "Back up files before modifying them")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Select files and review changes interactively")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of files processed in parallel (default 4)")
	rootCmd.MarkFlagsMutuallyExclusive("convert-main-to-release", "update-to-latest")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(rateLimitCmd)
	rootCmd.AddCommand(restoreCmd)
}

// setup loads the configuration and attaches the logger to ctx.
func setup(ctx context.Context) (context.Context, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, cfg, err
	}
	ctx, err = logging.Setup(ctx, os.Stderr, logLevel, os.Getenv(logging.EnvKey), cfg.LogLevel)
	if err != nil {
		return ctx, cfg, err
	}
	return ctx, cfg, nil
}

func newClient(cfg config.Config, authToken string) (*github.Client, error) {
	callTimeout := timeout
	if callTimeout == 0 {
		d, err := cfg.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		callTimeout = d
	}

	baseURL := apiURL
	if baseURL == "" {
		baseURL = cfg.APIURL
	}

	return github.NewClient(github.Options{
		Token:   authToken,
		BaseURL: baseURL,
		Timeout: callTimeout,
	})
}

func resolverMode() resolver.Mode {
	switch {
	case updateToLatest:
		return resolver.ModeUpdateToLatest
	case convertBranches:
		return resolver.ModeConvertBranches
	default:
		return resolver.ModePlain
	}
}

// newRunner returns a runner that never writes; changes are applied from
// its report once backups are taken.
func newRunner(cfg config.Config, authToken string) (*pin.Runner, error) {
	client, err := newClient(cfg, authToken)
	if err != nil {
		return nil, err
	}

	workers := concurrency
	if workers <= 0 {
		workers = cfg.Concurrency
	}

	res := resolver.New(client, resolver.WithMode(resolverMode()), resolver.WithCache())
	return pin.NewRunner(res, pin.Options{DryRun: true, Concurrency: workers}), nil
}

func runAuth(cmd *cobra.Command, args []string) error {
	token := args[0]
	if err := config.SaveToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	tokenPath, _ := config.GetTokenPath()
	fmt.Printf("✓ Token saved to %s\n", tokenPath)
	fmt.Printf("The token will be used automatically for future commands.\n")
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	logger := slogcontext.FromCtx(ctx)
	resolvedToken := config.GetToken(token, cfg)

	var repo *git.Repository
	if !dryRun && !noGit {
		repo, err = git.Open(".")
		if err != nil {
			return err
		}
		if branch == "" {
			branch = git.DefaultBranchName(time.Now())
		}
	}

	// Interactive sessions switch branch only once changes are applied.
	if interactive {
		return runInteractive(ctx, cfg, resolvedToken, repo)
	}

	if repo != nil {
		if err := repo.SwitchBranch(ctx, branch); err != nil {
			return err
		}
	}

	files := args
	if len(files) == 0 {
		files, err = workflow.FindWorkflowFiles(".")
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no workflow files found in %s", workflow.WorkflowDir)
	}
	logger.Debug("processing workflow files", "count", len(files), "mode", resolverMode())

	runner, err := newRunner(cfg, resolvedToken)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, files)
	if err != nil {
		return err
	}

	if !dryRun && report.TotalChanges() > 0 {
		if withBackup {
			path, err := backup.CreateBackup(".", report.ChangedFiles(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Backup created at: %s\n", path)
		}
		if err := report.Write(); err != nil {
			return err
		}
	}
	report.DryRun = dryRun

	if showDiff {
		if err := writeDiffs(os.Stdout, report); err != nil {
			return err
		}
	}
	writeReport(os.Stdout, report)

	if repo != nil {
		if err := commitAndPush(ctx, cfg, repo, report.ChangedFiles(), resolvedToken); err != nil {
			return err
		}
	}

	if report.Failed() {
		for _, err := range report.Errors() {
			if github.IsRateLimitError(err) {
				fmt.Fprintf(os.Stderr, "\nGitHub API rate limit reached. Create a token:\n%s\n", tui.TokenCreationURL(time.Now()))
				break
			}
		}
		return errRunFailed
	}
	return nil
}

func runInteractive(ctx context.Context, cfg config.Config, resolvedToken string, repo *git.Repository) error {
	m := tui.NewModel(ctx, tui.Options{
		Root:   ".",
		Token:  resolvedToken,
		Mode:   resolverMode(),
		DryRun: dryRun,
		Backup: withBackup,
		NewRunner: func(authToken string) (*pin.Runner, error) {
			return newRunner(cfg, authToken)
		},
	})
	p := tea.NewProgram(m, tea.WithContext(ctx))

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	result, ok := final.(tui.Model)
	if !ok || !result.Applied() {
		return nil
	}
	return commitApplied(ctx, cfg, repo, result.Report().ChangedFiles(), resolvedToken)
}

// commitApplied moves the changes written by an interactive session onto
// the target branch and commits them. A nil repo means git is disabled.
func commitApplied(ctx context.Context, cfg config.Config, repo *git.Repository, files []string, authToken string) error {
	if repo == nil || len(files) == 0 {
		return nil
	}
	if err := repo.SwitchBranch(ctx, branch); err != nil {
		return fmt.Errorf("changes were written but not committed: %w", err)
	}
	return commitAndPush(ctx, cfg, repo, files, authToken)
}

func commitAndPush(ctx context.Context, cfg config.Config, repo *git.Repository, files []string, authToken string) error {
	if len(files) == 0 {
		fmt.Printf("No changes to commit\n")
		return nil
	}

	message := commitMsg
	if message == "" {
		message = cfg.CommitMessage
	}
	if message == "" {
		message = git.DefaultCommitMessage
	}

	hash, err := repo.Commit(ctx, files, message)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Committed %d files on %s (%s)\n", len(files), branch, hash[:7])

	if !push {
		return nil
	}

	target := remote
	if target == "" {
		target = cfg.Remote
	}
	if target == "" {
		target = git.DefaultRemote
	}
	if err := repo.Push(ctx, target, branch, authToken); err != nil {
		return err
	}
	fmt.Printf("✓ Pushed %s to %s\n", branch, target)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	client, err := newClient(cfg, config.GetToken(token, cfg))
	if err != nil {
		return err
	}

	fmt.Printf("Checking for updates...\n")
	info, err := updater.CheckForUpdate(ctx, client, version)
	if err != nil {
		if github.IsRateLimitError(err) {
			fmt.Printf("\nGitHub API rate limit reached.\n\n")
			fmt.Printf("Create a token to get higher rate limits:\n")
			fmt.Printf("%s\n\n", tui.TokenCreationURL(time.Now()))
			fmt.Printf("Then save it: tag2sha auth YOUR_TOKEN\n")
			return nil
		}
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	if !info.Available {
		fmt.Printf("You are already on the latest version (%s)\n", info.CurrentVersion)
		return nil
	}

	fmt.Printf("New version available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	fmt.Printf("Download from: %s\n", info.ReleaseURL)
	return nil
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	client, err := newClient(cfg, config.GetToken(token, cfg))
	if err != nil {
		return err
	}

	status, err := client.RateLimit(ctx)
	if err != nil {
		return fmt.Errorf("failed to get rate limit: %w", err)
	}
	writeRateLimit(os.Stdout, status)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	backups, err := backup.ListBackups(".")
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if len(backups) == 0 {
			fmt.Printf("No backups found\n")
			return nil
		}
		writeBackups(os.Stdout, backups)
		return nil
	}

	path, err := findBackup(backups, args[0])
	if err != nil {
		return err
	}
	if err := backup.RestoreBackup(".", path); err != nil {
		return err
	}
	fmt.Printf("✓ Restored %s\n", path)
	return nil
}

// findBackup matches name against the timestamp or the path of a backup.
func findBackup(backups []backup.BackupInfo, name string) (string, error) {
	for _, b := range backups {
		if b.Timestamp == name || filepath.Clean(name) == filepath.Clean(b.Path) {
			return b.Path, nil
		}
	}
	return "", fmt.Errorf("backup %q not found", name)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
