package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ylongwang2782/embedded-review/internal/audit"
	"github.com/ylongwang2782/embedded-review/internal/config"
	"github.com/ylongwang2782/embedded-review/internal/gitctx"
	"github.com/ylongwang2782/embedded-review/internal/logger"
	"github.com/ylongwang2782/embedded-review/internal/output"
	"github.com/ylongwang2782/embedded-review/internal/providers"
	"github.com/ylongwang2782/embedded-review/internal/redact"
	"github.com/ylongwang2782/embedded-review/internal/review"
	"github.com/ylongwang2782/embedded-review/internal/source"
)

// Shared review flags
var (
	flagPaths        string
	flagExclude      string
	flagContextLines int
	flagMaxDiffBytes int
	flagSources      string
	flagReference    string
	flagFocus        string
	flagFormat       string
	flagOut          string
	flagFailOn       string
	flagTimeout      time.Duration
	flagNoRedact     bool
	flagNoAudit      bool
	flagVerbose      bool
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagPaths, "paths", "", "Include file path globs (comma-separated)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	cmd.Flags().IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Maximum diff size in bytes")
	cmd.Flags().StringVar(&flagSources, "sources", "", "Source profiles file (default: sources.yaml in the config directory)")
	cmd.Flags().StringVar(&flagReference, "reference", "", "Reference material files or directories (comma-separated)")
	cmd.Flags().StringVar(&flagFocus, "focus", "", "Focus hints file, one hint per line")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Exit 1 when a cluster is at or above this severity (P0, P1, P2, P3, none)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-source timeout for sources without their own (e.g. 90s, 5m)")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoAudit, "no-audit", false, "Do not record this run in the audit log")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log source progress to stderr")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["failOn"] = flagFailOn
	}
	if flagContextLines > 0 {
		m["contextLines"] = strconv.Itoa(flagContextLines)
	}
	if flagMaxDiffBytes > 0 {
		m["maxDiffBytes"] = strconv.Itoa(flagMaxDiffBytes)
	}
	if flagSources != "" {
		m["sourcesFile"] = flagSources
	}
	if flagReference != "" {
		m["reference"] = strings.Join(splitComma(flagReference), ",")
	}
	if flagFocus != "" {
		m["focusFile"] = flagFocus
	}
	if secs := int(flagTimeout / time.Second); secs > 0 {
		m["sourceTimeoutSeconds"] = strconv.Itoa(secs)
	}
	if flagVerbose {
		m["log.level"] = "debug"
	}
	return m
}

func buildDiffOpts(cfg config.Config) gitctx.DiffOptions {
	opts := gitctx.DiffOptions{
		ContextLines: cfg.ContextLines,
		MaxDiffBytes: cfg.MaxDiffBytes,
		Include:      cfg.Include,
		Exclude:      cfg.Exclude,
	}
	if flagPaths != "" {
		opts.Include = splitComma(flagPaths)
	}
	if flagExclude != "" {
		opts.Exclude = append(opts.Exclude, splitComma(flagExclude)...)
	}
	return opts
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func newLogger(cfg config.Config) *slog.Logger {
	return logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
}

// runReview takes an extracted change through the aggregation pipeline and
// returns the process exit code.
func runReview(ctx context.Context, in review.Input, cfg config.Config) int {
	l := newLogger(cfg)

	in, err := attachGuidance(in, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}
	if cfg.Privacy.RedactSecrets {
		var stats redact.Stats
		in, stats = redact.Input(in, cfg.Privacy.RedactPaths)
		if stats.Secrets > 0 || stats.Files > 0 {
			l.InfoContext(ctx, "redacted input", "secrets", stats.Secrets, "files", stats.Files)
		}
	}

	profiles, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}
	sources, err := source.Builder{ResidueLimit: cfg.ResidueLimit}.Build(profiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid source profiles: %v\n", err)
		return ExitUsageError
	}

	orch := review.NewOrchestrator(cfg.Matching, l)
	orch.DefaultTimeout = time.Duration(cfg.SourceTimeoutSeconds) * time.Second

	run, runErr := orch.Run(ctx, in, sources)
	if run == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return ExitUsageError
	}
	report := review.Assemble(run)

	if !flagNoAudit {
		recordAudit(ctx, l, cfg, report, runErr)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		if errors.Is(runErr, review.ErrAllSourcesUnavailable) && allAuthFailures(run) {
			return ExitAuthError
		}
		return ExitAllUnavailable
	}

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return ExitRuntimeError
	}

	if failOnMet(report, cfg.FailOn) {
		return ExitFindings
	}
	return ExitSuccess
}

// attachGuidance loads reference material and focus hints into the input.
func attachGuidance(in review.Input, cfg config.Config) (review.Input, error) {
	docs, err := review.LoadReference(cfg.Reference)
	if err != nil {
		return in, err
	}
	hints, err := review.LoadFocusHints(cfg.FocusFile)
	if err != nil {
		return in, err
	}
	in.Reference = append(in.Reference, docs...)
	in.FocusHints = append(in.FocusHints, hints...)
	return in, nil
}

// recordAudit never fails the run; a broken audit directory is logged.
func recordAudit(ctx context.Context, l *slog.Logger, cfg config.Config, report *review.Report, runErr error) {
	auditLog, err := audit.New(cfg.Audit.Enabled, cfg.Audit.Dir, cfg.Audit.RetentionDays)
	if err != nil {
		l.WarnContext(ctx, "audit log unavailable", "error", err)
		return
	}
	path, err := auditLog.Append(audit.FromReport(report, runErr))
	if err != nil {
		l.WarnContext(ctx, "writing audit record", "error", err)
		return
	}
	if path != "" {
		l.DebugContext(ctx, "audit record written", "path", path)
	}
}

func allAuthFailures(run *review.Run) bool {
	if len(run.Sources) == 0 {
		return false
	}
	for _, r := range run.Sources {
		if r.Available() || !providers.IsAuthError(r.Err) {
			return false
		}
	}
	return true
}

func failOnMet(report *review.Report, failOn string) bool {
	for _, c := range report.Clusters() {
		if review.MeetsThreshold(c.Severity, failOn) {
			return true
		}
	}
	return false
}

// reviewWith loads config, extracts the change with extract and runs the
// pipeline.
func reviewWith(cmd *cobra.Command, extract func(ctx context.Context, opts gitctx.DiffOptions) (review.Input, error)) error {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := extract(ctx, buildDiffOpts(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}
	if strings.TrimSpace(in.Diff) == "" {
		fmt.Fprintln(os.Stderr, "No changes to review.")
		exitCode = ExitSuccess
		return nil
	}
	exitCode = runReview(ctx, in, cfg)
	return nil
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review code changes",
	Long:  "Review code changes with every configured source. Use subcommands to specify what to review.",
}

var reviewUnstagedCmd = &cobra.Command{
	Use:   "unstaged",
	Short: "Review unstaged changes (working tree vs index)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewWith(cmd, gitctx.Unstaged)
	},
}

var reviewStagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "Review staged changes (index vs HEAD)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewWith(cmd, gitctx.Staged)
	},
}

var (
	flagParent string
)

var reviewCommitCmd = &cobra.Command{
	Use:   "commit <sha>",
	Short: "Review a specific commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewWith(cmd, func(ctx context.Context, opts gitctx.DiffOptions) (review.Input, error) {
			return gitctx.Commit(ctx, args[0], flagParent, opts)
		})
	},
}

var (
	flagMergeBase bool
)

var reviewRangeCmd = &cobra.Command{
	Use:   "range <revRange>",
	Short: "Review a revision range (e.g., origin/main..HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewWith(cmd, func(ctx context.Context, opts gitctx.DiffOptions) (review.Input, error) {
			return gitctx.Range(ctx, args[0], flagMergeBase, opts)
		})
	},
}

var (
	flagSnippetPath string
	flagSnippetBase string
)

var reviewSnippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Review code from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		var base string
		if flagSnippetBase != "" {
			baseData, err := os.ReadFile(flagSnippetBase)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading base file: %v\n", err)
				exitCode = ExitRuntimeError
				return nil
			}
			base = string(baseData)
		}

		return reviewWith(cmd, func(ctx context.Context, _ gitctx.DiffOptions) (review.Input, error) {
			return gitctx.Snippet(ctx, string(content), flagSnippetPath, base)
		})
	},
}

func init() {
	reviewCmd.AddCommand(reviewUnstagedCmd)
	reviewCmd.AddCommand(reviewStagedCmd)
	reviewCmd.AddCommand(reviewCommitCmd)
	reviewCmd.AddCommand(reviewRangeCmd)
	reviewCmd.AddCommand(reviewSnippetCmd)

	for _, cmd := range []*cobra.Command{
		reviewUnstagedCmd,
		reviewStagedCmd,
		reviewCommitCmd,
		reviewRangeCmd,
		reviewSnippetCmd,
	} {
		addReviewFlags(cmd)
	}

	reviewCommitCmd.Flags().StringVar(&flagParent, "parent", "", "Override parent SHA (for merge commits)")
	reviewRangeCmd.Flags().BoolVar(&flagMergeBase, "merge-base", true, "Use merge base for branch comparisons")
	reviewSnippetCmd.Flags().StringVar(&flagSnippetPath, "path", "", "File path the snippet belongs to")
	reviewSnippetCmd.Flags().StringVar(&flagSnippetBase, "base", "", "Base file to diff against")
}
