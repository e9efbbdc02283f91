package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// Exit codes returned by Run.
const (
	ExitSuccess        = 0
	ExitFindings       = 1
	ExitUsageError     = 2
	ExitAuthError      = 3
	ExitRuntimeError   = 4
	ExitAllUnavailable = 5
)

// envFile is loaded before configuration resolution. Variables already set
// in the environment win.
var envFile = ".env"

var rootCmd = &cobra.Command{
	Use:   "embedded-review",
	Short: "Multi-source review aggregation for firmware changes",
	Long: "embedded-review sends a change to several independent reviewers, " +
		"merges what they report into clusters and reports where they agree, " +
		"where only one of them spoke up and where they contradict each other.",
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print embedded-review version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", review.ToolName, review.ToolVersion)
	},
}
