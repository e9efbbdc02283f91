package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ylongwang2782/embedded-review/internal/config"
	"github.com/ylongwang2782/embedded-review/internal/providers"
	"github.com/ylongwang2782/embedded-review/internal/review"
	"github.com/ylongwang2782/embedded-review/internal/source"
)

var (
	flagSourcesFile   string
	flagDoctorTimeout time.Duration
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List and check the configured review sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, path, err := resolveSources()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Fprintf(out, "No sources file at %s; using built-in sources:\n", path)
		} else {
			fmt.Fprintf(out, "Sources from %s:\n", path)
		}
		for _, p := range profiles {
			fmt.Fprintf(out, "  %s\n", p.Describe())
		}
		return nil
	},
}

func resolveSources() ([]config.SourceProfile, string, error) {
	explicit := flagSourcesFile
	if explicit == "" {
		cfg, err := config.Load(nil)
		if err != nil {
			return nil, "", err
		}
		explicit = cfg.SourcesFile
	}
	path, err := config.SourcesPath(explicit)
	if err != nil {
		return nil, "", err
	}
	profiles, err := config.LoadSources(explicit)
	if err != nil {
		return nil, "", err
	}
	return profiles, path, nil
}

// doctorInput is a trivial change every source should be able to answer.
var doctorInput = review.Input{
	Mode:  "snippet",
	Diff:  "--- a/ping.c\n+++ b/ping.c\n@@ -0,0 +1 @@\n+int ping(void) { return 0; }\n",
	Files: []string{"ping.c"},
}

var sourcesDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Invoke every source once with a trivial change",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, _, err := resolveSources()
		if err != nil {
			return err
		}
		descs, err := source.Build(profiles)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()
		for _, d := range descs {
			fmt.Fprintf(out, "Checking %s...\n", d.ID)
			sctx, cancel := context.WithTimeout(ctx, flagDoctorTimeout)
			_, err := d.Source.Invoke(sctx, doctorInput)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "FAIL: %s: %v\n", d.ID, err)
				switch {
				case providers.IsAuthError(err):
					exitCode = ExitAuthError
				case exitCode == ExitSuccess:
					exitCode = ExitRuntimeError
				}
				continue
			}
			fmt.Fprintf(out, "OK: %s is configured and responding\n", d.ID)
		}
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesDoctorCmd)
	sourcesCmd.PersistentFlags().StringVar(&flagSourcesFile, "sources", "", "Source profiles file")
	sourcesDoctorCmd.Flags().DurationVar(&flagDoctorTimeout, "timeout", 60*time.Second, "Time allowed per source")
}
