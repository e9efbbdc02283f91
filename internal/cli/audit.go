package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ylongwang2782/embedded-review/internal/audit"
	"github.com/ylongwang2782/embedded-review/internal/config"
	"github.com/ylongwang2782/embedded-review/internal/review"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the record of past review runs",
}

func openAudit(forceEnabled bool) (*audit.Log, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	l, err := audit.New(forceEnabled || cfg.Audit.Enabled, cfg.Audit.Dir, cfg.Audit.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openAudit(false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !l.Enabled() {
			fmt.Fprintln(out, "Audit log is disabled.")
			return nil
		}
		records, err := l.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No recorded runs.")
			return nil
		}
		if auditLimit > 0 && len(records) > auditLimit {
			records = records[:auditLimit]
		}
		return writeRecordTable(out, records)
	},
}

func writeRecordTable(w io.Writer, records []audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tMODE\tSOURCES\tCLUSTERS\tHIGHEST\tSTATUS")
	for _, r := range records {
		succeeded := 0
		for _, s := range r.Sources {
			if s.Outcome == review.OutcomeSucceeded {
				succeeded++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			shortID(r.RunID),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Inputs.Mode,
			succeeded, len(r.Sources),
			r.Summary.Total,
			orDash(string(r.Summary.HighestSeverity)),
			recordStatus(r),
		)
	}
	return tw.Flush()
}

func recordStatus(r audit.Record) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Summary.Degraded:
		return "degraded"
	default:
		return "ok"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var auditShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run (a unique run id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openAudit(true)
		if err != nil {
			return err
		}
		rec, err := l.Show(args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var auditClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openAudit(true)
		if err != nil {
			return err
		}
		n, err := l.Clear()
		if err != nil {
			return fmt.Errorf("clearing audit log: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records.\n", n)
		return nil
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit log statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openAudit(false)
		if err != nil {
			return err
		}
		if !l.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Audit log is disabled.")
			return nil
		}
		stats, err := l.Stats()
		if err != nil {
			return fmt.Errorf("reading audit stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditClearCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
}
