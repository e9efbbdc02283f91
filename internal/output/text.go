package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("Embedded Review: %s mode\n", report.Inputs.Mode)
	if report.Inputs.Range != "" {
		ew.printf("Range: %s\n", report.Inputs.Range)
	}
	if report.Repo.Root != "" {
		ew.printf("Repository: %s (branch: %s)\n", report.Repo.Root, report.Repo.Branch)
	}
	ew.println(strings.Repeat("─", 60))
	if s.Degraded {
		ew.printf("DEGRADED: %d of %d sources unavailable: %s\n",
			len(s.Unavailable), len(report.Sources), unavailableLine(s))
	}
	ew.printf("Clusters: %d total", s.Total)
	if s.Total > 0 {
		ew.printf(" (%d consensus, %d single source, %d contradiction)", s.Consensus, s.SourceOnly, s.Contradiction)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if s.Total == 0 {
		ew.println("\nNo issues reported.")
	}

	for _, b := range report.Buckets {
		if len(b.Clusters) == 0 {
			continue
		}
		ew.printf("\n%s %s (%d)\n", severityIcon(b.Severity), b.Severity, len(b.Clusters))
		ew.println(strings.Repeat("─", 40))

		for _, c := range b.Clusters {
			ew.printf("\n  %s  %s\n", c.Location(), c.Title)
			meta := fmt.Sprintf("  %s: %s", statusLabel(c), strings.Join(c.Sources, ", "))
			if c.Category != "" {
				meta += " | Category: " + c.Category
			}
			if c.Confidence == review.ConfidenceUncertain {
				meta += " | uncertain"
			}
			ew.println(meta)
			if c.CategoryConflict {
				ew.println("  Note: sources disagree on the category")
			}
			for _, line := range wrapText(c.Description, 70) {
				ew.printf("    %s\n", line)
			}
			if c.Risk != "" {
				ew.println("  Risk:")
				for _, line := range wrapText(c.Risk, 70) {
					ew.printf("    %s\n", line)
				}
			}
			if c.SuggestedFix != "" {
				ew.println("  Fix:")
				for _, line := range wrapText(c.SuggestedFix, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	for _, src := range report.Sources {
		ew.printf("Source %-12s %-10s %3d findings  %dms\n", src.ID, src.Outcome, src.Findings, src.DurationMs)
	}
	if s.Affirmations > 0 {
		ew.printf("Locations affirmed correct: %d\n", s.Affirmations)
	}
	if s.ParseWarnings > 0 {
		ew.printf("Parse warnings: %d\n", s.ParseWarnings)
	}
	ew.printf("Completed in %dms (slowest source: %dms)\n", report.Timing.TotalMs, report.Timing.SourcesMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityP0:
		return "[!!!]"
	case review.SeverityP1:
		return "[!!]"
	case review.SeverityP2:
		return "[!]"
	default:
		return "[-]"
	}
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width && !strings.Contains(text, "\n") {
		return []string{text}
	}
	var (
		lines   []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
