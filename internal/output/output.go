package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "markdown", "sarif"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or stdout when outPath is empty.
func WriteReport(report *review.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	if outPath == "" {
		return writer.Write(os.Stdout, report)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// unavailableLine summarizes sources that did not contribute.
func unavailableLine(s review.Summary) string {
	parts := make([]string, 0, len(s.Unavailable))
	for _, u := range s.Unavailable {
		p := fmt.Sprintf("%s (%s", u.ID, u.Outcome)
		if u.Reason != "" {
			p += ": " + u.Reason
		}
		parts = append(parts, p+")")
	}
	return strings.Join(parts, "; ")
}

func statusLabel(v review.ClusterView) string {
	switch v.Status {
	case review.StatusConsensus:
		return fmt.Sprintf("consensus of %d", len(v.Sources))
	case review.StatusContradiction:
		return "contradiction"
	default:
		return "single source"
	}
}
