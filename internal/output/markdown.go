package output

import (
	"io"
	"path"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("## Embedded Review\n\n")
	if s.Degraded {
		ew.printf("> [!WARNING]\n> Degraded review: %d of %d sources unavailable: %s\n\n",
			len(s.Unavailable), len(report.Sources), escapeCell(unavailableLine(s)))
	}

	ew.printf("| Severity | Clusters |\n")
	ew.printf("|----------|----------|\n")
	for _, b := range report.Buckets {
		ew.printf("| %s | %d |\n", b.Severity, len(b.Clusters))
	}
	ew.printf("| **Total** | **%d** |\n\n", s.Total)
	ew.printf("Consensus: %d · Single source: %d · Contradictions: %d", s.Consensus, s.SourceOnly, s.Contradiction)
	if s.Affirmations > 0 {
		ew.printf(" · Affirmed correct: %d", s.Affirmations)
	}
	ew.printf("\n\n")

	if s.Total == 0 {
		ew.println("No issues reported. :white_check_mark:")
	}

	for _, b := range report.Buckets {
		if len(b.Clusters) == 0 {
			continue
		}
		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdSeverityIcon(b.Severity), b.Severity, len(b.Clusters))

		for _, c := range b.Clusters {
			ew.printf("### %s\n\n", c.Title)
			ew.printf("**`%s`** | %s: %s", c.Location(), statusLabel(c), strings.Join(c.Sources, ", "))
			if c.Category != "" {
				ew.printf(" | %s", c.Category)
			}
			if c.Confidence == review.ConfidenceUncertain {
				ew.printf(" | uncertain")
			}
			ew.printf("\n\n")
			if c.Status == review.StatusContradiction {
				ew.printf("> [!CAUTION]\n> Sources disagree on this location; review it manually.\n\n")
			}
			if c.CategoryConflict {
				ew.printf("_Sources disagree on the category._\n\n")
			}
			if c.Description != "" {
				ew.printf("%s\n\n", c.Description)
			}
			if c.Risk != "" {
				ew.printf("**Risk:** %s\n\n", c.Risk)
			}
			if c.SuggestedFix != "" {
				ew.printf("**Fix:**\n\n")
				if looksLikeCode(c.SuggestedFix) {
					ew.printf("```%s\n%s\n```\n\n", inferLang(c.Path), c.SuggestedFix)
				} else {
					ew.printf("> %s\n\n", strings.ReplaceAll(c.SuggestedFix, "\n", "\n> "))
				}
			}
			ew.printf("---\n\n")
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("<sub>")
	for i, src := range report.Sources {
		if i > 0 {
			ew.printf(" · ")
		}
		ew.printf("%s: %s, %d findings", src.ID, src.Outcome, src.Findings)
	}
	ew.printf("</sub>\n\n*Reviewed in %dms (run %s)*\n", report.Timing.TotalMs, report.RunID)

	return ew.err
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityP0:
		return ":rotating_light:"
	case review.SeverityP1:
		return ":red_circle:"
	case review.SeverityP2:
		return ":orange_circle:"
	default:
		return ":yellow_circle:"
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func looksLikeCode(s string) bool {
	indicators := []string{
		"{", "}", ";", "()", "->", "==", "#define", "#include",
		"volatile ", "static ", "return ", "__disable_irq", "if (", "while (",
	}
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}

func inferLang(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp", ".hh":
		return "cpp"
	case ".s":
		return "asm"
	case ".rs":
		return "rust"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".ld":
		return "ld"
	case ".cmake":
		return "cmake"
	case ".dts", ".dtsi":
		return "dts"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}
