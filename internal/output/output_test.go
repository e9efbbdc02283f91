package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

func emptyReport() *review.Report {
	r := &review.Report{
		Tool:    review.ToolName,
		Version: review.ToolVersion,
		RunID:   "run-1",
		Inputs:  review.InputInfo{Mode: "unstaged"},
		Repo:    review.RepoMetadata{Root: "/src/fw", Branch: "main"},
		Sources: []review.SourceSummary{
			{ID: "claude", Outcome: review.OutcomeSucceeded},
			{ID: "gpt", Outcome: review.OutcomeSucceeded},
		},
	}
	for _, sev := range review.Severities {
		r.Buckets = append(r.Buckets, review.Bucket{Severity: sev, Clusters: []review.ClusterView{}})
	}
	return r
}

func sampleReport() *review.Report {
	r := emptyReport()
	r.Inputs = review.InputInfo{Mode: "range", Range: "v1.2..HEAD"}
	r.Buckets[1].Clusters = []review.ClusterView{{
		ID:           "C001",
		Path:         "src/timer.c",
		LineStart:    10,
		LineEnd:      12,
		Title:        "Tick counter race with SysTick ISR",
		Description:  "tick is incremented in the ISR and read non-atomically in main.",
		Risk:         "Torn reads of the 64-bit counter.",
		SuggestedFix: "__disable_irq(); t = tick; __enable_irq();",
		Category:     "concurrency",
		Severity:     review.SeverityP1,
		Status:       review.StatusConsensus,
		Confidence:   review.ConfidenceCertain,
		Sources:      []string{"claude", "gpt"},
	}}
	r.Buckets[2].Clusters = []review.ClusterView{{
		ID:         "C002",
		Path:       "src/adc.c",
		LineStart:  5,
		Title:      "ADC sampled before calibration completes",
		Category:   "hardware",
		Severity:   review.SeverityP2,
		Status:     review.StatusContradiction,
		Confidence: review.ConfidenceUncertain,
		Sources:    []string{"gpt", "claude"},
	}}
	r.Summary = review.Summary{
		Total:           2,
		Consensus:       1,
		Contradiction:   1,
		Affirmations:    1,
		HighestSeverity: review.SeverityP1,
	}
	r.Sources[0].Findings = 2
	r.Sources[1].Findings = 2
	return r
}

func degradedReport() *review.Report {
	r := sampleReport()
	r.Sources = append(r.Sources, review.SourceSummary{ID: "local", Outcome: review.OutcomeTimedOut})
	r.Summary.Degraded = true
	r.Summary.Unavailable = []review.UnavailableSource{
		{ID: "local", Outcome: review.OutcomeTimedOut, Reason: "no output within 10m0s"},
	}
	return r
}

func TestGetWriter(t *testing.T) {
	tests := []struct {
		format string
		want   any
	}{
		{"text", &TextWriter{}},
		{"", &TextWriter{}},
		{"json", &JSONWriter{}},
		{"markdown", &MarkdownWriter{}},
		{"md", &MarkdownWriter{}},
		{"SARIF", &SARIFWriter{}},
	}
	for _, tt := range tests {
		w, err := GetWriter(tt.format)
		if err != nil {
			t.Errorf("GetWriter(%q) error: %v", tt.format, err)
			continue
		}
		if got, want := typeName(w), typeName(tt.want); got != want {
			t.Errorf("GetWriter(%q) = %s, want %s", tt.format, got, want)
		}
	}
	if _, err := GetWriter("xml"); err == nil {
		t.Error("GetWriter(xml) should fail")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextWriter:
		return "text"
	case *JSONWriter:
		return "json"
	case *MarkdownWriter:
		return "markdown"
	case *SARIFWriter:
		return "sarif"
	default:
		return "?"
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport(sampleReport(), "json", path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"runId": "run-1"`) {
		t.Errorf("report file missing run id:\n%s", data)
	}
}

func TestWriteReport_BadDirectory(t *testing.T) {
	err := WriteReport(sampleReport(), "text", filepath.Join(t.TempDir(), "missing", "r.txt"))
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

// Every format must disclose unavailable sources.
func TestAllFormats_DiscloseDegradedRun(t *testing.T) {
	for _, format := range Formats {
		w, err := GetWriter(format)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := w.Write(&buf, degradedReport()); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		out := buf.String()
		if !strings.Contains(out, "local") || !strings.Contains(out, "timed_out") {
			t.Errorf("%s output does not disclose the unavailable source:\n%s", format, out)
		}
	}
}

func TestUnavailableLine(t *testing.T) {
	s := review.Summary{Unavailable: []review.UnavailableSource{
		{ID: "a", Outcome: review.OutcomeFailed, Reason: "auth"},
		{ID: "b", Outcome: review.OutcomeTimedOut},
	}}
	if got, want := unavailableLine(s), "a (failed: auth); b (timed_out)"; got != want {
		t.Errorf("unavailableLine = %q, want %q", got, want)
	}
}

func TestWrapText(t *testing.T) {
	if got := wrapText("", 10); got != nil {
		t.Errorf("wrapText empty = %v", got)
	}
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line too long: %q", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six" {
		t.Errorf("words lost: %v", lines)
	}
}
