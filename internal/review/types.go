package review

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the normalized ordinal severity of a finding. P0 is the most
// severe.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityP0, SeverityP1, SeverityP2, SeverityP3}

// Rank returns the ordinal index of s (P0 = 0). Unknown values rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityP0:
		return 0
	case SeverityP1:
		return 1
	case SeverityP2:
		return 2
	case SeverityP3:
		return 3
	default:
		return len(Severities)
	}
}

// SeverityFromRank is the inverse of Rank. Out-of-range ranks clamp to P3.
func SeverityFromRank(r int) Severity {
	if r < 0 {
		return SeverityP0
	}
	if r >= len(Severities) {
		return SeverityP3
	}
	return Severities[r]
}

// Valid reports whether s is one of P0..P3.
func (s Severity) Valid() bool {
	return s.Rank() < len(Severities)
}

// MoreSevere reports whether s outranks o.
func (s Severity) MoreSevere(o Severity) bool {
	return s.Rank() < o.Rank()
}

// ParseSeverity parses a canonical severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("invalid severity %q: expected P0, P1, P2 or P3", s)
	}
	return sev, nil
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	t, err := ParseSeverity(threshold)
	if err != nil {
		return false
	}
	return s.Valid() && s.Rank() <= t.Rank()
}

// Confidence is a source's self-assessment of a finding.
type Confidence string

const (
	ConfidenceCertain   Confidence = "certain"
	ConfidenceUncertain Confidence = "uncertain"
)

// Kind distinguishes reported defects from explicit "no issue" assertions.
type Kind string

const (
	KindDefect  Kind = "defect"
	KindNoIssue Kind = "no_issue"
)

// Location is where a finding points. LineStart 0 means the line could not
// be resolved; a nil LineEnd means a single line.
type Location struct {
	Path      string `json:"path"`
	LineStart int    `json:"lineStart,omitempty"`
	LineEnd   *int   `json:"lineEnd,omitempty"`
}

// Resolved reports whether the location carries a line number.
func (l Location) Resolved() bool {
	return l.LineStart > 0
}

// Span returns the inclusive line range. Unresolved locations return (0, 0).
func (l Location) Span() (int, int) {
	if !l.Resolved() {
		return 0, 0
	}
	end := l.LineStart
	if l.LineEnd != nil && *l.LineEnd > end {
		end = *l.LineEnd
	}
	return l.LineStart, end
}

// Width is the number of lines covered, 0 when unresolved.
func (l Location) Width() int {
	if !l.Resolved() {
		return 0
	}
	start, end := l.Span()
	return end - start + 1
}

func (l Location) String() string {
	if l.Path == "" {
		return "(unknown location)"
	}
	if !l.Resolved() {
		return l.Path
	}
	start, end := l.Span()
	if end > start {
		return fmt.Sprintf("%s:%d-%d", l.Path, start, end)
	}
	return fmt.Sprintf("%s:%d", l.Path, start)
}

// Finding is one issue reported by one source, after normalization.
type Finding struct {
	SourceID     string     `json:"sourceId"`
	Location     Location   `json:"location"`
	Category     string     `json:"category,omitempty"`
	Severity     Severity   `json:"severity"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Risk         string     `json:"risk,omitempty"`
	SuggestedFix string     `json:"suggestedFix,omitempty"`
	Confidence   Confidence `json:"confidence"`
	Kind         Kind       `json:"kind"`
	// Position is the finding's index within its source's output.
	Position int `json:"position"`
}

// Certain reports whether the source did not flag the finding as uncertain.
func (f Finding) Certain() bool {
	return f.Confidence != ConfidenceUncertain
}

// Status is the reconciled verdict of a cluster.
type Status string

const (
	StatusConsensus     Status = "consensus"
	StatusSourceOnly    Status = "source_only"
	StatusContradiction Status = "contradiction"
)

// Cluster is a set of findings from distinct sources judged to describe the
// same issue. Members hold at most one finding per source.
type Cluster struct {
	ID              string     `json:"id"`
	Members         []Finding  `json:"members"`
	Representative  int        `json:"representative"`
	Status          Status     `json:"status"`
	UnifiedSeverity Severity   `json:"unifiedSeverity"`
	Confidence      Confidence `json:"confidence"`
	// Affirmation is set when every member is a no-issue assertion.
	Affirmation bool `json:"affirmation,omitempty"`
	// CategoryConflict is set when agreeing sources filed the issue under
	// incompatible categories.
	CategoryConflict bool `json:"categoryConflict,omitempty"`
}

// Rep returns the representative member.
func (c Cluster) Rep() Finding {
	if c.Representative < 0 || c.Representative >= len(c.Members) {
		return c.Members[0]
	}
	return c.Members[c.Representative]
}

// SourceIDs returns the contributing sources in member order.
func (c Cluster) SourceIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.SourceID
	}
	return ids
}

// Outcome is the terminal state of one source task.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
)

// Residue measures output the normalizer could not map to a finding.
type Residue struct {
	Lines      int `json:"lines"`
	Bytes      int `json:"bytes"`
	TotalBytes int `json:"totalBytes"`
}

// Fraction is the residue share of total output, 0 for empty output.
func (r Residue) Fraction() float64 {
	if r.TotalBytes == 0 {
		return 0
	}
	return float64(r.Bytes) / float64(r.TotalBytes)
}

// SourceResult is one source's contribution to a run.
type SourceResult struct {
	SourceID string        `json:"sourceId"`
	Order    int           `json:"order"`
	Outcome  Outcome       `json:"outcome"`
	Raw      string        `json:"-"`
	Err      error         `json:"-"`
	Findings []Finding     `json:"findings,omitempty"`
	Residue  Residue       `json:"residue"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Available reports whether the source produced usable output.
func (r SourceResult) Available() bool {
	return r.Outcome == OutcomeSucceeded
}

// Run is one orchestration run. It is owned by the Orchestrator that built
// it and is not shared between runs.
type Run struct {
	ID       string         `json:"id"`
	Input    InputInfo      `json:"input"`
	Repo     RepoMetadata   `json:"repo"`
	Sources  []SourceResult `json:"sources"`
	Clusters []Cluster      `json:"clusters"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
}

// Degraded reports whether any source did not succeed.
func (r *Run) Degraded() bool {
	for _, s := range r.Sources {
		if !s.Available() {
			return true
		}
	}
	return false
}
