package review

import (
	"cmp"
	"slices"
)

const (
	ToolName    = "embedded-review"
	ToolVersion = "0.3.0"
)

// ClusterView is the presentation-ready form of a reconciled cluster.
type ClusterView struct {
	ID               string     `json:"id"`
	Path             string     `json:"path"`
	LineStart        int        `json:"lineStart,omitempty"`
	LineEnd          int        `json:"lineEnd,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Risk             string     `json:"risk,omitempty"`
	SuggestedFix     string     `json:"suggestedFix,omitempty"`
	Category         string     `json:"category,omitempty"`
	Severity         Severity   `json:"severity"`
	Status           Status     `json:"status"`
	Confidence       Confidence `json:"confidence"`
	Sources          []string   `json:"sources"`
	CategoryConflict bool       `json:"categoryConflict,omitempty"`
}

// Location renders the view's location.
func (v ClusterView) Location() string {
	loc := Location{Path: v.Path, LineStart: v.LineStart}
	if v.LineEnd > v.LineStart {
		end := v.LineEnd
		loc.LineEnd = &end
	}
	return loc.String()
}

// Bucket groups clusters of one unified severity.
type Bucket struct {
	Severity Severity      `json:"severity"`
	Clusters []ClusterView `json:"clusters"`
}

// UnavailableSource discloses a source that did not contribute.
type UnavailableSource struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// SourceSummary describes one source's contribution.
type SourceSummary struct {
	ID         string   `json:"id"`
	Outcome    Outcome  `json:"outcome"`
	Findings   int      `json:"findings"`
	Residue    float64  `json:"residue"`
	Warnings   []string `json:"warnings,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// Summary provides an overview of the run.
type Summary struct {
	Total           int                 `json:"total"`
	Consensus       int                 `json:"consensus"`
	SourceOnly      int                 `json:"sourceOnly"`
	Contradiction   int                 `json:"contradiction"`
	Affirmations    int                 `json:"affirmations"`
	HighestSeverity Severity            `json:"highestSeverity,omitempty"`
	Degraded        bool                `json:"degraded"`
	Unavailable     []UnavailableSource `json:"unavailable,omitempty"`
	ParseWarnings   int                 `json:"parseWarnings"`
}

// Timing contains performance metrics.
type Timing struct {
	SourcesMs int64 `json:"sourcesMs"`
	TotalMs   int64 `json:"totalMs"`
}

// Report is the output contract handed to the presentation layer.
type Report struct {
	Tool    string          `json:"tool"`
	Version string          `json:"version"`
	RunID   string          `json:"runId"`
	Repo    RepoMetadata    `json:"repo"`
	Inputs  InputInfo       `json:"inputs"`
	Summary Summary         `json:"summary"`
	Buckets []Bucket        `json:"buckets"`
	Sources []SourceSummary `json:"sources"`
	Timing  Timing          `json:"timing"`
}

// Clusters returns every reported cluster, most severe first.
func (r *Report) Clusters() []ClusterView {
	var out []ClusterView
	for _, b := range r.Buckets {
		out = append(out, b.Clusters...)
	}
	return out
}

// Assemble renders a finished run into a Report. It performs no matching or
// severity logic; affirmation clusters are counted but not listed.
func Assemble(run *Run) *Report {
	report := &Report{
		Tool:    ToolName,
		Version: ToolVersion,
		RunID:   run.ID,
		Repo:    run.Repo,
		Inputs:  run.Input,
		Buckets: make([]Bucket, len(Severities)),
		Timing: Timing{
			TotalMs: run.Finished.Sub(run.Started).Milliseconds(),
		},
	}
	for i, sev := range Severities {
		report.Buckets[i] = Bucket{Severity: sev, Clusters: []ClusterView{}}
	}

	for _, c := range run.Clusters {
		if c.Affirmation {
			report.Summary.Affirmations++
			continue
		}
		switch c.Status {
		case StatusConsensus:
			report.Summary.Consensus++
		case StatusContradiction:
			report.Summary.Contradiction++
		default:
			report.Summary.SourceOnly++
		}
		report.Summary.Total++
		rank := c.UnifiedSeverity.Rank()
		if rank >= len(report.Buckets) {
			rank = len(report.Buckets) - 1
		}
		report.Buckets[rank].Clusters = append(report.Buckets[rank].Clusters, viewOf(c))
	}

	for i := range report.Buckets {
		slices.SortStableFunc(report.Buckets[i].Clusters, compareViews)
		if len(report.Buckets[i].Clusters) > 0 && report.Summary.HighestSeverity == "" {
			report.Summary.HighestSeverity = report.Buckets[i].Severity
		}
	}

	for _, s := range run.Sources {
		report.Sources = append(report.Sources, SourceSummary{
			ID:         s.SourceID,
			Outcome:    s.Outcome,
			Findings:   len(s.Findings),
			Residue:    s.Residue.Fraction(),
			Warnings:   s.Warnings,
			DurationMs: s.Duration.Milliseconds(),
		})
		report.Summary.ParseWarnings += len(s.Warnings)
		if ms := s.Duration.Milliseconds(); ms > report.Timing.SourcesMs {
			report.Timing.SourcesMs = ms
		}
		if s.Available() {
			continue
		}
		report.Summary.Degraded = true
		u := UnavailableSource{ID: s.SourceID, Outcome: s.Outcome}
		if s.Err != nil {
			u.Reason = s.Err.Error()
		}
		report.Summary.Unavailable = append(report.Summary.Unavailable, u)
	}

	return report
}

func viewOf(c Cluster) ClusterView {
	rep := c.Rep()
	start, end := rep.Location.Span()
	v := ClusterView{
		ID:               c.ID,
		Path:             rep.Location.Path,
		LineStart:        start,
		Title:            rep.Title,
		Description:      rep.Description,
		Risk:             rep.Risk,
		SuggestedFix:     rep.SuggestedFix,
		Category:         rep.Category,
		Severity:         c.UnifiedSeverity,
		Status:           c.Status,
		Confidence:       c.Confidence,
		Sources:          c.SourceIDs(),
		CategoryConflict: c.CategoryConflict,
	}
	if end > start {
		v.LineEnd = end
	}
	return v
}

func compareViews(a, b ClusterView) int {
	return cmp.Or(
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.LineStart, b.LineStart),
		cmp.Compare(a.LineEnd, b.LineEnd),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.ID, b.ID),
	)
}
