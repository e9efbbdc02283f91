package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ylongwang2782/embedded-review/internal/review"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// SARIFWriter outputs clusters in SARIF v2.1.0 format. Each cluster is one
// result; its rule is the cluster's category.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *review.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations,omitempty"`
	Fixes      []sarifFix       `json:"fixes,omitempty"`
	Properties sarifResultProps `json:"properties"`
}

type sarifResultProps struct {
	ClusterID        string   `json:"clusterId"`
	Severity         string   `json:"severity"`
	Status           string   `json:"status"`
	Confidence       string   `json:"confidence"`
	Sources          []string `json:"sources"`
	CategoryConflict bool     `json:"categoryConflict,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

func buildSARIF(report *review.Report) sarifLog {
	var (
		rules   []sarifRule
		seen    = make(map[string]bool)
		results = []sarifResult{}
	)
	for _, c := range report.Clusters() {
		id := ruleID(c.Category)
		if !seen[id] {
			seen[id] = true
			name := c.Category
			if name == "" {
				name = "uncategorized"
			}
			rules = append(rules, sarifRule{ID: id, Name: name, ShortDescription: sarifMessage{Text: name + " finding"}})
		}

		text := c.Title
		if c.Description != "" {
			text += "\n\n" + c.Description
		}
		r := sarifResult{
			RuleID:  id,
			Level:   severityToLevel(c.Severity),
			Message: sarifMessage{Text: text},
			Properties: sarifResultProps{
				ClusterID:        c.ID,
				Severity:         string(c.Severity),
				Status:           string(c.Status),
				Confidence:       string(c.Confidence),
				Sources:          c.Sources,
				CategoryConflict: c.CategoryConflict,
			},
		}
		if c.Path != "" {
			loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: c.Path},
			}}
			if c.LineStart > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{StartLine: c.LineStart, EndLine: c.LineEnd}
			}
			r.Locations = append(r.Locations, loc)
		}
		if c.SuggestedFix != "" {
			r.Fixes = append(r.Fixes, sarifFix{Description: sarifMessage{Text: c.SuggestedFix}})
		}
		results = append(results, r)
	}

	inv := sarifInvocation{ExecutionSuccessful: true}
	for _, u := range report.Summary.Unavailable {
		msg := fmt.Sprintf("source %s %s", u.ID, u.Outcome)
		if u.Reason != "" {
			msg += ": " + u.Reason
		}
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, sarifNotification{
			Level:   "warning",
			Message: sarifMessage{Text: msg},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    report.Tool,
				Version: report.Version,
				Rules:   rules,
			}},
			Invocations: []sarifInvocation{inv},
			Results:     results,
		}},
	}
}

func severityToLevel(s review.Severity) string {
	switch s {
	case review.SeverityP0, review.SeverityP1:
		return "error"
	case review.SeverityP2:
		return "warning"
	default:
		return "note"
	}
}

func ruleID(category string) string {
	if category == "" {
		category = "uncategorized"
	}
	return "embedded-review/" + strings.ToLower(category)
}
