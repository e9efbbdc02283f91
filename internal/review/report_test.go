package review

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconciled(members ...Finding) Cluster {
	return Reconcile(Cluster{Members: members, Representative: selectRepresentative(members)}, DefaultMatchConfig())
}

func TestAssemble_BucketsAndOrdering(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at42 := loc("src/uart.c", 42, 0)

	clusters := []Cluster{
		reconciled(mk("a", 0, loc("src/uart.c", 90, 0), SeverityP1, "", "Later line")),
		reconciled(mk("a", 1, loc("src/adc.c", 5, 0), SeverityP1, "", "Earlier path")),
		reconciled(mk("a", 2, at42, SeverityP0, "memory", "Overflow"), mk("b", 0, at42, SeverityP0, "memory", "Overflow")),
		reconciled(okAt("a", loc("src/timer.c", 3, 0)), okAt("b", loc("src/timer.c", 3, 0))),
		reconciled(mk("b", 1, loc("src/uart.c", 90, 0), SeverityP1, "", "Another at same line")),
	}
	for i := range clusters {
		clusters[i].ID = fmt.Sprintf("C%03d", i+1)
	}

	run := &Run{
		ID:       "run-1",
		Input:    InputInfo{Mode: "staged"},
		Clusters: clusters,
		Sources: []SourceResult{
			{SourceID: "a", Outcome: OutcomeSucceeded, Duration: 2 * time.Second},
			{SourceID: "b", Outcome: OutcomeSucceeded, Duration: 3 * time.Second, Warnings: []string{"degraded parse: 60%"}},
		},
		Started:  started,
		Finished: started.Add(4 * time.Second),
	}

	r := Assemble(run)

	assert.Equal(t, ToolName, r.Tool)
	assert.Equal(t, "run-1", r.RunID)
	require.Len(t, r.Buckets, 4)
	for i, b := range r.Buckets {
		assert.Equal(t, Severities[i], b.Severity)
		assert.NotNil(t, b.Clusters)
	}

	require.Len(t, r.Buckets[0].Clusters, 1)
	p0 := r.Buckets[0].Clusters[0]
	assert.Equal(t, StatusConsensus, p0.Status)
	assert.Equal(t, []string{"a", "b"}, p0.Sources)
	assert.Equal(t, "src/uart.c:42", p0.Location())

	var titles []string
	for _, c := range r.Buckets[1].Clusters {
		titles = append(titles, c.Title)
	}
	assert.Equal(t, []string{"Earlier path", "Another at same line", "Later line"}, titles)
	assert.Empty(t, r.Buckets[2].Clusters)
	assert.Empty(t, r.Buckets[3].Clusters)

	assert.Equal(t, 4, r.Summary.Total)
	assert.Equal(t, 1, r.Summary.Consensus)
	assert.Equal(t, 3, r.Summary.SourceOnly)
	assert.Equal(t, 1, r.Summary.Affirmations)
	assert.Equal(t, SeverityP0, r.Summary.HighestSeverity)
	assert.Equal(t, 1, r.Summary.ParseWarnings)
	assert.False(t, r.Summary.Degraded)
	assert.Empty(t, r.Summary.Unavailable)

	assert.Equal(t, int64(4000), r.Timing.TotalMs)
	assert.Equal(t, int64(3000), r.Timing.SourcesMs)
	assert.Len(t, r.Clusters(), 4)
}

func TestAssemble_DegradedDisclosure(t *testing.T) {
	run := &Run{
		ID: "run-2",
		Sources: []SourceResult{
			{SourceID: "claude", Outcome: OutcomeSucceeded},
			{SourceID: "gpt", Outcome: OutcomeTimedOut, Err: &SourceError{SourceID: "gpt", Outcome: OutcomeTimedOut, Err: errors.New("no output within 1m0s")}},
			{SourceID: "local", Outcome: OutcomeFailed, Err: &SourceError{SourceID: "local", Outcome: OutcomeFailed, Err: errors.New("exit status 2")}},
		},
		Clusters: []Cluster{reconciled(mk("claude", 0, loc("a.c", 1, 0), SeverityP2, "", "x"))},
	}

	r := Assemble(run)
	assert.True(t, r.Summary.Degraded)
	require.Len(t, r.Summary.Unavailable, 2)
	assert.Equal(t, "gpt", r.Summary.Unavailable[0].ID)
	assert.Equal(t, OutcomeTimedOut, r.Summary.Unavailable[0].Outcome)
	assert.Contains(t, r.Summary.Unavailable[0].Reason, "no output within")
	assert.Equal(t, "local", r.Summary.Unavailable[1].ID)
	assert.Equal(t, OutcomeFailed, r.Summary.Unavailable[1].Outcome)

	require.Len(t, r.Buckets[2].Clusters, 1)
	assert.Equal(t, StatusSourceOnly, r.Buckets[2].Clusters[0].Status)
	assert.Zero(t, r.Summary.Consensus)
	require.Len(t, r.Sources, 3)
}

func TestAssemble_Empty(t *testing.T) {
	r := Assemble(&Run{ID: "x", Sources: []SourceResult{{SourceID: "a", Outcome: OutcomeSucceeded}}})
	assert.Zero(t, r.Summary.Total)
	assert.Empty(t, r.Summary.HighestSeverity)
	assert.Len(t, r.Buckets, 4)
	assert.Empty(t, r.Clusters())
}
