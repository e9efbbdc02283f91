package review

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDistinctSources(t *testing.T, clusters []Cluster) {
	t.Helper()
	for _, c := range clusters {
		seen := make(map[string]bool)
		for _, m := range c.Members {
			assert.False(t, seen[m.SourceID], "cluster %s holds two findings from %s", c.ID, m.SourceID)
			seen[m.SourceID] = true
		}
	}
}

func memberCount(clusters []Cluster) int {
	n := 0
	for _, c := range clusters {
		n += len(c.Members)
	}
	return n
}

func TestBuildClusters_NearbyLinesMerge(t *testing.T) {
	findings := []Finding{
		mk("claude", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX overflow"),
		mk("gpt", 0, loc("src/uart.c", 11, 0), SeverityP1, "memory", "Receive buffer overrun"),
	}
	clusters := BuildClusters(findings, DefaultMatchConfig())
	require.Len(t, clusters, 1)
	assert.Equal(t, "C001", clusters[0].ID)
	assert.Equal(t, []string{"claude", "gpt"}, clusters[0].SourceIDs())
}

func TestBuildClusters_DifferentPathsNeverMerge(t *testing.T) {
	findings := []Finding{
		mk("a", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX overflow"),
		mk("b", 0, loc("src/usart.c", 10, 0), SeverityP1, "memory-safety", "RX overflow"),
		mk("c", 0, Location{}, SeverityP1, "memory-safety", "RX overflow"),
		mk("d", 0, Location{}, SeverityP1, "memory-safety", "RX overflow"),
	}
	clusters := BuildClusters(findings, DefaultMatchConfig())
	assert.Len(t, clusters, 4)
}

func TestBuildClusters_OneFindingPerSource(t *testing.T) {
	findings := []Finding{
		mk("a", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX buffer overflow"),
		mk("a", 1, loc("src/uart.c", 11, 0), SeverityP2, "memory-safety", "Missing volatile on head index"),
		mk("b", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX buffer overflow"),
	}
	clusters := BuildClusters(findings, DefaultMatchConfig())

	require.Len(t, clusters, 2)
	assertDistinctSources(t, clusters)
	// The stronger link wins the contested finding.
	assert.Equal(t, "RX buffer overflow", clusters[0].Members[0].Title)
	assert.Equal(t, []string{"a", "b"}, clusters[0].SourceIDs())
	assert.Equal(t, "Missing volatile on head index", clusters[1].Members[0].Title)
}

func TestBuildClusters_Idempotent(t *testing.T) {
	findings := sampleFindings()
	cfg := DefaultMatchConfig()
	assert.Equal(t, BuildClusters(findings, cfg), BuildClusters(findings, cfg))
}

func TestBuildClusters_OrderIndependent(t *testing.T) {
	findings := sampleFindings()
	cfg := DefaultMatchConfig()
	want := BuildClusters(findings, cfg)
	assertDistinctSources(t, want)
	assert.Equal(t, len(findings), memberCount(want))

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20; i++ {
		shuffled := append([]Finding(nil), findings...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, BuildClusters(shuffled, cfg))
	}
}

func TestBuildClusters_Empty(t *testing.T) {
	assert.Nil(t, BuildClusters(nil, DefaultMatchConfig()))
}

func TestSelectRepresentative(t *testing.T) {
	narrowCertain := mk("a", 0, loc("x.c", 10, 0), SeverityP1, "", "narrow")
	wideUncertain := mk("b", 0, loc("x.c", 8, 14), SeverityP1, "", "wide")
	wideUncertain.Confidence = ConfidenceUncertain
	wideCertain := mk("c", 0, loc("x.c", 9, 12), SeverityP1, "", "wider")

	assert.Equal(t, 0, selectRepresentative([]Finding{narrowCertain, wideUncertain}))
	assert.Equal(t, 2, selectRepresentative([]Finding{narrowCertain, wideUncertain, wideCertain}))
	assert.Equal(t, 0, selectRepresentative([]Finding{narrowCertain, mk("d", 0, loc("x.c", 11, 0), SeverityP2, "", "same width")}))

	assertion := mk("e", 0, loc("x.c", 6, 16), SeverityP3, "", "bounds check is correct")
	assertion.Kind = KindNoIssue
	assert.Equal(t, 1, selectRepresentative([]Finding{assertion, wideUncertain}))
	assert.Equal(t, 1, selectRepresentative([]Finding{assertion, narrowCertain}))

	otherAssertion := assertion
	otherAssertion.SourceID = "f"
	otherAssertion.Location = loc("x.c", 6, 20)
	assert.Equal(t, 1, selectRepresentative([]Finding{assertion, otherAssertion}))
}

func TestBuildClusters_ContradictionShowsDefect(t *testing.T) {
	alpha := Normalizer{SourceID: "alpha"}.Normalize("[OK] {memory-safety} x.c:10-14 Bounds check on rx index is correct")
	beta := Normalizer{SourceID: "beta"}.Normalize("[P0] {memory-safety} x.c:10 Out-of-bounds write on rx index")
	findings := append(alpha.Findings, beta.Findings...)

	cfg := DefaultMatchConfig()
	clusters := ReconcileAll(BuildClusters(findings, cfg), cfg)

	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Equal(t, []string{"alpha", "beta"}, c.SourceIDs())
	assert.Equal(t, StatusContradiction, c.Status)
	assert.Equal(t, "Out-of-bounds write on rx index", c.Members[c.Representative].Title)
}

func TestBuildClusters_SourceKeepsCertainFinding(t *testing.T) {
	certain := mk("a", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX index unchecked before write")
	unsure := mk("a", 1, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX buffer overflow")
	unsure.Confidence = ConfidenceUncertain
	other := mk("b", 0, loc("src/uart.c", 10, 0), SeverityP1, "memory-safety", "RX buffer overflow")

	cfg := DefaultMatchConfig()
	require.Greater(t, cfg.Score(unsure, other), cfg.Score(certain, other))
	require.Greater(t, cfg.Score(certain, other), cfg.Threshold)

	clusters := BuildClusters([]Finding{certain, unsure, other}, cfg)

	require.Len(t, clusters, 2)
	assertDistinctSources(t, clusters)
	assert.Equal(t, []string{"a", "b"}, clusters[0].SourceIDs())
	assert.True(t, clusters[0].Members[0].Certain())
	assert.Equal(t, "RX index unchecked before write", clusters[0].Members[0].Title)
	require.Len(t, clusters[1].Members, 1)
	assert.False(t, clusters[1].Members[0].Certain())
}

func sampleFindings() []Finding {
	return []Finding{
		mk("claude", 0, loc("src/uart.c", 42, 48), SeverityP1, "memory-safety", "RX buffer index not bounds-checked"),
		mk("claude", 1, loc("src/timer.c", 10, 0), SeverityP2, "concurrency", "Tick counter updated non-atomically"),
		mk("claude", 2, loc("src/dma.c", 5, 0), SeverityP0, "hardware", "DMA started before clock enable"),
		mk("gpt", 0, loc("src/uart.c", 44, 0), SeverityP0, "buffer overflow", "rx buffer overflow on burst"),
		mk("gpt", 1, loc("src/timer.c", 11, 0), SeverityP2, "race", "tick counter race with SysTick ISR"),
		mk("gpt", 2, loc("src/flash.c", 80, 0), SeverityP3, "style", "Magic sector number"),
		mk("local", 0, loc("src/uart.c", 47, 0), SeverityP2, "memory", "head index can exceed RX_BUF_SIZE"),
		mk("local", 1, loc("src/timer.c", 40, 0), SeverityP3, "docs", "Comment out of date"),
		mk("local", 2, Location{Path: "src/dma.c"}, SeverityP1, "dma", "Clock for DMA enabled too late"),
	}
}
