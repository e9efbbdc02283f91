package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func okAt(src string, l Location) Finding {
	f := mk(src, 0, l, SeverityP3, "", "code is correct")
	f.Kind = KindNoIssue
	return f
}

func uncertain(f Finding) Finding {
	f.Confidence = ConfidenceUncertain
	return f
}

func TestReconcile(t *testing.T) {
	at := loc("src/uart.c", 42, 0)
	tests := []struct {
		name             string
		members          []Finding
		status           Status
		severity         Severity
		confidence       Confidence
		affirmation      bool
		categoryConflict bool
	}{
		{
			name:       "single source",
			members:    []Finding{mk("a", 0, at, SeverityP2, "memory", "x")},
			status:     StatusSourceOnly,
			severity:   SeverityP2,
			confidence: ConfidenceCertain,
		},
		{
			name:       "single uncertain source",
			members:    []Finding{uncertain(mk("a", 0, at, SeverityP0, "memory", "x"))},
			status:     StatusSourceOnly,
			severity:   SeverityP0,
			confidence: ConfidenceUncertain,
		},
		{
			name:       "agreement",
			members:    []Finding{mk("a", 0, at, SeverityP1, "memory", "x"), mk("b", 0, at, SeverityP1, "memory-safety", "x")},
			status:     StatusConsensus,
			severity:   SeverityP1,
			confidence: ConfidenceCertain,
		},
		{
			name:       "one level apart",
			members:    []Finding{mk("a", 0, at, SeverityP2, "memory", "x"), mk("b", 0, at, SeverityP1, "memory", "x")},
			status:     StatusConsensus,
			severity:   SeverityP1,
			confidence: ConfidenceCertain,
		},
		{
			name:       "two levels apart",
			members:    []Finding{mk("a", 0, at, SeverityP0, "memory", "x"), mk("b", 0, at, SeverityP2, "memory", "x")},
			status:     StatusContradiction,
			severity:   SeverityP0,
			confidence: ConfidenceCertain,
		},
		{
			name:       "defect versus no issue",
			members:    []Finding{mk("a", 0, at, SeverityP0, "memory", "x"), okAt("b", at)},
			status:     StatusContradiction,
			severity:   SeverityP0,
			confidence: ConfidenceCertain,
		},
		{
			name:        "only assertions",
			members:     []Finding{okAt("a", at), okAt("b", at)},
			status:      StatusConsensus,
			severity:    SeverityP3,
			confidence:  ConfidenceCertain,
			affirmation: true,
		},
		{
			name:       "uncertain higher severity is ignored",
			members:    []Finding{uncertain(mk("a", 0, at, SeverityP1, "memory", "x")), mk("b", 0, at, SeverityP2, "memory", "x")},
			status:     StatusConsensus,
			severity:   SeverityP2,
			confidence: ConfidenceCertain,
		},
		{
			name:       "all uncertain",
			members:    []Finding{uncertain(mk("a", 0, at, SeverityP2, "memory", "x")), uncertain(mk("b", 0, at, SeverityP1, "memory", "x"))},
			status:     StatusConsensus,
			severity:   SeverityP1,
			confidence: ConfidenceUncertain,
		},
		{
			name:             "incompatible categories",
			members:          []Finding{mk("a", 0, at, SeverityP1, "memory", "x"), mk("b", 0, at, SeverityP1, "concurrency", "x")},
			status:           StatusConsensus,
			severity:         SeverityP1,
			confidence:       ConfidenceCertain,
			categoryConflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(Cluster{ID: "C001", Members: tt.members}, DefaultMatchConfig())
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.severity, got.UnifiedSeverity)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.affirmation, got.Affirmation)
			assert.Equal(t, tt.categoryConflict, got.CategoryConflict)
		})
	}
}

func TestReconcile_MemberSeveritiesUntouched(t *testing.T) {
	at := loc("a.c", 1, 0)
	members := []Finding{uncertain(mk("a", 0, at, SeverityP0, "", "x")), mk("b", 0, at, SeverityP3, "", "x")}
	got := Reconcile(Cluster{Members: members}, DefaultMatchConfig())
	assert.Equal(t, SeverityP0, got.Members[0].Severity)
	assert.Equal(t, SeverityP3, got.Members[1].Severity)
	assert.Equal(t, SeverityP3, got.UnifiedSeverity)
}

func TestReconcile_SymmetricInMemberOrder(t *testing.T) {
	at := loc("a.c", 1, 0)
	a := mk("a", 0, at, SeverityP1, "memory", "x")
	b := mk("b", 0, at, SeverityP2, "concurrency", "x")
	cfg := DefaultMatchConfig()

	ab := Reconcile(Cluster{Members: []Finding{a, b}}, cfg)
	ba := Reconcile(Cluster{Members: []Finding{b, a}}, cfg)
	assert.Equal(t, ab.Status, ba.Status)
	assert.Equal(t, ab.UnifiedSeverity, ba.UnifiedSeverity)
	assert.Equal(t, ab.CategoryConflict, ba.CategoryConflict)
}
