package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylongwang2782/embedded-review/internal/logger"
)

func static(out string) Source {
	return SourceFunc(func(context.Context, Input) (string, error) { return out, nil })
}

func delayed(d time.Duration, out string) Source {
	return SourceFunc(func(ctx context.Context, _ Input) (string, error) {
		select {
		case <-time.After(d):
			return out, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

// stuck ignores cancellation until the test ends.
func stuck(t *testing.T) Source {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return SourceFunc(func(context.Context, Input) (string, error) {
		<-release
		return "[P0] late.c:1 Should never be seen", nil
	})
}

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(DefaultMatchConfig(), logger.Discard())
}

const (
	claudeOut = `[P1] {concurrency} src/timer.c:10 Tick counter race with SysTick ISR
Description: tick is incremented in the ISR and read non-atomically in main.
Fix: disable interrupts around the read.

[P3] {style} src/timer.c:40 Magic reload value`

	gptOut = `Review:

- **High** src/timer.c:11: tick counter updated non-atomically {interrupt}
  Risk: torn reads of a 64-bit counter on Cortex-M0.

[P2] {hardware} src/adc.c:5 ADC sampled before calibration completes`
)

func TestRun_ConsensusAcrossSources(t *testing.T) {
	run, err := newTestOrchestrator().Run(context.Background(), Input{Mode: "unstaged"}, []SourceDescriptor{
		{ID: "claude", Source: static(claudeOut)},
		{ID: "gpt", Source: static(gptOut)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.False(t, run.Degraded())
	require.Len(t, run.Clusters, 3)

	var consensus *Cluster
	for i := range run.Clusters {
		if run.Clusters[i].Status == StatusConsensus {
			consensus = &run.Clusters[i]
		}
	}
	require.NotNil(t, consensus, "expected one consensus cluster")
	assert.Equal(t, SeverityP1, consensus.UnifiedSeverity)
	assert.Equal(t, []string{"claude", "gpt"}, consensus.SourceIDs())
	assert.Equal(t, "Tick counter race with SysTick ISR", consensus.Rep().Title)
}

func TestRun_ContradictionWithAssertion(t *testing.T) {
	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "a", Source: static("[P0] {memory-safety} src/uart.c:42 RX buffer overflow")},
		{ID: "b", Source: static("[OK] src/uart.c:42 Index is masked with RX_BUF_SIZE-1")},
	})
	require.NoError(t, err)
	require.Len(t, run.Clusters, 1)
	assert.Equal(t, StatusContradiction, run.Clusters[0].Status)
	assert.Equal(t, SeverityP0, run.Clusters[0].UnifiedSeverity)
}

func TestRun_SingleSourceIsSourceOnly(t *testing.T) {
	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "claude", Source: static(claudeOut)},
	})
	require.NoError(t, err)
	require.Len(t, run.Clusters, 2)
	for _, c := range run.Clusters {
		assert.Equal(t, StatusSourceOnly, c.Status)
	}
}

func TestRun_CompletionOrderIndependent(t *testing.T) {
	o := newTestOrchestrator()
	first, err := o.Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "claude", Source: delayed(30*time.Millisecond, claudeOut)},
		{ID: "gpt", Source: static(gptOut)},
	})
	require.NoError(t, err)
	second, err := o.Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "gpt", Source: delayed(30*time.Millisecond, gptOut)},
		{ID: "claude", Source: static(claudeOut)},
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Clusters, second.Clusters)
}

func TestRun_TimeoutIsIsolated(t *testing.T) {
	start := time.Now()
	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "slow", Source: stuck(t), Timeout: 50 * time.Millisecond},
		{ID: "claude", Source: static(claudeOut)},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	slow := run.Sources[0]
	assert.Equal(t, OutcomeTimedOut, slow.Outcome)
	assert.ErrorIs(t, slow.Err, ErrSourceTimeout)
	assert.Empty(t, slow.Findings)
	assert.True(t, run.Degraded())
	assert.Len(t, run.Clusters, 2)
}

func TestRun_PanicAndUnusableOutput(t *testing.T) {
	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "panics", Source: SourceFunc(func(context.Context, Input) (string, error) { panic("boom") })},
		{ID: "binary", Source: static("[P1] a.c:1 x\x00\xff")},
		{ID: "claude", Source: static(claudeOut)},
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, run.Sources[0].Outcome)
	assert.ErrorIs(t, run.Sources[0].Err, ErrSourceFailure)
	assert.Contains(t, run.Sources[0].Err.Error(), "boom")

	assert.Equal(t, OutcomeFailed, run.Sources[1].Outcome)
	assert.Contains(t, run.Sources[1].Err.Error(), "unusable output")

	assert.Equal(t, OutcomeSucceeded, run.Sources[2].Outcome)
}

func TestRun_AllSourcesUnavailable(t *testing.T) {
	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "a", Source: SourceFunc(func(context.Context, Input) (string, error) { return "", errors.New("401 unauthorized") })},
		{ID: "b", Source: stuck(t), Timeout: 20 * time.Millisecond},
	})
	require.ErrorIs(t, err, ErrAllSourcesUnavailable)
	assert.ErrorIs(t, err, ErrSourceFailure)
	assert.ErrorIs(t, err, ErrSourceTimeout)
	assert.Contains(t, err.Error(), "401 unauthorized")

	require.NotNil(t, run)
	assert.Empty(t, run.Clusters)
	assert.Equal(t, OutcomeFailed, run.Sources[0].Outcome)
	assert.Equal(t, OutcomeTimedOut, run.Sources[1].Outcome)
}

func TestRun_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 2)
	blocking := SourceFunc(func(ctx context.Context, _ Input) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	go func() {
		<-started
		<-started
		cancel()
	}()

	run, err := newTestOrchestrator().Run(ctx, Input{}, []SourceDescriptor{
		{ID: "a", Source: blocking},
		{ID: "b", Source: blocking},
	})
	require.ErrorIs(t, err, ErrAllSourcesUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	for _, s := range run.Sources {
		assert.Equal(t, OutcomeFailed, s.Outcome, s.SourceID)
	}
}

func TestRun_PerSourceVocabulary(t *testing.T) {
	vocab, err := NewVocabulary(map[string]string{"blocker": "P0"}, nil)
	require.NoError(t, err)

	run, err := newTestOrchestrator().Run(context.Background(), Input{}, []SourceDescriptor{
		{ID: "custom", Source: static("[Blocker] src/boot.c:4 Vector table misaligned"), Vocabulary: vocab},
		{ID: "default", Source: static("[Blocker] src/boot.c:90 Stack size too small")},
	})
	require.NoError(t, err)
	require.Len(t, run.Clusters, 2)

	bySource := map[string]Finding{}
	for _, s := range run.Sources {
		require.Len(t, s.Findings, 1)
		bySource[s.SourceID] = s.Findings[0]
	}
	assert.Equal(t, SeverityP0, bySource["custom"].Severity)
	assert.True(t, bySource["custom"].Certain())
	assert.Equal(t, SeverityP3, bySource["default"].Severity)
	assert.False(t, bySource["default"].Certain())
}

func TestRun_InputForwardedUnchanged(t *testing.T) {
	in := Input{Mode: "range", Range: "main..HEAD", Diff: "diff --git a/x.c b/x.c", FocusHints: []string{"dma"}}
	var seen []Input
	rec := SourceFunc(func(_ context.Context, got Input) (string, error) {
		seen = append(seen, got)
		return "No findings.", nil
	})
	run, err := newTestOrchestrator().Run(context.Background(), in, []SourceDescriptor{{ID: "only", Source: rec}})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, in, seen[0])
	assert.Empty(t, run.Clusters)
	assert.Equal(t, "main..HEAD", run.Input.Range)
}

func TestRun_Validation(t *testing.T) {
	tests := []struct {
		name    string
		sources []SourceDescriptor
		errSub  string
	}{
		{"none", nil, "at least one source"},
		{"empty id", []SourceDescriptor{{ID: " ", Source: static("")}}, "empty id"},
		{"duplicate", []SourceDescriptor{{ID: "a", Source: static("")}, {ID: "a", Source: static("")}}, "duplicate"},
		{"nil source", []SourceDescriptor{{ID: "a"}}, "no implementation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := newTestOrchestrator().Run(context.Background(), Input{}, tt.sources)
			require.Error(t, err)
			assert.Nil(t, run)
			assert.True(t, strings.Contains(err.Error(), tt.errSub), err.Error())
		})
	}
}

func TestTimeoutFor(t *testing.T) {
	o := &Orchestrator{}
	assert.Equal(t, DefaultSourceTimeout, o.timeoutFor(SourceDescriptor{}))
	o.DefaultTimeout = time.Minute
	assert.Equal(t, time.Minute, o.timeoutFor(SourceDescriptor{}))
	assert.Equal(t, time.Second, o.timeoutFor(SourceDescriptor{Timeout: time.Second}))
}
