package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ylongwang2782/embedded-review/internal/logger"
)

// DefaultSourceTimeout applies when neither the descriptor nor the
// orchestrator configures one.
const DefaultSourceTimeout = 10 * time.Minute

var tracer = otel.Tracer("github.com/ylongwang2782/embedded-review/internal/review")

// Source is an independent analysis process. Invoke must honor ctx; the
// orchestrator stops waiting when ctx is done either way.
type Source interface {
	Invoke(ctx context.Context, in Input) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, in Input) (string, error)

func (f SourceFunc) Invoke(ctx context.Context, in Input) (string, error) {
	return f(ctx, in)
}

// SourceDescriptor configures one source for a run.
type SourceDescriptor struct {
	ID      string
	Source  Source
	Timeout time.Duration
	// Vocabulary maps this source's severity words; the zero value uses
	// DefaultVocabulary.
	Vocabulary   Vocabulary
	ResidueLimit float64
}

// Orchestrator dispatches an input to every source concurrently and
// aggregates what they report. An Orchestrator holds only configuration, so
// one value may serve many independent runs.
type Orchestrator struct {
	Match          MatchConfig
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator with the given matching constants.
func NewOrchestrator(match MatchConfig, l *slog.Logger) *Orchestrator {
	return &Orchestrator{Match: match, Logger: l}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Run executes one orchestration run. Every source runs in its own
// goroutine; Run returns once all of them settled, timed out or were
// abandoned after ctx was canceled.
//
// A run in which no source succeeded returns ErrAllSourcesUnavailable along
// with a Run that records each outcome but holds no clusters.
func (o *Orchestrator) Run(ctx context.Context, in Input, sources []SourceDescriptor) (*Run, error) {
	if err := validateSources(sources); err != nil {
		return nil, err
	}

	run := &Run{
		ID:      uuid.NewString(),
		Input:   in.Info(),
		Repo:    in.Repo,
		Started: time.Now(),
	}
	ctx = logger.WithComponent(logger.WithRunID(ctx, run.ID), "orchestrator")
	ctx, span := tracer.Start(ctx, "review.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.sources", len(sources)),
	))
	defer span.End()

	o.logger().InfoContext(ctx, "dispatching review", "sources", len(sources), "files", len(in.Files))

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.runSource(ctx, i, src, in)
			return nil
		})
	}
	// Failures are recorded per source in results; tasks never fail the group.
	_ = g.Wait()

	run.Sources = results
	run.Finished = time.Now()

	var (
		findings []Finding
		errs     []error
	)
	for _, r := range results {
		if r.Available() {
			findings = append(findings, r.Findings...)
			continue
		}
		errs = append(errs, r.Err)
	}

	if len(errs) == len(results) {
		err := fmt.Errorf("%w: %w", ErrAllSourcesUnavailable, errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all sources unavailable")
		o.logger().ErrorContext(ctx, "no source produced output", "error", err)
		return run, err
	}

	run.Clusters = ReconcileAll(BuildClusters(findings, o.Match), o.Match)
	span.SetAttributes(
		attribute.Int("run.findings", len(findings)),
		attribute.Int("run.clusters", len(run.Clusters)),
		attribute.Bool("run.degraded", len(errs) > 0),
	)
	if len(errs) > 0 {
		o.logger().WarnContext(ctx, "review degraded", "unavailable", len(errs), "available", len(results)-len(errs))
	}
	o.logger().InfoContext(ctx, "review aggregated", "findings", len(findings), "clusters", len(run.Clusters))
	return run, nil
}

func validateSources(sources []SourceDescriptor) error {
	if len(sources) == 0 {
		return errors.New("at least one source is required")
	}
	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("source %d: empty id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Source == nil {
			return fmt.Errorf("source %s: no implementation", s.ID)
		}
	}
	return nil
}

func (o *Orchestrator) timeoutFor(d SourceDescriptor) time.Duration {
	switch {
	case d.Timeout > 0:
		return d.Timeout
	case o.DefaultTimeout > 0:
		return o.DefaultTimeout
	default:
		return DefaultSourceTimeout
	}
}

// runSource drives one source to a terminal outcome. It never panics and
// never blocks past the source's timeout.
func (o *Orchestrator) runSource(ctx context.Context, order int, d SourceDescriptor, in Input) SourceResult {
	res := SourceResult{SourceID: d.ID, Order: order}
	ctx = logger.WithSourceID(ctx, d.ID)
	ctx, span := tracer.Start(ctx, "review.source", trace.WithAttributes(
		attribute.String("source.id", d.ID),
	))
	defer span.End()

	timeout := o.timeoutFor(d)
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := invoke(tctx, d.Source, in)
	res.Duration = time.Since(start)

	switch {
	case err == nil && !usable(raw):
		res.Outcome = OutcomeFailed
		res.Err = &SourceError{SourceID: d.ID, Outcome: OutcomeFailed, Err: errors.New("unusable output")}
	case err == nil:
		res.Outcome = OutcomeSucceeded
	case ctx.Err() != nil:
		// Run-level cancellation: whatever the source was doing is discarded.
		res.Outcome = OutcomeFailed
		res.Err = &SourceError{SourceID: d.ID, Outcome: OutcomeFailed, Err: context.Cause(ctx)}
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimedOut
		res.Err = &SourceError{SourceID: d.ID, Outcome: OutcomeTimedOut,
			Err: fmt.Errorf("no output within %s: %w", timeout, context.DeadlineExceeded)}
	default:
		res.Outcome = OutcomeFailed
		res.Err = &SourceError{SourceID: d.ID, Outcome: OutcomeFailed, Err: err}
	}

	span.SetAttributes(attribute.String("source.outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Outcome))
		o.logger().WarnContext(ctx, "source unavailable", "outcome", res.Outcome, "error", res.Err, "duration", res.Duration)
		return res
	}

	n := Normalizer{SourceID: d.ID, Vocabulary: d.Vocabulary, ResidueLimit: d.ResidueLimit}
	norm := n.Normalize(raw)
	res.Raw = raw
	res.Findings = norm.Findings
	res.Residue = norm.Residue
	res.Warnings = norm.Warnings

	span.SetAttributes(
		attribute.Int("source.findings", len(res.Findings)),
		attribute.Float64("source.residue", res.Residue.Fraction()),
	)
	for _, w := range res.Warnings {
		o.logger().WarnContext(ctx, "source output partially parsed", "warning", w)
	}
	o.logger().DebugContext(ctx, "source settled", "findings", len(res.Findings), "duration", res.Duration)
	return res
}

type invokeResult struct {
	raw string
	err error
}

// invoke runs src in its own goroutine so a source that ignores ctx cannot
// hold the run past its deadline. Results arriving after ctx is done are
// dropped.
func invoke(ctx context.Context, src Source, in Input) (string, error) {
	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invokeResult{err: fmt.Errorf("source panicked: %v", p)}
			}
		}()
		raw, err := src.Invoke(ctx, in)
		done <- invokeResult{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return r.raw, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func usable(raw string) bool {
	return utf8.ValidString(raw) && !strings.ContainsRune(raw, 0)
}
