package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/ylongwang2782/embedded-review/internal/config"
	"github.com/ylongwang2782/embedded-review/internal/providers"
	"github.com/ylongwang2782/embedded-review/internal/review"
)

// ReviewerFactory constructs a provider client by name.
type ReviewerFactory func(provider string, opts providers.Options) (providers.Reviewer, error)

// Builder turns source profiles into orchestrator descriptors.
type Builder struct {
	// NewReviewer defaults to providers.New.
	NewReviewer ReviewerFactory
	// ResidueLimit applies to profiles that do not set their own.
	ResidueLimit float64
}

// Build creates one descriptor per profile. A provider whose credentials are
// missing still yields a descriptor; it fails at run time and is reported as
// unavailable. Any other profile error aborts the build.
func (b Builder) Build(profiles []config.SourceProfile) ([]review.SourceDescriptor, error) {
	newReviewer := b.NewReviewer
	if newReviewer == nil {
		newReviewer = providers.New
	}

	var (
		out  []review.SourceDescriptor
		errs []error
	)
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		vocab, err := vocabulary(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		src, err := b.source(p, newReviewer)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID, err))
			continue
		}
		limit := p.ResidueLimit
		if limit == 0 {
			limit = b.ResidueLimit
		}
		out = append(out, review.SourceDescriptor{
			ID:           p.ID,
			Source:       src,
			Timeout:      time.Duration(p.Timeout),
			Vocabulary:   vocab,
			ResidueLimit: limit,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Build uses a default Builder.
func Build(profiles []config.SourceProfile) ([]review.SourceDescriptor, error) {
	return Builder{}.Build(profiles)
}

func (b Builder) source(p config.SourceProfile, newReviewer ReviewerFactory) (review.Source, error) {
	if p.Kind == config.KindCommand {
		return &Command{
			Path:  p.Command,
			Args:  p.Args,
			Input: p.Input,
			Env:   p.Env,
			Dir:   p.Dir,
		}, nil
	}
	r, err := newReviewer(p.Provider, providers.Options{
		Model:     p.Model,
		BaseURL:   p.BaseURL,
		APIKeyEnv: p.APIKeyEnv,
	})
	if providers.IsAuthError(err) {
		return unavailable{err: err}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Provider{Reviewer: r, MaxTokens: p.MaxTokens}, nil
}

// vocabulary returns the zero Vocabulary (the default table) unless the
// profile overrides severity words or no-issue tokens.
func vocabulary(p config.SourceProfile) (review.Vocabulary, error) {
	if len(p.Severity) == 0 && p.NoIssue == nil {
		return review.Vocabulary{}, nil
	}
	table := p.Severity
	if len(table) == 0 {
		table = review.DefaultSeverityTable()
	}
	return review.NewVocabulary(table, p.NoIssue)
}
