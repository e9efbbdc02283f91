package source

import (
	"context"
	"fmt"

	"github.com/ylongwang2782/embedded-review/internal/providers"
	"github.com/ylongwang2782/embedded-review/internal/review"
)

// Provider is a source backed by an LLM provider.
type Provider struct {
	Reviewer  providers.Reviewer
	MaxTokens int
}

// Invoke renders the review prompt for in and returns the model's reply.
func (p *Provider) Invoke(ctx context.Context, in review.Input) (string, error) {
	system, user := review.BuildPrompt(in)
	resp, err := p.Reviewer.Review(ctx, providers.ReviewRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Reviewer.Name(), err)
	}
	return resp.Content, nil
}

// unavailable is a source that could not be constructed. It fails every run
// with the construction error so the report discloses it.
type unavailable struct {
	err error
}

func (u unavailable) Invoke(context.Context, review.Input) (string, error) {
	return "", u.err
}
