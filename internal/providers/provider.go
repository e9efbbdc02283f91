package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ReviewRequest contains the data sent to an LLM for review.
type ReviewRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// ReviewResponse contains the raw response from an LLM.
type ReviewResponse struct {
	Content    string
	TokensUsed int
}

// Reviewer is the provider abstraction interface.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
	Name() string
}

// Options configures a provider client. Zero fields take the provider's
// defaults.
type Options struct {
	Model string
	// BaseURL overrides the chat endpoint.
	BaseURL string
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv  string
	Timeout    time.Duration
	MaxRetries int
}

const (
	defaultHTTPTimeout = 120 * time.Second
	defaultMaxRetries  = 3
)

func (o Options) httpTimeout(def time.Duration) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return def
}

func (o Options) retries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return defaultMaxRetries
}

// New creates a provider by name. Gemini, Ollama and LM Studio are reached
// through their OpenAI-compatible endpoints.
func New(provider string, opts Options) (Reviewer, error) {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return NewAnthropic(opts)
	case "openai":
		return NewOpenAI(opts)
	case "gemini", "google":
		return newCompatible("gemini", geminiCompatURL, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, true, opts)
	case "ollama":
		return newCompatible("ollama", localURL("OLLAMA_HOST", defaultOllamaURL), []string{"EMBREVIEW_OLLAMA_API_KEY"}, false, opts)
	case "lmstudio":
		return newCompatible("lmstudio", localURL("LMSTUDIO_HOST", defaultLMStudioURL), []string{"EMBREVIEW_LMSTUDIO_API_KEY"}, false, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// apiKey resolves the key from opts.APIKeyEnv or the first set fallback.
func apiKey(opts Options, fallbacks ...string) (string, string) {
	names := fallbacks
	if opts.APIKeyEnv != "" {
		names = []string{opts.APIKeyEnv}
	}
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v, n
		}
	}
	if len(names) > 1 {
		return "", fmt.Sprintf("%s (or %s)", names[0], strings.Join(names[1:], ", "))
	}
	return "", strings.Join(names, "")
}
