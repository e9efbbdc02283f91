package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	geminiCompatURL    = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	defaultOllamaURL   = "http://localhost:11434"
	defaultLMStudioURL = "http://localhost:1234"
	defaultOpenAIModel = "gpt-4o"
	localHTTPTimeout   = 300 * time.Second
)

// OpenAI implements the Reviewer interface for OpenAI's chat completions API
// and every server speaking the same protocol.
type OpenAI struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewOpenAI creates a new OpenAI provider. EMBREVIEW_OPENAI_BASE_URL
// redirects it to a compatible gateway.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = os.Getenv("EMBREVIEW_OPENAI_BASE_URL")
	}
	return newCompatible("openai", defaultOpenAIURL, []string{"OPENAI_API_KEY"}, true, opts)
}

func newCompatible(name, defaultURL string, keyEnvs []string, keyRequired bool, opts Options) (*OpenAI, error) {
	key, env := apiKey(opts, keyEnvs...)
	if key == "" && keyRequired {
		return nil, &authError{message: env + " environment variable is not set"}
	}
	o := &OpenAI{
		name:       name,
		apiKey:     key,
		model:      opts.Model,
		baseURL:    opts.BaseURL,
		maxRetries: opts.retries(),
	}
	if o.baseURL == "" {
		o.baseURL = defaultURL
	}
	timeout := defaultHTTPTimeout
	if !keyRequired {
		timeout = localHTTPTimeout
	}
	o.client = &http.Client{Timeout: opts.httpTimeout(timeout)}
	if o.model == "" && name == "openai" {
		o.model = defaultOpenAIModel
	}
	if o.model == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}
	return o, nil
}

// localURL resolves a local server's chat endpoint from env, accepting a
// bare host, a /v1 prefix or the full path.
func localURL(env, def string) string {
	base := os.Getenv(env)
	if base == "" {
		base = def
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1/chat/completions")
	base = strings.TrimSuffix(base, "/v1")
	return base + "/v1/chat/completions"
}

func (o *OpenAI) Name() string {
	if o.name == "" {
		return "openai"
	}
	return o.name
}

func (o *OpenAI) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	messages := []openaiMessage{
		{Role: "system", Content: req.SystemPrompt},
		{Role: "user", Content: req.UserPrompt},
	}

	body := openaiRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		}

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if err := classifyStatus(httpResp.StatusCode, respBody); err != nil {
			return err
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if len(result.Choices) == 0 {
			return errors.New("no choices in response")
		}
		if result.Choices[0].Message.Content == "" {
			return errors.New("empty text content in API response")
		}

		resp = ReviewResponse{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})

	return resp, err
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
