package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/nli"
)

// AnthropicProvider produces NLI judgements with the Messages API. It has
// no embedding endpoint.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: Anthropic API key is required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config, 30*time.Second),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model returns the configured model
func (p *AnthropicProvider) Model() string { return p.config.Model }

// Classify asks the model for one JSON judgement per pair
func (p *AnthropicProvider) Classify(ctx context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	model := p.config.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}

	out := make([]nli.Probs, len(pairs))
	for i, pair := range pairs {
		req := anthropicRequest{
			Model:     model,
			MaxTokens: maxTokens,
			System:    judgeSystem,
			Messages:  []anthropicMessage{{Role: "user", Content: BuildJudgePrompt(pair)}},
		}
		var resp anthropicResponse
		if err := postJSON(ctx, p.httpClient, p.baseURL+"/v1/messages", headers, req, &resp); err != nil {
			return nil, eris.Wrap(err, "llm: anthropic messages")
		}
		if len(resp.Content) == 0 {
			return nil, eris.New("llm: no content in Anthropic response")
		}
		probs, err := ParseJudgement(resp.Content[0].Text)
		if err != nil {
			return nil, err
		}
		out[i] = probs
	}
	return out, nil
}
