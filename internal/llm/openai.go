package llm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/veriscope/internal/nli"
)

// OpenAIProvider serves embeddings and chat-based NLI judgements from any
// OpenAI-compatible endpoint
type OpenAIProvider struct {
	client *openai.Client
	config Config
	dim    atomic.Int64
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, eris.New("llm: OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config, 60*time.Second)

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
	p.dim.Store(int64(config.Dimensions))
	return p, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// Model returns the configured model
func (p *OpenAIProvider) Model() string { return p.config.Model }

// Dimensions returns the embedding width, learned from the first response
func (p *OpenAIProvider) Dimensions() int { return int(p.dim.Load()) }

// Encode embeds texts with the embeddings endpoint
func (p *OpenAIProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.config.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	if p.config.Dimensions > 0 {
		req.Dimensions = p.config.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "llm: openai embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, eris.Errorf("llm: openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, eris.Errorf("llm: openai embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if len(out[0]) > 0 {
		p.dim.Store(int64(len(out[0])))
	}
	return out, nil
}

// Classify asks the chat model for one judgement per pair
func (p *OpenAIProvider) Classify(ctx context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	out := make([]nli.Probs, len(pairs))
	for i, pair := range pairs {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: judgeSystem},
				{Role: openai.ChatMessageRoleUser, Content: BuildJudgePrompt(pair)},
			},
			MaxTokens:      maxTokens,
			Temperature:    0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err != nil {
			return nil, eris.Wrap(err, "llm: openai chat")
		}
		if len(resp.Choices) == 0 {
			return nil, eris.New("llm: no response from OpenAI")
		}
		probs, err := ParseJudgement(resp.Choices[0].Message.Content)
		if err != nil {
			return nil, err
		}
		out[i] = probs
	}
	return out, nil
}
