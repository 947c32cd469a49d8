package llm

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/nli"
)

// OllamaProvider serves embeddings and NLI judgements from a local Ollama
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	dim        atomic.Int64
}

type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if config.Model == "" {
		return nil, eris.New("llm: ollama model must be specified (e.g., bge-m3, llama3.1:8b)")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config, 120*time.Second),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string { return "ollama" }

// Model returns the configured model
func (p *OllamaProvider) Model() string { return p.config.Model }

// Dimensions returns the embedding width, learned from the first response
func (p *OllamaProvider) Dimensions() int { return int(p.dim.Load()) }

// Encode embeds texts with /api/embed
func (p *OllamaProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: p.config.Model, Input: texts, Truncate: true}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/embed", nil, req, &resp); err != nil {
		return nil, eris.Wrap(err, "llm: ollama embed")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, eris.Errorf("llm: ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	if len(resp.Embeddings[0]) > 0 {
		p.dim.Store(int64(len(resp.Embeddings[0])))
	}
	return resp.Embeddings, nil
}

// Classify asks the chat model for one JSON judgement per pair
func (p *OllamaProvider) Classify(ctx context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	out := make([]nli.Probs, len(pairs))
	for i, pair := range pairs {
		req := ollamaChatRequest{
			Model: p.config.Model,
			Messages: []ollamaMessage{
				{Role: "system", Content: judgeSystem},
				{Role: "user", Content: BuildJudgePrompt(pair)},
			},
			Format:  "json",
			Options: ollamaOptions{Temperature: 0, NumPredict: p.config.MaxTokens},
		}
		var resp ollamaChatResponse
		if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/chat", nil, req, &resp); err != nil {
			return nil, eris.Wrap(err, "llm: ollama chat")
		}
		probs, err := ParseJudgement(resp.Message.Content)
		if err != nil {
			return nil, err
		}
		out[i] = probs
	}
	return out, nil
}
