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

// TEIProvider talks to a text-embeddings-inference server, which hosts both
// sentence embedders (/embed) and sequence-pair classifiers (/predict)
type TEIProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	dim        atomic.Int64
}

type teiEmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate"`
	Normalize bool     `json:"normalize"`
}

type teiPredictRequest struct {
	Inputs    [][2]string `json:"inputs"`
	Truncate  bool        `json:"truncate"`
	RawScores bool        `json:"raw_scores"`
}

type teiLabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewTEIProvider creates a provider for a TEI server
func NewTEIProvider(config Config) (*TEIProvider, error) {
	if config.BaseURL == "" {
		return nil, eris.New("llm: tei base_url is required")
	}
	return &TEIProvider{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: newHTTPClient(config, 60*time.Second),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *TEIProvider) Name() string { return "tei" }

// Model returns the configured model
func (p *TEIProvider) Model() string { return p.config.Model }

// Dimensions returns the embedding width, learned from the first response
func (p *TEIProvider) Dimensions() int { return int(p.dim.Load()) }

func (p *TEIProvider) headers() map[string]string {
	if p.config.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.config.APIKey}
}

// Encode embeds texts with /embed
func (p *TEIProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	req := teiEmbedRequest{Inputs: texts, Truncate: true, Normalize: true}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/embed", p.headers(), req, &out); err != nil {
		return nil, eris.Wrap(err, "llm: tei embed")
	}
	if len(out) != len(texts) {
		return nil, eris.Errorf("llm: tei returned %d embeddings for %d texts", len(out), len(texts))
	}
	if len(out[0]) > 0 {
		p.dim.Store(int64(len(out[0])))
	}
	return out, nil
}

// Classify scores all pairs in one /predict call
func (p *TEIProvider) Classify(ctx context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make([][2]string, len(pairs))
	for i, pair := range pairs {
		inputs[i] = [2]string{pair.Premise, pair.Hypothesis}
	}

	var resp [][]teiLabelScore
	req := teiPredictRequest{Inputs: inputs, Truncate: true}
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/predict", p.headers(), req, &resp); err != nil {
		return nil, eris.Wrap(err, "llm: tei predict")
	}
	if len(resp) != len(pairs) {
		return nil, eris.Errorf("llm: tei returned %d predictions for %d pairs", len(resp), len(pairs))
	}

	out := make([]nli.Probs, len(resp))
	for i, scores := range resp {
		probs, err := probsFromLabels(scores)
		if err != nil {
			return nil, err
		}
		out[i] = probs
	}
	return out, nil
}

// probsFromLabels maps classifier labels onto the three NLI classes.
// Label names differ between checkpoints, so matching is by stem.
func probsFromLabels(scores []teiLabelScore) (nli.Probs, error) {
	var (
		p    nli.Probs
		seen int
	)
	for _, s := range scores {
		switch l := strings.ToLower(s.Label); {
		case strings.HasPrefix(l, "contra"):
			p.Contradiction = s.Score
			seen++
		case strings.HasPrefix(l, "neutral"):
			p.Neutral = s.Score
			seen++
		case strings.HasPrefix(l, "entail"):
			p.Entailment = s.Score
			seen++
		}
	}
	if seen != 3 {
		return nli.Probs{}, eris.Errorf("llm: classifier labels %v are not contradiction/neutral/entailment", scores)
	}
	return nli.Renormalize(p), nil
}
