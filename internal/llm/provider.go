package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/nli"
	"github.com/ppiankov/veriscope/internal/util"
)

// Config holds model provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "tei", "hash", "lexical"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens bounds generated judgements
	MaxTokens int

	// Dimensions requested from embedding endpoints that support it
	Dimensions int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFrom converts the application provider config
func ConfigFrom(p config.ProviderConfig, h config.HTTPConfig) Config {
	return Config{
		Provider:   p.Provider,
		Model:      p.Model,
		APIKey:     p.APIKey,
		BaseURL:    p.BaseURL,
		Timeout:    p.TimeoutSecs,
		MaxTokens:  200,
		HTTPProxy:  h.HTTPProxy,
		HTTPSProxy: h.HTTPSProxy,
		NoProxy:    h.NoProxy,
	}
}

func (c Config) timeout(def time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return def
}

func newHTTPClient(c Config, def time.Duration) *http.Client {
	return &http.Client{
		Timeout: c.timeout(def),
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(c.HTTPProxy, c.HTTPSProxy, c.NoProxy),
		},
	}
}

// postJSON sends body as JSON and decodes a 200 response into out.
// Non-200 responses become errors carrying the status and body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "llm: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return eris.Wrap(err, "llm: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "llm: execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "llm: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("llm: API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "llm: unmarshal response")
	}
	return nil
}

const judgeSystem = "You are a natural language inference classifier. " +
	"Given a PREMISE and a HYPOTHESIS, estimate how likely the premise entails, " +
	"contradicts, or is neutral towards the hypothesis. " +
	`Answer with JSON only: {"contradiction": p, "neutral": p, "entailment": p} where the three probabilities sum to 1.`

// BuildJudgePrompt formats one pair for a chat model acting as an NLI classifier
func BuildJudgePrompt(p nli.Pair) string {
	return fmt.Sprintf("PREMISE:\n%s\n\nHYPOTHESIS:\n%s", p.Premise, p.Hypothesis)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJudgement extracts probabilities from a chat model reply. Replies
// wrapped in prose or code fences are accepted.
func ParseJudgement(reply string) (nli.Probs, error) {
	obj := jsonObject.FindString(reply)
	if obj == "" {
		return nli.Probs{}, eris.Errorf("llm: no JSON in judgement %q", util.Truncate(reply, 80))
	}

	var raw struct {
		Contradiction *float64 `json:"contradiction"`
		Neutral       *float64 `json:"neutral"`
		Entailment    *float64 `json:"entailment"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nli.Probs{}, eris.Wrap(err, "llm: parse judgement")
	}
	if raw.Contradiction == nil || raw.Neutral == nil || raw.Entailment == nil {
		return nli.Probs{}, eris.New("llm: judgement missing a label")
	}
	return nli.Renormalize(nli.Probs{
		Contradiction: *raw.Contradiction,
		Neutral:       *raw.Neutral,
		Entailment:    *raw.Entailment,
	}), nil
}
