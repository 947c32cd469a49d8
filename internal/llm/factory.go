package llm

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/nli"
)

// NewEmbedder creates the embedder selected by config
func NewEmbedder(config Config) (embed.Embedder, error) {
	switch strings.ToLower(config.Provider) {
	case "tei":
		return NewTEIProvider(config)
	case "openai":
		return NewOpenAIProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "hash":
		return embed.NewHashEmbedder(config.Dimensions), nil
	case "":
		return nil, eris.New("llm: no embedder provider configured")
	default:
		return nil, eris.Errorf("llm: unknown embedder provider: %s (supported: tei, openai, ollama, hash)", config.Provider)
	}
}

// NewClassifier creates the NLI classifier selected by config
func NewClassifier(config Config) (nli.Classifier, error) {
	switch strings.ToLower(config.Provider) {
	case "tei":
		return NewTEIProvider(config)
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "lexical":
		return nli.LexicalClassifier{}, nil
	case "":
		return nil, eris.New("llm: no NLI provider configured")
	default:
		return nil, eris.Errorf("llm: unknown NLI provider: %s (supported: tei, openai, anthropic, ollama, lexical)", config.Provider)
	}
}
