package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.65, cfg.Weights.Similarity)
	assert.Equal(t, 0.35, cfg.Weights.Support)
	assert.Equal(t, 0.50, cfg.Weights.Contradiction)
	assert.Equal(t, 0.0025, cfg.Weights.TimeLambda)
	assert.Equal(t, 500, cfg.Retrieval.TopK)
	assert.Equal(t, 10, cfg.Retrieval.TopN)
	assert.Equal(t, 0.35, cfg.Retrieval.SimilarityFloor)
	assert.Equal(t, 80, cfg.Bands.VeryHigh)
	assert.Equal(t, 35, cfg.Bands.Low)
	assert.Equal(t, 4, cfg.Index.ChunkWindow)
	assert.Equal(t, 3, cfg.Index.ChunkStep)
	assert.Equal(t, "tei", cfg.NLI.Provider)
	assert.Equal(t, 16, cfg.NLI.BatchSize)
	assert.Contains(t, cfg.HTTP.Shorteners, "naver.me")
	assert.Contains(t, cfg.Language.LocalDomains, "hani.co.kr")
	assert.True(t, cfg.Crawl.RespectRobots)

	sum := cfg.Aggregate.Consistency + cfg.Aggregate.Diversity + cfg.Aggregate.Temporal + cfg.Aggregate.Quality
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veriscope.yaml")
	content := `
retrieval:
  top_n: 5
  similarity_floor: 0.4
weights:
  similarity: 0.7
nli:
  provider: openai
  model: gpt-4o-mini
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retrieval.TopN)
	assert.Equal(t, 0.4, cfg.Retrieval.SimilarityFloor)
	assert.Equal(t, 0.7, cfg.Weights.Similarity)
	// untouched keys keep defaults
	assert.Equal(t, 0.35, cfg.Weights.Support)
	assert.Equal(t, "openai", cfg.NLI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.NLI.Model)
	assert.Equal(t, "sk-test", cfg.NLI.APIKey)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VERISCOPE_RETRIEVAL_TOP_K", "42")
	t.Setenv("VERISCOPE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Retrieval.TopK)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
