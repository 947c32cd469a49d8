// Package chunk splits article text into overlapping sentence windows.
package chunk

import (
	"strings"
	"unicode"

	"github.com/ppiankov/veriscope/internal/util"
)

// Config controls the sliding window
type Config struct {
	Window int // sentences per chunk
	Step   int // sentence stride
	MinLen int // minimum chunk length in characters
}

// DefaultConfig returns the indexing defaults
func DefaultConfig() Config {
	return Config{Window: 4, Step: 3, MinLen: 200}
}

// Option adjusts a Config
type Option func(*Config)

// WithWindow sets the number of sentences per chunk
func WithWindow(n int) Option {
	return func(c *Config) { c.Window = n }
}

// WithStep sets the sentence stride
func WithStep(n int) Option {
	return func(c *Config) { c.Step = n }
}

// WithMinLen sets the character floor
func WithMinLen(n int) Option {
	return func(c *Config) { c.MinLen = n }
}

// Chunker produces sentence-aligned chunks. It is stateless and safe for
// concurrent use.
type Chunker struct {
	config Config
}

// New creates a chunker from the defaults and the given options
func New(opts ...Option) *Chunker {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	if cfg.Step < 1 {
		cfg.Step = 1
	}
	return &Chunker{config: cfg}
}

// Config returns the effective configuration
func (c *Chunker) Config() Config {
	return c.config
}

// Chunk slides a window of sentences over text and keeps every block that
// reaches the minimum length. When no block qualifies but the whole text
// does, the whole (normalized) text is the single chunk.
func (c *Chunker) Chunk(text string) []string {
	sents := SplitSentences(text)

	var chunks []string
	for i := 0; i < len(sents); i += c.config.Step {
		end := i + c.config.Window
		if end > len(sents) {
			end = len(sents)
		}
		block := util.NormalizeSpace(strings.Join(sents[i:end], " "))
		if util.RuneLen(block) >= c.config.MinLen {
			chunks = append(chunks, block)
		}
	}

	if len(chunks) == 0 {
		whole := util.NormalizeSpace(text)
		if whole != "" && util.RuneLen(whole) >= c.config.MinLen {
			chunks = []string{whole}
		}
	}
	return chunks
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences breaks text at whitespace that follows terminal
// punctuation. The punctuation stays with its sentence and empty pieces are
// dropped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if unicode.IsSpace(r) && isTerminal(prev) {
			if s := strings.TrimSpace(string(runes[start:i])); s != "" {
				out = append(out, s)
			}
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
			start = i + 1
		}
		prev = r
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summarize returns the first maxSents normalized sentences of text, or its
// first 500 characters when it has no sentences.
func Summarize(text string, maxSents int) string {
	var sents []string
	for _, s := range SplitSentences(text) {
		if n := util.NormalizeSpace(s); n != "" {
			sents = append(sents, n)
		}
	}
	if len(sents) == 0 {
		return util.Truncate(text, 500)
	}
	if maxSents > 0 && len(sents) > maxSents {
		sents = sents[:maxSents]
	}
	return strings.Join(sents, " ")
}
