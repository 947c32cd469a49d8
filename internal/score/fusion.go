// Package score turns retrieved candidates into ranked evidence and a
// reliability score. Every function here is pure; the Engine only carries
// configuration and a clock.
package score

import (
	"math"
	"time"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
	"github.com/ppiankov/veriscope/internal/validate"
)

// Engine fuses and aggregates evidence scores
type Engine struct {
	cfg        *config.Config
	reputation *validate.Reputation
	now        func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithClock overrides the time source used for recency weights
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a scoring engine. A nil config uses the defaults.
func NewEngine(cfg *config.Config, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:        cfg,
		reputation: validate.NewReputation(&cfg.Reputation),
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reputation returns the source reputation classifier
func (e *Engine) Reputation() *validate.Reputation {
	return e.reputation
}

// Query is what the engine needs to know about the evaluated article
type Query struct {
	URL       string // empty for text queries
	Title     string
	Text      string // cleaned query text
	Raw       string // extracted text before cleaning, scanned for patterns
	Published *time.Time
	Floor     float64 // similarity floor in effect
	MinFinal  float64 // final score floor in effect
}

// Candidate is one retrieved record with its NLI probabilities. Fuse fills
// Score and Relevance.
type Candidate struct {
	model.EvidenceCandidate
	Record model.DocRecord
}

// FuseStats counts why candidates were dropped
type FuseStats struct {
	In          int `json:"in"`
	BelowFloor  int `json:"below_floor"`
	LowSupport  int `json:"low_support"`
	Foreign     int `json:"foreign"`
	Self        int `json:"self"`
	NoOverlap   int `json:"no_overlap"`
	BelowFinal  int `json:"below_final"`
	FallbackCap int `json:"fallback_capped"`
	Out         int `json:"out"`
}

// FinalFloor returns the final score floor for a query of queryLen runes.
// Short queries get a lower floor.
func FinalFloor(queryLen int, base float64) float64 {
	if queryLen < 100 {
		return math.Max(0.15, base*0.5)
	}
	return base
}

// Fuse applies the pre-filters, computes the fused score of every surviving
// candidate and applies the final floor. Input order is preserved.
func (e *Engine) Fuse(q Query, cands []Candidate) ([]Candidate, FuseStats) {
	w := e.cfg.Weights
	r := e.cfg.Retrieval
	now := e.now()

	stats := FuseStats{In: len(cands)}
	self := ""
	if q.URL != "" {
		self = util.CanonicalURL(q.URL)
	}
	keywords := Keywords(q.Text)
	queryTokens := Tokens(q.Text)
	queryHangul := util.HangulRatio(q.Text)

	var out []Candidate
	for _, c := range cands {
		rec := c.Record

		if self != "" && util.CanonicalURL(rec.URL) == self {
			stats.Self++
			continue
		}
		if !c.Fallback && c.Similarity < q.Floor {
			stats.BelowFloor++
			continue
		}
		if c.Support < r.MinSupport {
			stats.LowSupport++
			continue
		}

		simFactor, ok := ForeignGate(e.cfg.Language, queryHangul, rec.Domain, rec.Chunk)
		if !ok {
			stats.Foreign++
			continue
		}
		c.Similarity *= simFactor

		relevance, _, ok := ContentRelevance(keywords, queryTokens, rec.Chunk)
		if !ok {
			stats.NoOverlap++
			continue
		}
		c.Relevance = relevance

		score := w.Similarity*c.Similarity +
			w.Support*c.Support -
			w.Contradiction*c.Contradiction +
			w.Time*TimeWeight(rec.Published, now, w.TimeLambda) +
			w.Source*e.reputation.Score(rec.URL, rec.FromSeed) +
			w.Language*LanguageAlignment(queryHangul, rec.Chunk, e.cfg.Language.AlignThreshold)
		score *= relevance

		if c.Fallback && score > r.FallbackScoreCap {
			score = r.FallbackScoreCap
			stats.FallbackCap++
		}
		if score < q.MinFinal {
			stats.BelowFinal++
			continue
		}
		c.Score = score
		out = append(out, c)
	}
	stats.Out = len(out)
	return out, stats
}
