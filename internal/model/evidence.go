package model

import "time"

// DocRecord is one indexed chunk. Records are never mutated once inserted.
type DocRecord struct {
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Chunk     string     `json:"chunk"`
	Domain    string     `json:"domain"`    // Lowercased host of URL
	FromSeed  bool       `json:"from_seed"` // false for chunks added during evaluation
}

// EvidenceCandidate is one scored index row for a single evaluation
type EvidenceCandidate struct {
	RecordIndex   int     `json:"record_index"`
	Similarity    float64 `json:"similarity"`
	Support       float64 `json:"support"`       // NLI entailment probability
	Contradiction float64 `json:"contradiction"` // NLI contradiction probability
	Relevance     float64 `json:"relevance"`     // Keyword-overlap multiplier in (0,1]
	Score         float64 `json:"score"`         // Fused score, used for ranking and as a logit
	Fallback      bool    `json:"fallback,omitempty"`
}

// Evidence is one kept evidence item as shown in a report
type Evidence struct {
	Rank          int        `json:"rank"`
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	Domain        string     `json:"domain"`
	Published     *time.Time `json:"published,omitempty"`
	Similarity    float64    `json:"similarity"`
	Support       float64    `json:"support"`
	Contradiction float64    `json:"contradiction"`
	Score         float64    `json:"score"`
	Percent       int        `json:"percent"` // round(100 * sigmoid(score))
	Snippet       string     `json:"snippet,omitempty"`
	Fallback      bool       `json:"fallback,omitempty"`
}

// SourceTier is the reputation class of a host
type SourceTier int

const (
	TierUnknown SourceTier = 0 // No suffix hint matched
	TierGood    SourceTier = 1 // Government and education hosts
	TierOK      SourceTier = 2 // Commercial and organisation hosts
	TierLow     SourceTier = 3 // Low-trust TLDs
)

func (t SourceTier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierOK:
		return "ok"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// SourceKind classifies a host for source-balance purposes
type SourceKind string

const (
	KindOther      SourceKind = "other"
	KindGovernment SourceKind = "government"
	KindMedia      SourceKind = "media"
)
