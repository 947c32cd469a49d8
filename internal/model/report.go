package model

import "time"

// Report is the complete credibility evaluation of one query
type Report struct {
	ID          string    `json:"id"`
	Query       QueryInfo `json:"query"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	Score    Score      `json:"score"`
	Evidence []Evidence `json:"evidence"`

	// NoEvidence is set when no candidate survived fusion and dedup.
	// It is a valid outcome, not an error.
	NoEvidence bool `json:"no_evidence"`

	Retrieval RetrievalInfo `json:"retrieval"`
	Index     IndexInfo     `json:"index"`

	// Appended is true when the query article was added to the index afterwards
	Appended bool `json:"appended,omitempty"`
}

// QueryInfo describes the evaluated input
type QueryInfo struct {
	URL       string      `json:"url,omitempty"`
	Title     string      `json:"title,omitempty"`
	Source    QuerySource `json:"source"`
	Chars     int         `json:"chars"`
	Chunks    int         `json:"chunks"`
	Published *time.Time  `json:"published,omitempty"`
	Year      int         `json:"year,omitempty"` // Detected publish year, 0 if unknown
}

// RetrievalInfo records what the retriever did for this query
type RetrievalInfo struct {
	Floor         float64  `json:"similarity_floor"`
	FinalFloor    float64  `json:"final_score_floor"`
	Candidates    int      `json:"candidates"`
	KeywordSearch bool     `json:"keyword_search"`
	Keywords      []string `json:"keywords,omitempty"`
	Dropped       int      `json:"dropped_model_failures,omitempty"`
	Fused         int      `json:"fused"`
}

// IndexInfo identifies the snapshot used for the evaluation
type IndexInfo struct {
	Model string `json:"model"`
	Rows  int    `json:"rows"`
}

// Score is the aggregated reliability with its transparent breakdown
type Score struct {
	Percent        int      `json:"reliability_score"` // 0-100
	Level          Band     `json:"reliability_level"`
	Recommendation string   `json:"recommendation"`
	Factors        Factors  `json:"factors"`
	Signals        []Signal `json:"signals"`
}

// Factors are the four aggregate dimensions plus fake-pattern penalties
type Factors struct {
	ContentConsistency float64 `json:"content_consistency"`
	SourceDiversity    float64 `json:"source_diversity"`
	TemporalRelevance  float64 `json:"temporal_relevance"`
	EvidenceQuality    float64 `json:"evidence_quality"`

	PatternScore   float64 `json:"pattern_score"`
	QualityPenalty float64 `json:"quality_penalty"`
	GlobalPenalty  float64 `json:"global_penalty"`
}

// Band is the qualitative trust level for a percent score
type Band string

const (
	BandVeryHigh Band = "very_high"
	BandHigh     Band = "high"
	BandModerate Band = "moderate"
	BandLow      Band = "low"
	BandVeryLow  Band = "very_low"
)

// Label returns a human-readable band name
func (b Band) Label() string {
	switch b {
	case BandVeryHigh:
		return "Very high"
	case BandHigh:
		return "High"
	case BandModerate:
		return "Moderate"
	case BandLow:
		return "Low"
	case BandVeryLow:
		return "Very low"
	default:
		return "Unknown"
	}
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"` // Formulas and inputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalContentConsistency SignalType = "content_consistency"
	SignalSourceDiversity    SignalType = "source_diversity"
	SignalTemporalRelevance  SignalType = "temporal_relevance"
	SignalEvidenceQuality    SignalType = "evidence_quality"
	SignalFakePattern        SignalType = "fake_pattern"
	SignalKeywordFallback    SignalType = "keyword_fallback"
	SignalNoEvidence         SignalType = "no_evidence"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
