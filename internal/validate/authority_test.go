package validate

import (
	"testing"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/model"
)

func TestReputation_Tier(t *testing.T) {
	r := NewReputation(nil)

	tests := []struct {
		url      string
		expected model.SourceTier
		desc     string
	}{
		{"https://www.mofa.go.kr/eng/index.do", model.TierGood, "Korean government"},
		{"https://www.snu.ac.kr/news", model.TierGood, "Korean academic"},
		{"https://www.whitehouse.gov/briefing", model.TierGood, ".gov"},
		{"https://www.yna.co.kr/view/AKR2024", model.TierOK, ".co.kr media"},
		{"https://example.com/a", model.TierOK, ".com"},
		{"https://spam.info/a", model.TierLow, ".info"},
		{"https://example.de/a", model.TierUnknown, "no hint"},
		{"https://Example.COM:8443/a", model.TierOK, "port and case ignored"},
		{"::bad", model.TierUnknown, "unparseable"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := r.Tier(tt.url); got != tt.expected {
				t.Errorf("Expected %v for %s, got %v", tt.expected, tt.url, got)
			}
		})
	}
}

func TestReputation_Kind(t *testing.T) {
	r := NewReputation(nil)

	if got := r.Kind("https://www.korea.kr/news/policyNewsView.do"); got != model.KindGovernment {
		t.Errorf("Expected government, got %v", got)
	}
	if got := r.Kind("https://n.news.naver.com/article/001/0014"); got != model.KindMedia {
		t.Errorf("Expected media, got %v", got)
	}
	if got := r.Kind("https://blog.example.com/x"); got != model.KindOther {
		t.Errorf("Expected other, got %v", got)
	}
	// substring of a listed domain is not a match
	if got := r.Kind("https://notkorea.kr/x"); got != model.KindOther {
		t.Errorf("Expected other for lookalike host, got %v", got)
	}
}

func TestReputation_Score(t *testing.T) {
	r := NewReputation(nil)

	tests := []struct {
		url      string
		seed     bool
		expected float64
	}{
		{"https://www.korea.go.kr/a", true, 0.8},  // 0.4+0.4+0.05 clamped
		{"https://www.korea.go.kr/a", false, 0.45}, // 0.4+0.05
		{"http://www.yna.co.kr/a", false, 0.2},
		{"https://www.yna.co.kr/a", true, 0.65},
		{"http://spam.biz/a", false, -0.1},
		{"http://example.de/a", false, 0},
	}
	for _, tt := range tests {
		got := r.Score(tt.url, tt.seed)
		if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Score(%s, %v) = %v, want %v", tt.url, tt.seed, got, tt.expected)
		}
	}
}

func TestReputation_ScoreClampedLow(t *testing.T) {
	cfg := config.Default().Reputation
	cfg.LowPenalty = -1
	r := NewReputation(&cfg)

	if got := r.Score("http://spam.info/a", false); got != cfg.Min {
		t.Errorf("Expected clamp to %v, got %v", cfg.Min, got)
	}
}
