package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// Reputation classifies hosts into reputation tiers and source kinds, and
// computes the additive source reputation weight of an evidence URL
type Reputation struct {
	cfg config.ReputationConfig
}

// NewReputation creates a classifier. A nil config uses the defaults.
func NewReputation(cfg *config.ReputationConfig) *Reputation {
	if cfg == nil {
		cfg = &config.Default().Reputation
	}
	return &Reputation{cfg: *cfg}
}

// Tier returns the reputation tier of a URL's host
func (r *Reputation) Tier(rawURL string) model.SourceTier {
	host := hostOf(rawURL)
	if host == "" {
		return model.TierUnknown
	}

	switch {
	case hasAnySuffix(host, r.cfg.GoodSuffixes):
		return model.TierGood
	case hasAnySuffix(host, r.cfg.OKSuffixes):
		return model.TierOK
	case hasAnySuffix(host, r.cfg.LowSuffixes):
		return model.TierLow
	}
	return model.TierUnknown
}

// Kind classifies a URL's host as government, media or other
func (r *Reputation) Kind(rawURL string) model.SourceKind {
	host := hostOf(rawURL)
	if host == "" {
		return model.KindOther
	}
	if hasAnySuffix(host, r.cfg.GovernmentDomains) {
		return model.KindGovernment
	}
	if hasAnySuffix(host, r.cfg.MediaDomains) {
		return model.KindMedia
	}
	return model.KindOther
}

// Score is the source reputation weight: seed bonus, tier bonus and an
// https bonus, clamped to [Min, Max]
func (r *Reputation) Score(rawURL string, fromSeed bool) float64 {
	s := 0.0
	if fromSeed {
		s += r.cfg.SeedBonus
	}
	switch r.Tier(rawURL) {
	case model.TierGood:
		s += r.cfg.GoodBonus
	case model.TierOK:
		s += r.cfg.OKBonus
	case model.TierLow:
		s += r.cfg.LowPenalty
	}
	if util.IsHTTPS(rawURL) {
		s += r.cfg.HTTPSBonus
	}
	return min(r.cfg.Max, max(r.cfg.Min, s))
}

// hostOf returns the lowercased host without port
func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func hasAnySuffix(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if util.HasDomainSuffix(host, s) {
			return true
		}
	}
	return false
}
