package score

import (
	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/model"
)

// NoEvidenceRecommendation is returned when nothing in the index backs the query
const NoEvidenceRecommendation = "No supporting evidence was found in the index. Verify this claim through official government announcements or other authoritative sources."

var recommendations = map[model.Band]string{
	model.BandVeryHigh: "This article looks reliable. Multiple sources report consistent information.",
	model.BandHigh:     "This article is mostly reliable, but further verification is recommended.",
	model.BandModerate: "Review this article carefully and cross-check it against other sources.",
	model.BandLow:      "Reliability is low and misreporting is suspected. Check official announcements or authoritative sources.",
	model.BandVeryLow:  "This article is hard to trust and is likely to contain false information.",
}

// BandFor maps a percent score onto its decision band
func BandFor(percent int, cuts config.BandsConfig) model.Band {
	switch {
	case percent >= cuts.VeryHigh:
		return model.BandVeryHigh
	case percent >= cuts.High:
		return model.BandHigh
	case percent >= cuts.Moderate:
		return model.BandModerate
	case percent >= cuts.Low:
		return model.BandLow
	}
	return model.BandVeryLow
}

// Recommendation returns the canned advice for a band
func Recommendation(b model.Band) string {
	if r, ok := recommendations[b]; ok {
		return r
	}
	return recommendations[model.BandVeryLow]
}
