package score

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

const (
	highSimilarity = 0.7
	highSupport    = 0.8
	snippetRunes   = 300
)

var (
	jtbcYear = regexp.MustCompile(`NB(\d{2})`)
	urlYear  = regexp.MustCompile(`20(\d{2})`)
)

// DetectYear guesses the publication year from a URL. JTBC article ids
// carry a two-digit year after "NB"; other URLs are searched for the first
// 20YY between 2000 and the current year. 0 means unknown.
func DetectYear(rawURL string, now time.Time) int {
	if rawURL == "" {
		return 0
	}
	current := now.Year()

	if strings.Contains(strings.ToLower(rawURL), "jtbc.co.kr") {
		if m := jtbcYear.FindStringSubmatch(rawURL); m != nil {
			yy, _ := strconv.Atoi(m[1])
			if 2000+yy <= current {
				return 2000 + yy
			}
			return 1900 + yy
		}
	}

	for _, m := range urlYear.FindAllStringSubmatch(rawURL, -1) {
		yy, _ := strconv.Atoi(m[1])
		if y := 2000 + yy; y <= current {
			return y
		}
	}
	return 0
}

// QueryYear is the year of the query article: its publication date when
// known, else a year detected in its URL
func (e *Engine) QueryYear(q Query) int {
	if q.Published != nil {
		return q.Published.Year()
	}
	return DetectYear(q.URL, e.now())
}

// Aggregate turns the kept evidence into the reliability score with its
// factor breakdown and explanatory signals
func (e *Engine) Aggregate(q Query, kept []Candidate) model.Score {
	body := q.Raw
	if body == "" {
		body = q.Text
	}
	patterns := DetectPatterns(body + " " + q.Title)

	if len(kept) == 0 {
		s := NoEvidenceScore()
		s.Factors.PatternScore = patterns.Score
		s.Factors.QualityPenalty = patterns.QualityPenalty
		s.Factors.GlobalPenalty = patterns.GlobalPenalty
		if sig, ok := patternSignal(patterns); ok {
			s.Signals = append(s.Signals, sig)
		}
		return s
	}

	var signals []model.Signal

	cc, sig := e.consistency(kept)
	signals = append(signals, sig)

	sd, sig := e.diversity(kept)
	signals = append(signals, sig)

	tr, sig := e.temporal(q, kept)
	signals = append(signals, sig)

	eq, sig := e.quality(kept, patterns.QualityPenalty)
	signals = append(signals, sig)

	if sig, ok := patternSignal(patterns); ok {
		signals = append(signals, sig)
	}
	if sig, ok := fallbackSignal(kept); ok {
		signals = append(signals, sig)
	}

	a := e.cfg.Aggregate
	final := a.Consistency*cc + a.Diversity*sd + a.Temporal*tr + a.Quality*eq - patterns.GlobalPenalty
	final = math.Max(0, math.Min(1, final))
	percent := int(math.Round(100 * final))
	band := BandFor(percent, e.cfg.Bands)

	return model.Score{
		Percent:        percent,
		Level:          band,
		Recommendation: Recommendation(band),
		Factors: model.Factors{
			ContentConsistency: cc,
			SourceDiversity:    sd,
			TemporalRelevance:  tr,
			EvidenceQuality:    eq,
			PatternScore:       patterns.Score,
			QualityPenalty:     patterns.QualityPenalty,
			GlobalPenalty:      patterns.GlobalPenalty,
		},
		Signals: signals,
	}
}

// NoEvidenceScore is the score of a query nothing in the index backs
func NoEvidenceScore() model.Score {
	return model.Score{
		Percent:        0,
		Level:          model.BandVeryLow,
		Recommendation: NoEvidenceRecommendation,
		Signals: []model.Signal{{
			Type:        model.SignalNoEvidence,
			Severity:    model.SeverityCritical,
			Description: "No evidence survived retrieval and filtering",
			Data:        map[string]interface{}{"kept": 0},
		}},
	}
}

func (e *Engine) consistency(kept []Candidate) (float64, model.Signal) {
	sum := 0.0
	for _, c := range kept {
		sum += c.Score
	}
	cc := Sigmoid(sum)

	return cc, model.Signal{
		Type:        model.SignalContentConsistency,
		Severity:    severityFor(cc),
		Description: fmt.Sprintf("Fused evidence score sum %.2f over %d items", sum, len(kept)),
		Data: map[string]interface{}{
			"sum":     sum,
			"kept":    len(kept),
			"value":   cc,
			"formula": "sigmoid(sum(score))",
		},
	}
}

func (e *Engine) diversity(kept []Candidate) (float64, model.Signal) {
	hosts := make(map[string]bool)
	government, media := 0, 0
	for _, c := range kept {
		domain := c.Record.Domain
		if domain == "" {
			domain = util.DomainOf(c.Record.URL)
		}
		hosts[domain] = true

		switch e.reputation.Kind(c.Record.URL) {
		case model.KindGovernment:
			government++
		case model.KindMedia:
			media++
		}
	}

	unique := math.Min(1, float64(len(hosts))/float64(len(kept)))
	balance := 0.3
	if government > 0 && media > 0 {
		balance = 0.5
	}
	sd := (unique + balance) / 2

	return sd, model.Signal{
		Type:        model.SignalSourceDiversity,
		Severity:    severityFor(sd),
		Description: fmt.Sprintf("%d distinct hosts, %d government and %d media sources", len(hosts), government, media),
		Data: map[string]interface{}{
			"hosts":      len(hosts),
			"kept":       len(kept),
			"government": government,
			"media":      media,
			"balance":    balance,
			"value":      sd,
			"formula":    "(min(1, hosts / kept) + balance) / 2",
		},
	}
}

func (e *Engine) temporal(q Query, kept []Candidate) (float64, model.Signal) {
	tc := e.cfg.Temporal
	now := e.now()

	if year := e.QueryYear(q); year > 0 && year <= tc.OldYear {
		tr := 0.3
		if year <= tc.VeryOldYear {
			tr = 0.1
		}
		return tr, model.Signal{
			Type:        model.SignalTemporalRelevance,
			Severity:    model.SeverityCritical,
			Description: fmt.Sprintf("The article itself dates from %d", year),
			Data: map[string]interface{}{
				"query_year":    year,
				"very_old_year": tc.VeryOldYear,
				"old_year":      tc.OldYear,
				"value":         tr,
			},
		}
	}

	veryOld, old, recent, unknown := 0, 0, 0, 0
	for _, c := range kept {
		var year int
		if c.Record.Published != nil {
			year = c.Record.Published.Year()
		} else {
			year = DetectYear(c.Record.URL, now)
		}
		switch {
		case year == 0:
			unknown++
		case year <= tc.VeryOldYear:
			veryOld++
			old++
		case year <= tc.OldYear:
			old++
		default:
			recent++
		}
	}

	total := float64(len(kept))
	veryOldRatio := float64(veryOld) / total
	oldRatio := float64(old) / total

	var tr float64
	switch {
	case veryOldRatio >= 0.8:
		tr = 0.1
	case veryOldRatio >= 0.6:
		tr = 0.2
	case veryOldRatio >= 0.4:
		tr = 0.3
	case veryOldRatio >= 0.2:
		tr = 0.4
	case oldRatio > 0.6:
		tr = 0.6
	default:
		tr = 0.9
	}

	return tr, model.Signal{
		Type:        model.SignalTemporalRelevance,
		Severity:    severityFor(tr),
		Description: fmt.Sprintf("Evidence age: %d very old, %d old, %d recent, %d undated", veryOld, old-veryOld, recent, unknown),
		Data: map[string]interface{}{
			"very_old":       veryOld,
			"old":            old,
			"recent":         recent,
			"unknown":        unknown,
			"very_old_ratio": veryOldRatio,
			"old_ratio":      oldRatio,
			"value":          tr,
		},
	}
}

func (e *Engine) quality(kept []Candidate, penalty float64) (float64, model.Signal) {
	highSim, highSup := 0, 0
	for _, c := range kept {
		if c.Similarity > highSimilarity {
			highSim++
		}
		if c.Support > highSupport {
			highSup++
		}
	}
	n := float64(len(kept))
	raw := (float64(highSim)/n + float64(highSup)/n) / 2
	eq := math.Max(0, raw-penalty)

	return eq, model.Signal{
		Type:        model.SignalEvidenceQuality,
		Severity:    severityFor(eq),
		Description: fmt.Sprintf("%d of %d items highly similar, %d strongly supported", highSim, len(kept), highSup),
		Data: map[string]interface{}{
			"high_similarity": highSim,
			"high_support":    highSup,
			"kept":            len(kept),
			"penalty":         penalty,
			"value":           eq,
			"formula":         "max(0, (frac(sim > 0.7) + frac(sup > 0.8)) / 2 - quality_penalty)",
		},
	}
}

func patternSignal(p PatternResult) (model.Signal, bool) {
	if p.Score <= 0 {
		return model.Signal{}, false
	}
	severity := model.SeverityInfo
	switch {
	case p.GlobalPenalty >= 0.3:
		severity = model.SeverityCritical
	case p.GlobalPenalty > 0:
		severity = model.SeverityWarning
	}
	return model.Signal{
		Type:        model.SignalFakePattern,
		Severity:    severity,
		Description: fmt.Sprintf("Fake-content pattern score %.1f", p.Score),
		Data: map[string]interface{}{
			"score":           p.Score,
			"combos":          p.Combos,
			"terms":           p.Terms,
			"quality_penalty": p.QualityPenalty,
			"global_penalty":  p.GlobalPenalty,
			"formula":         "3 per 3-term combo + 1.5 per 2-term combo + 0.1 per term",
		},
	}, true
}

func fallbackSignal(kept []Candidate) (model.Signal, bool) {
	n := 0
	for _, c := range kept {
		if c.Fallback {
			n++
		}
	}
	if n == 0 {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalKeywordFallback,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("%d evidence items found by keyword search only", n),
		Data:        map[string]interface{}{"fallback": n, "kept": len(kept)},
	}, true
}

func severityFor(v float64) model.SignalSeverity {
	switch {
	case v < 0.3:
		return model.SeverityCritical
	case v < 0.5:
		return model.SeverityWarning
	}
	return model.SeverityInfo
}

// ToEvidence converts kept candidates into ranked report evidence
func ToEvidence(kept []Candidate) []model.Evidence {
	out := make([]model.Evidence, 0, len(kept))
	for i, c := range kept {
		r := c.Record
		domain := r.Domain
		if domain == "" {
			domain = util.DomainOf(r.URL)
		}
		out = append(out, model.Evidence{
			Rank:          i + 1,
			URL:           r.URL,
			Title:         r.Title,
			Domain:        domain,
			Published:     r.Published,
			Similarity:    c.Similarity,
			Support:       c.Support,
			Contradiction: c.Contradiction,
			Score:         c.Score,
			Percent:       Percent(c.Score),
			Snippet:       util.Truncate(r.Chunk, snippetRunes),
			Fallback:      c.Fallback,
		})
	}
	return out
}
