package score

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/util"
)

const daysPerYear = 365.0

// TimeWeight maps the age of a publication date onto a recency weight.
// Unknown dates are neutral. Anything older than a year gets a fixed,
// increasingly negative weight; younger content decays exponentially from
// 0.8 towards -0.1.
func TimeWeight(published *time.Time, now time.Time, lambda float64) float64 {
	if published == nil {
		return 0
	}
	days := math.Max(0, now.Sub(*published).Hours()/24)

	switch {
	case days > daysPerYear*13:
		return -1.2
	case days > daysPerYear*10:
		return -1.0
	case days > daysPerYear*7:
		return -0.8
	case days > daysPerYear*5:
		return -0.6
	case days > daysPerYear*3:
		return -0.4
	case days > daysPerYear:
		return -0.2
	}
	return -0.1 + 0.9*math.Exp(-lambda*days)
}

// LanguageAlignment is 0 for a query that is not mostly hangul. For a hangul
// query it is 0 when the chunk is also mostly hangul and -0.2 otherwise.
func LanguageAlignment(queryHangul float64, chunk string, threshold float64) float64 {
	if queryHangul < threshold {
		return 0
	}
	align := 0.8
	if util.HangulRatio(chunk) >= threshold {
		align += 0.2
	}
	return align - 1
}

var (
	hangulWords = regexp.MustCompile(`[가-힣]{2,}`)
	latinWords  = regexp.MustCompile(`[A-Za-z]{3,}`)
	digitRuns   = regexp.MustCompile(`[0-9]{2,}`)
)

var hangulStopwords = map[string]bool{
	"것은": true, "있다": true, "한다": true, "된다": true, "이다": true,
	"그것": true, "이것": true, "그리고": true, "하지만": true, "그러나": true,
}

var latinStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true, "you": true,
	"all": true, "can": true, "had": true, "was": true, "one": true, "our": true, "has": true,
}

// Keywords extracts the query keywords used by the relevance gate: the first
// ten hangul words, the first five latin words (lowercased) and the first
// five digit runs, minus stopwords and duplicates, in order of appearance.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	for _, w := range firstN(hangulWords.FindAllString(text, -1), 10) {
		if !hangulStopwords[w] {
			add(w)
		}
	}
	for _, w := range firstN(latinWords.FindAllString(text, -1), 5) {
		if lw := strings.ToLower(w); !latinStopwords[lw] {
			add(lw)
		}
	}
	for _, w := range firstN(digitRuns.FindAllString(text, -1), 5) {
		add(w)
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Tokens is the set of significant tokens of a text: hangul words of two or
// more syllables, latin words of three or more letters (case folded) and
// runs of two or more digits
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range hangulWords.FindAllString(text, -1) {
		set[w] = struct{}{}
	}
	for _, w := range latinWords.FindAllString(text, -1) {
		set[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range digitRuns.FindAllString(text, -1) {
		set[w] = struct{}{}
	}
	return set
}

// SharedTokens counts the tokens present in both sets
func SharedTokens(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// MinSharedTokens is the number of shared significant tokens below which a
// candidate gets the lowest relevance tier
const MinSharedTokens = 2

// ContentRelevance returns the relevance multiplier of a chunk for the given
// query keywords and query token set. ok is false when the chunk must be
// excluded: no keywords, or none of them occur in the chunk.
func ContentRelevance(keywords []string, queryTokens map[string]struct{}, chunk string) (relevance float64, ratio float64, ok bool) {
	if len(keywords) == 0 {
		return 0, 0, false
	}
	lower := strings.ToLower(chunk)
	matched := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			matched++
		}
	}
	if matched == 0 {
		return 0, 0, false
	}
	ratio = float64(matched) / float64(len(keywords))

	shared := SharedTokens(queryTokens, Tokens(chunk))
	switch {
	case shared < MinSharedTokens || ratio < 0.15:
		return 0.5, ratio, true
	case ratio < 0.20:
		return 0.7, ratio, true
	case ratio < 0.25:
		return 0.9, ratio, true
	}
	return 1.0, ratio, true
}

// ForeignGate decides whether evidence from a foreign site may be used for
// a mostly-hangul query. It returns the similarity multiplier to apply and
// false when the candidate must be dropped.
func ForeignGate(cfg config.LanguageConfig, queryHangul float64, domain, chunk string) (float64, bool) {
	if !cfg.ForeignGate || queryHangul < cfg.ForeignThreshold {
		return 1, true
	}
	if !IsForeignDomain(cfg, domain) {
		return 1, true
	}

	hits := 0
	for _, k := range cfg.ContextKeywords {
		if strings.Contains(chunk, k) {
			hits++
		}
	}
	if hits < cfg.MinContextKeywords {
		return 0, false
	}
	return cfg.ForeignPenalty, true
}

// IsForeignDomain reports whether domain is not a known local site but
// carries one of the foreign TLDs
func IsForeignDomain(cfg config.LanguageConfig, domain string) bool {
	host := strings.ToLower(domain)
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	for _, d := range cfg.LocalDomains {
		if util.HasDomainSuffix(host, d) {
			return false
		}
	}
	for _, tld := range cfg.ForeignTLDs {
		if util.HasDomainSuffix(host, tld) {
			return true
		}
	}
	return false
}

// Sigmoid is the logistic function
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Percent converts a fused evidence score into a 0-100 percentage
func Percent(score float64) int {
	return int(math.Round(100 * Sigmoid(score)))
}
