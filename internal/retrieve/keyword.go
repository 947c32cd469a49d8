package retrieve

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/veriscope/internal/index"
)

// contextRunes is how far around a matched keyword other keywords count as context
const contextRunes = 10

// nonArticleWords mark listing, legal and account pages
var nonArticleWords = []string{
	"copyright", "agreement", "privacy", "terms", "policy",
	"contact", "about", "newslist", "category", "tag",
	"search", "login", "register", "member", "mypage",
	"sitemap", "rss", "xml", "api", "admin", "management",
	"list", "index", "main", "home", "plan", "specialedition",
	"history", "archive", "event", "promotion", "guide",
}

var articleWords = []string{"article", "news", "view", "read", "story", "report"}

var urlDate = regexp.MustCompile(`20\d{2}[/\-]?\d{2}[/\-]?\d{2}`)

// IsArticleURL reports whether a URL looks like a single news article. Only
// the path and query are inspected, so host names never exclude a site.
func IsArticleURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	rest := strings.ToLower(u.EscapedPath())
	if u.RawQuery != "" {
		rest += "?" + strings.ToLower(u.RawQuery)
	}

	for _, w := range nonArticleWords {
		if strings.Contains(rest, w) {
			return false
		}
	}
	for _, w := range articleWords {
		if strings.Contains(rest, w) {
			return true
		}
	}

	digits := 0
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 10 || urlDate.MatchString(raw)
}

// KeywordScore scores a chunk by the keywords it contains. Full matches get
// a 30% bonus, 80% matches 20%, and every other keyword found within ten
// runes of a matched keyword adds 10%. It returns 0 when nothing matches.
func KeywordScore(chunk string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	text := []rune(strings.ToLower(chunk))
	lower := string(text)

	var matched []string
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return 0
	}

	score := float64(len(matched)) / float64(len(keywords))
	switch {
	case len(matched) == len(keywords):
		score *= 1.3
	case score >= 0.8:
		score *= 1.2
	}

	nearby := 0
	for _, k := range matched {
		at := runeIndex(text, []rune(k))
		if at < 0 {
			continue
		}
		lo := max(0, at-contextRunes)
		hi := min(len(text), at+len([]rune(k))+contextRunes)
		window := string(text[lo:hi])
		for _, other := range keywords {
			if other != k && strings.Contains(window, other) {
				nearby++
			}
		}
	}
	if nearby > 0 {
		score *= 1 + 0.1*float64(nearby)
	}
	return score
}

func runeIndex(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// KeywordSearch scans every record for the keywords and returns the best
// limit article-like matches, flagged as fallback, carrying the row's raw
// similarity from sims
func KeywordSearch(p *index.Pack, keywords []string, sims []float64, limit int) []Hit {
	if p == nil || len(keywords) == 0 || limit <= 0 {
		return nil
	}

	var hits []Hit
	for i, rec := range p.Records {
		s := KeywordScore(rec.Chunk, keywords)
		if s == 0 || !IsArticleURL(rec.URL) {
			continue
		}
		h := Hit{Index: i, KeywordScore: s, Fallback: true}
		if i < len(sims) {
			h.Similarity = sims[i]
		}
		hits = append(hits, h)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].KeywordScore > hits[j].KeywordScore
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
