package score

import (
	"sort"

	"github.com/ppiankov/veriscope/internal/util"
)

// DedupOptions bounds the diversified evidence list
type DedupOptions struct {
	TopN         int     // maximum kept items
	DomainCap    int     // kept items per domain before the override applies
	CapOverride  float64 // score at or above which the domain cap is ignored
	URLDuplicate float64 // url similarity at or above which two URLs are the same article
}

// DedupOptions returns the engine's configured dedup bounds
func (e *Engine) DedupOptions() DedupOptions {
	r := e.cfg.Retrieval
	return DedupOptions{
		TopN:         r.TopN,
		DomainCap:    r.DomainCap,
		CapOverride:  r.DomainCapOverride,
		URLDuplicate: r.URLDuplicate,
	}
}

// Dedup collapses candidates that point at the same article and diversifies
// the rest across domains. The result is ordered by similarity.
func Dedup(cands []Candidate, opts DedupOptions) []Candidate {
	if len(cands) == 0 || opts.TopN <= 0 {
		return nil
	}

	// best fused score per canonical URL
	best := make(map[string]int, len(cands))
	var order []string
	for i, c := range cands {
		key := util.CanonicalURL(c.Record.URL)
		j, ok := best[key]
		if !ok {
			best[key] = i
			order = append(order, key)
			continue
		}
		if c.Score > cands[j].Score {
			best[key] = i
		}
	}

	collapsed := make([]Candidate, 0, len(order))
	for _, key := range order {
		collapsed = append(collapsed, cands[best[key]])
	}
	sort.SliceStable(collapsed, func(i, j int) bool {
		if collapsed[i].Similarity != collapsed[j].Similarity {
			return collapsed[i].Similarity > collapsed[j].Similarity
		}
		return collapsed[i].Score > collapsed[j].Score
	})

	var kept []Candidate
	keptURLs := make(map[string]bool)
	perDomain := make(map[string]int)

	for _, c := range collapsed {
		if len(kept) >= opts.TopN {
			break
		}
		canon := util.CanonicalURL(c.Record.URL)
		if keptURLs[canon] {
			continue
		}
		if nearDuplicate(canon, keptURLs, opts.URLDuplicate) {
			continue
		}
		domain := c.Record.Domain
		if domain == "" {
			domain = util.DomainOf(c.Record.URL)
		}
		if opts.DomainCap > 0 && perDomain[domain] >= opts.DomainCap && c.Score < opts.CapOverride {
			continue
		}

		kept = append(kept, c)
		keptURLs[canon] = true
		perDomain[domain]++
	}
	return kept
}

func nearDuplicate(canon string, kept map[string]bool, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	for u := range kept {
		if util.URLSimilarity(canon, u) >= threshold {
			return true
		}
	}
	return false
}
