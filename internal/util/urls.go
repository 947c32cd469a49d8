package util

import (
	"net/url"
	"regexp"
	"strings"
)

// trackingExact are query keys always dropped during canonicalisation
var trackingExact = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"igshid": true,
}

// trackingPrefixes are query key prefixes dropped during canonicalisation
var trackingPrefixes = []string{
	"utm_", "ref", "share", "_ga", "campaign", "source", "medium",
	"term", "content", "spm_id", "module", "pgtype",
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// IsTrackingParam reports whether a query key only carries tracking data
func IsTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if trackingExact[k] {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// CanonicalURL normalizes a URL so near-duplicates compare equal.
// Tracking parameters and the fragment are removed, scheme and host are
// lowercased, repeated slashes collapse, and a trailing slash is stripped
// unless the path is the root. An empty path becomes the root. Unparseable
// input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	path := repeatedSlashes.ReplaceAllString(u.Path, "/")
	if path == "" {
		path = "/"
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	u.Path = path
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if IsTrackingParam(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.ForceQuery = false

	return u.String()
}

// URLSimilarity scores how likely two URLs point at the same article.
// Different hosts score 0, identical paths 1. Paths with the same number of
// segments where at least 80% of the leading segments match score 0.9.
func URLSimilarity(a, b string) float64 {
	ua, err := url.Parse(a)
	if err != nil {
		return 0
	}
	ub, err := url.Parse(b)
	if err != nil {
		return 0
	}
	if !strings.EqualFold(ua.Host, ub.Host) {
		return 0
	}
	if ua.Path == ub.Path {
		return 1
	}

	pa := pathSegments(ua.Path)
	pb := pathSegments(ub.Path)
	if len(pa) == 0 || len(pb) == 0 || len(pa) != len(pb) {
		return 0
	}

	common := 0
	for i := 0; i < len(pa)-1; i++ {
		if pa[i] == pb[i] {
			common++
		}
	}
	denom := len(pa) - 1
	if denom < 1 {
		denom = 1
	}
	if float64(common)/float64(denom) >= 0.8 {
		return 0.9
	}
	return 0
}

func pathSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DomainOf returns the lowercased host of a URL, or "" if it cannot be parsed
func DomainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsSameDomain reports whether rawURL is on domain or one of its subdomains
func IsSameDomain(rawURL, domain string) bool {
	d := DomainOf(rawURL)
	domain = strings.ToLower(domain)
	return d != "" && (d == domain || strings.HasSuffix(d, "."+domain))
}

// HasDomainSuffix reports whether host equals suffix or is a subdomain of it.
// Suffixes starting with "." only match by suffix.
func HasDomainSuffix(host, suffix string) bool {
	host = strings.ToLower(host)
	suffix = strings.ToLower(suffix)
	if strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

// IsHTTPS reports whether the URL uses the https scheme
func IsHTTPS(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "https://")
}
