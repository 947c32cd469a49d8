package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/util"
)

// Link is one outgoing hyperlink of a page
type Link struct {
	URL      string // canonical absolute URL
	Text     string
	SameHost bool
}

// Links returns the page's http(s) links resolved against baseURL and
// canonicalised, without duplicates, in document order
func Links(doc *html.Node, baseURL string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []Link
	for _, a := range FindAll(doc, ByTag("a")) {
		href := strings.TrimSpace(Attr(a, "href"))
		resolved := resolveURL(base, href)
		if resolved == "" {
			continue
		}
		canon := util.CanonicalURL(resolved)
		if seen[canon] {
			continue
		}
		seen[canon] = true

		links = append(links, Link{
			URL:      canon,
			Text:     Text(a),
			SameHost: strings.EqualFold(util.DomainOf(canon), base.Host),
		})
	}
	return links, nil
}

// resolveURL resolves a relative URL against a base URL
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
