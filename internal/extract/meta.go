package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/util"
)

// Meta is the document metadata useful for an article
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Published   *time.Time
}

var titleKeys = []string{"og:title", "twitter:title"}

var dateKeys = []string{
	"article:published_time", "og:published_time", "og:regDate",
	"datePublished", "pubdate", "publishdate", "publish-date", "date",
	"dc.date", "dc.date.issued", "article.published",
}

// ExtractMeta reads title, description, canonical link and publication date
// from <meta>, <link>, <title> and <time> elements
func ExtractMeta(doc *html.Node) Meta {
	var m Meta
	metas := make(map[string]string)
	for _, n := range FindAll(doc, ByTag("meta")) {
		key := Attr(n, "property")
		if key == "" {
			key = Attr(n, "name")
		}
		if key == "" {
			key = Attr(n, "itemprop")
		}
		content := strings.TrimSpace(Attr(n, "content"))
		if key == "" || content == "" {
			continue
		}
		key = strings.ToLower(key)
		if _, ok := metas[key]; !ok {
			metas[key] = content
		}
	}

	for _, k := range titleKeys {
		if v := metas[strings.ToLower(k)]; v != "" {
			m.Title = util.NormalizeSpace(v)
			break
		}
	}
	if m.Title == "" {
		m.Title = Text(FindFirst(doc, ByTag("title")))
	}

	m.Description = util.NormalizeSpace(firstNonEmpty(metas["og:description"], metas["description"]))

	if link := FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "link" && strings.EqualFold(Attr(n, "rel"), "canonical")
	}); link != nil {
		m.Canonical = strings.TrimSpace(Attr(link, "href"))
	}

	for _, k := range dateKeys {
		if t := ParseDate(metas[strings.ToLower(k)]); t != nil {
			m.Published = t
			break
		}
	}
	if m.Published == nil {
		for _, n := range FindAll(doc, ByTag("time")) {
			if t := ParseDate(Attr(n, "datetime")); t != nil {
				m.Published = t
				break
			}
		}
	}
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"20060102",
	time.RFC1123Z,
	time.RFC1123,
}

var koreanDate = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)

// ParseDate parses the date formats found in news metadata. Dates without
// a zone are read as UTC. It returns nil when nothing matches.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, ".")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	if m := koreanDate.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	return nil
}
