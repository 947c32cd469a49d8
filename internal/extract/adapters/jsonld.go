package adapters

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/extract"
	"github.com/ppiankov/veriscope/internal/model"
)

// JSONLDAdapter reads schema.org Article objects embedded as JSON-LD
type JSONLDAdapter struct{}

// NewJSONLDAdapter creates a new JSON-LD adapter
func NewJSONLDAdapter() *JSONLDAdapter {
	return &JSONLDAdapter{}
}

// Name returns the adapter name
func (a *JSONLDAdapter) Name() string {
	return "jsonld"
}

// CanHandle is true for every URL; pages without JSON-LD yield nothing
func (a *JSONLDAdapter) CanHandle(url string) bool {
	return true
}

type ldArticle struct {
	Type          json.RawMessage `json:"@type"`
	Headline      string          `json:"headline"`
	ArticleBody   string          `json:"articleBody"`
	DatePublished string          `json:"datePublished"`
	Graph         []ldArticle     `json:"@graph"`
}

// Extract returns the first Article-typed object with a body found in the
// page's ld+json scripts, or failing that any object with an articleBody
func (a *JSONLDAdapter) Extract(doc *html.Node, url string) model.Article {
	art := model.Article{URL: url}

	var items []ldArticle
	for _, s := range extract.FindAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "script" &&
			strings.EqualFold(strings.TrimSpace(extract.Attr(n, "type")), "application/ld+json")
	}) {
		if s.FirstChild != nil {
			items = append(items, decodeLD(s.FirstChild.Data)...)
		}
	}

	pick := func(typed bool) bool {
		for _, it := range items {
			if it.ArticleBody == "" || (typed && !isArticleType(it.Type)) {
				continue
			}
			art.Text = it.ArticleBody
			art.Title = it.Headline
			art.Published = extract.ParseDate(it.DatePublished)
			return true
		}
		return false
	}
	if !pick(true) {
		pick(false)
	}
	return art
}

// decodeLD accepts a single object, an array, or an object with @graph
func decodeLD(raw string) []ldArticle {
	raw = strings.TrimSpace(raw)
	var items []ldArticle
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil
		}
	} else {
		var one ldArticle
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil
		}
		items = []ldArticle{one}
	}

	var out []ldArticle
	for _, it := range items {
		out = append(out, it)
		out = append(out, it.Graph...)
	}
	return out
}

func isArticleType(raw json.RawMessage) bool {
	return strings.Contains(string(raw), "Article")
}
