package extract

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/util"
)

// skipped holds elements whose text is never article content
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"template": true, "svg": true, "button": true, "form": true,
}

// chrome holds page furniture dropped from visible text
var chrome = map[string]bool{
	"nav": true, "header": true, "footer": true, "aside": true,
}

// containers are ids and classes news sites use for the article body
var containers = []func(*html.Node) bool{
	ByID("article"),
	ByID("article_body"),
	ByID("articleContent"),
	ByID("articleBody"),
	ByClass("article_body"),
	ByClass("article-body"),
	ByClass("article-content"),
	ByClass("news_article"),
	ByClass("content_article"),
	ByTag("article"),
}

// minParagraph is the shortest <p> counted as body text outside a container
const minParagraph = 30

// Text returns the whitespace-normalised text below n, skipping scripts
// and styles
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collect(n, &b, false)
	return util.NormalizeSpace(b.String())
}

// VisibleText returns the text a reader would see, without navigation,
// headers, footers and asides
func VisibleText(doc *html.Node) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	collect(doc, &b, true)
	return util.NormalizeSpace(b.String())
}

func collect(n *html.Node, b *strings.Builder, dropChrome bool) {
	if n.Type == html.ElementNode {
		if skipped[n.Data] || (dropChrome && chrome[n.Data]) {
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, b, dropChrome)
	}
}

// Paragraphs returns the non-empty <p> texts below n
func Paragraphs(n *html.Node) []string {
	var out []string
	for _, p := range FindAll(n, ByTag("p")) {
		if t := Text(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// MainText guesses the article body: the longest known body container,
// then the page's substantial paragraphs, then all visible text
func MainText(doc *html.Node) string {
	best := ""
	for _, match := range containers {
		for _, n := range FindAll(doc, match) {
			t := strings.Join(Paragraphs(n), " ")
			if t == "" {
				t = Text(n)
			}
			if util.RuneLen(t) > util.RuneLen(best) {
				best = t
			}
		}
	}
	if best != "" {
		return best
	}

	var paras []string
	for _, p := range Paragraphs(doc) {
		if util.RuneLen(p) >= minParagraph {
			paras = append(paras, p)
		}
	}
	if len(paras) > 0 {
		return strings.Join(paras, " ")
	}
	return VisibleText(doc)
}
