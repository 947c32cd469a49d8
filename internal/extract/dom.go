// Package extract holds the HTML helpers shared by the article adapters and
// the crawler: DOM queries, visible text, metadata and link discovery.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Parse parses an HTML document
func Parse(raw string) (*html.Node, error) {
	return html.Parse(strings.NewReader(raw))
}

// Attr gets an attribute value from a node
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasClass checks if a node has a specific CSS class
func HasClass(n *html.Node, className string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(Attr(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

// ByTag matches elements by tag name
func ByTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

// ByID matches the element with the given id
func ByID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && Attr(n, "id") == id
	}
}

// ByClass matches elements carrying the given class
func ByClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return HasClass(n, class)
	}
}

// ByTagClass matches elements of a tag carrying a class
func ByTagClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag && HasClass(n, class)
	}
}

// FindAll finds all nodes matching a predicate
func FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node
	if n == nil {
		return nil
	}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate in document order
func FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node
	if n == nil {
		return nil
	}

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

// Remove detaches every descendant of n matching the predicate
func Remove(n *html.Node, predicate func(*html.Node) bool) {
	for _, m := range FindAll(n, predicate) {
		if m != n && m.Parent != nil {
			m.Parent.RemoveChild(m)
		}
	}
}
