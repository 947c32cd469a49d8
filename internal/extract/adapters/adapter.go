// Package adapters turns fetched HTML into article text. Site-specific
// adapters run first; the generic adapter is the fallback.
package adapters

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/extract"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// minBodyRunes is the body length at which an adapter's result is accepted
// without trying the next one
const minBodyRunes = 80

// Adapter defines the interface for site-specific extractors
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle the given URL
	CanHandle(url string) bool

	// Extract pulls the article out of the parsed document. Missing
	// fields stay empty.
	Extract(doc *html.Node, url string) model.Article
}

// Registry manages adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	registry := &Registry{}

	registry.Register(NewNaverAdapter())
	registry.Register(NewJSONLDAdapter())

	registry.generic = NewGenericAdapter()
	return registry
}

// Register registers a new adapter. Adapters are tried in registration order.
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the first adapter for the given URL
func (r *Registry) FindAdapter(url string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(url) {
			return adapter
		}
	}
	return r.generic
}

// Extract returns the article in rawHTML. Every adapter that handles the URL
// is tried in order until one yields a substantial body; the generic adapter
// goes last. Title and date gaps are filled from page metadata. It never
// fails: when nothing can be extracted the article text is empty.
func (r *Registry) Extract(url, rawHTML string) model.Article {
	out := model.Article{URL: url}
	if strings.TrimSpace(rawHTML) == "" {
		return out
	}

	doc, err := extract.Parse(rawHTML)
	if err != nil {
		zap.L().Debug("html parse failed", zap.String("url", url), zap.Error(err))
		return out
	}

	candidates := make([]Adapter, 0, len(r.adapters)+1)
	for _, a := range r.adapters {
		if a.CanHandle(url) {
			candidates = append(candidates, a)
		}
	}
	candidates = append(candidates, r.generic)

	var best model.Article
	for _, a := range candidates {
		art := a.Extract(doc, url)
		art.Text = util.NormalizeSpace(art.Text)
		art.Extractor = a.Name()
		if util.RuneLen(art.Text) >= minBodyRunes {
			best = art
			break
		}
		if util.RuneLen(art.Text) > util.RuneLen(best.Text) {
			best = art
		}
	}

	meta := extract.ExtractMeta(doc)
	if best.Title == "" {
		best.Title = meta.Title
	}
	if best.Published == nil {
		best.Published = meta.Published
	}
	best.URL = url
	if best.Text == "" {
		best.Extractor = ""
	}
	return best
}
