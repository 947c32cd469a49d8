package adapters

import (
	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/extract"
	"github.com/ppiankov/veriscope/internal/model"
)

// GenericAdapter is the fallback adapter for unknown sites
type GenericAdapter struct{}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(url string) bool {
	return true
}

// Extract takes the body from known article containers or paragraphs and
// the title and date from metadata
func (a *GenericAdapter) Extract(doc *html.Node, url string) model.Article {
	meta := extract.ExtractMeta(doc)
	return model.Article{
		URL:       url,
		Title:     meta.Title,
		Text:      extract.MainText(doc),
		Published: meta.Published,
	}
}
