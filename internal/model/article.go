package model

import (
	"time"
	"unicode/utf8"
)

// Article is the output of the text extractor for one URL
type Article struct {
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Text      string     `json:"text"`
	Published *time.Time `json:"published,omitempty"` // nil when no date could be detected
	Extractor string     `json:"extractor,omitempty"` // Which adapter produced the text
}

// Len returns the text length in characters
func (a Article) Len() int {
	return utf8.RuneCountInString(a.Text)
}

// Empty reports whether extraction produced no usable text
func (a Article) Empty() bool {
	return a.Text == ""
}

// Page is one crawled page that survived extraction, before chunking
type Page struct {
	Article
	Seed  string `json:"seed"`
	Depth int    `json:"depth"`
}

// QuerySource describes where the query text came from
type QuerySource string

const (
	SourceURL   QuerySource = "url"   // Fetched and extracted from a URL
	SourceText  QuerySource = "text"  // Raw text supplied by the caller
	SourceImage QuerySource = "image" // Text recognized from an image by an external OCR service
)
