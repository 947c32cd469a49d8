package adapters

import (
	"golang.org/x/net/html"

	"github.com/ppiankov/veriscope/internal/extract"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// NaverAdapter extracts articles from Naver News pages
type NaverAdapter struct {
	hosts []string
}

// NewNaverAdapter creates a new Naver News adapter
func NewNaverAdapter() *NaverAdapter {
	return &NaverAdapter{hosts: []string{"news.naver.com"}}
}

// Name returns the adapter name
func (a *NaverAdapter) Name() string {
	return "naver"
}

// CanHandle checks if this is a Naver News URL (desktop or mobile)
func (a *NaverAdapter) CanHandle(url string) bool {
	host := util.DomainOf(url)
	for _, h := range a.hosts {
		if util.HasDomainSuffix(host, h) {
			return true
		}
	}
	return false
}

// bodyNoise are elements inside the article body that are not text
var bodyNoise = []func(*html.Node) bool{
	extract.ByTag("figure"),
	extract.ByClass("promotion"),
	extract.ByClass("byline"),
	extract.ByClass("copyright"),
	extract.ByClass("end_photo_org"),
	extract.ByClass("img_desc"),
}

// Extract reads the body from #dic_area, the headline from the article
// header and the date from the published-time meta or the datestamp span
func (a *NaverAdapter) Extract(doc *html.Node, url string) model.Article {
	art := model.Article{URL: url}

	body := extract.FindFirst(doc, extract.ByID("dic_area"))
	if body == nil {
		body = extract.FindFirst(doc, extract.ByClass("newsct_article"))
	}
	if body != nil {
		for _, match := range bodyNoise {
			extract.Remove(body, match)
		}
		art.Text = extract.Text(body)
	}

	head := extract.FindFirst(doc, extract.ByClass("media_end_head_headline"))
	art.Title = extract.Text(head)

	art.Published = extract.ExtractMeta(doc).Published
	if art.Published == nil {
		stamp := extract.FindFirst(doc, extract.ByTagClass("span", "media_end_head_info_datestamp_time"))
		art.Published = extract.ParseDate(extract.Attr(stamp, "data-date-time"))
	}
	return art
}
