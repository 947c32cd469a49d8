package pipeline

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/extract"
	"github.com/ppiankov/veriscope/internal/extract/adapters"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
	"github.com/ppiankov/veriscope/internal/worker"
)

// binary resources never worth fetching during a crawl
var skipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".pdf": true, ".zip": true, ".mp3": true, ".mp4": true, ".avi": true,
	".css": true, ".js": true, ".xml": true, ".ico": true, ".hwp": true,
}

// CrawlerOptions bounds a seed crawl
type CrawlerOptions struct {
	MaxDepth          int
	MaxPagesPerDomain int // pages fetched per seed, including non-article pages
	MinTextLen        int // pages with less text are used for links only
}

// Crawler walks one seed site breadth-first and extracts its articles
type Crawler struct {
	fetcher  *Fetcher
	registry *adapters.Registry
	limiter  *worker.Limiter
	robots   *util.RobotsChecker
	opts     CrawlerOptions
}

// NewCrawler creates a crawler. limiter and robots may be nil.
func NewCrawler(fetcher *Fetcher, registry *adapters.Registry, limiter *worker.Limiter, robots *util.RobotsChecker, opts CrawlerOptions) *Crawler {
	if opts.MaxPagesPerDomain <= 0 {
		opts.MaxPagesPerDomain = 150
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	return &Crawler{
		fetcher:  fetcher,
		registry: registry,
		limiter:  limiter,
		robots:   robots,
		opts:     opts,
	}
}

type crawlItem struct {
	url   string
	depth int
}

// Crawl fetches the seed and follows same-domain links up to MaxDepth.
// Only a failure to fetch the seed itself is returned as an error; other
// pages that fail are logged and skipped. On cancellation the pages found
// so far are returned with the context error.
func (c *Crawler) Crawl(ctx context.Context, seed string) ([]model.Page, error) {
	domain := strings.TrimPrefix(util.DomainOf(seed), "www.")
	if domain == "" {
		return nil, eris.Errorf("pipeline: invalid seed %q", seed)
	}

	start := util.CanonicalURL(seed)
	queue := []crawlItem{{url: start}}
	visited := map[string]bool{start: true}
	var pages []model.Page
	fetched := 0

	for len(queue) > 0 && fetched < c.opts.MaxPagesPerDomain {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		item := queue[0]
		queue = queue[1:]

		if !c.allowed(ctx, item.url) {
			if item.depth == 0 {
				return nil, eris.Errorf("pipeline: seed %s disallowed by robots.txt", seed)
			}
			continue
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, item.url); err != nil {
				return pages, err
			}
		}

		res, err := c.fetcher.FetchWithRetry(ctx, item.url)
		fetched++
		if err != nil {
			if item.depth == 0 {
				return nil, eris.Wrapf(err, "pipeline: crawl seed %s", seed)
			}
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			zap.L().Debug("crawl fetch failed", zap.String("url", item.url), zap.Error(err))
			continue
		}

		pageURL := util.CanonicalURL(res.FinalURL)
		article := c.registry.Extract(pageURL, res.HTML)
		if article.Len() >= c.opts.MinTextLen {
			pages = append(pages, model.Page{Article: article, Seed: seed, Depth: item.depth})
		}

		if item.depth >= c.opts.MaxDepth {
			continue
		}
		for _, link := range c.links(pageURL, res.HTML, domain) {
			if visited[link] {
				continue
			}
			visited[link] = true
			queue = append(queue, crawlItem{url: link, depth: item.depth + 1})
		}
	}

	zap.L().Debug("seed crawled",
		zap.String("seed", seed),
		zap.Int("fetched", fetched),
		zap.Int("pages", len(pages)))
	return pages, nil
}

// allowed checks robots.txt and applies its crawl delay to the limiter
func (c *Crawler) allowed(ctx context.Context, rawURL string) bool {
	if c.robots == nil {
		return true
	}
	ok, delay := c.robots.Allowed(ctx, rawURL)
	if delay > 0 && c.limiter != nil {
		c.limiter.Throttle(util.DomainOf(rawURL), delay)
	}
	if !ok {
		zap.L().Debug("disallowed by robots.txt", zap.String("url", rawURL))
	}
	return ok
}

// links returns the crawlable same-domain links of a page
func (c *Crawler) links(pageURL, rawHTML, domain string) []string {
	doc, err := extract.Parse(rawHTML)
	if err != nil {
		return nil
	}
	all, err := extract.Links(doc, pageURL)
	if err != nil {
		return nil
	}

	var out []string
	for _, l := range all {
		if !util.IsSameDomain(l.URL, domain) {
			continue
		}
		if skipExtensions[extension(l.URL)] {
			continue
		}
		out = append(out, l.URL)
	}
	return out
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
