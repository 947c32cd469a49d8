package index

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/chunk"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
	"github.com/ppiankov/veriscope/internal/worker"
)

// BuildOptions configures an offline index build
type BuildOptions struct {
	Workers       int // seed crawl concurrency, capped at 2*NumCPU
	MinTextLen    int // pages shorter than this are not chunked
	ChunkWindow   int
	ChunkStep     int
	EmbedBatch    int
	FallbackBatch int
}

// BuildStats reports what a build did
type BuildStats struct {
	Seeds       int
	FailedSeeds int
	Pages       int
	Chunks      int
	Rows        int
	Duration    time.Duration
}

// Builder crawls seed sites and embeds their chunks into a new pack
type Builder struct {
	crawler  worker.SeedCrawler
	embedder embed.Embedder
	chunker  *chunk.Chunker
	opts     BuildOptions

	mu    sync.Mutex
	pages int
}

// NewBuilder creates a builder
func NewBuilder(crawler worker.SeedCrawler, embedder embed.Embedder, opts BuildOptions) *Builder {
	if opts.MinTextLen <= 0 {
		opts.MinTextLen = chunk.DefaultConfig().MinLen
	}
	chunkOpts := []chunk.Option{chunk.WithMinLen(opts.MinTextLen)}
	if opts.ChunkWindow > 0 {
		chunkOpts = append(chunkOpts, chunk.WithWindow(opts.ChunkWindow))
	}
	if opts.ChunkStep > 0 {
		chunkOpts = append(chunkOpts, chunk.WithStep(opts.ChunkStep))
	}
	return &Builder{
		crawler:  crawler,
		embedder: embedder,
		chunker:  chunk.New(chunkOpts...),
		opts:     opts,
	}
}

// NormalizeSeeds trims, canonicalises and deduplicates seed URLs. Bare host
// names get an https scheme.
func NormalizeSeeds(seeds []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range seeds {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		c := util.CanonicalURL(s)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Build crawls every seed, then embeds all chunks. Crawling finishes before
// any embedding starts. A build that yields no rows fails with
// model.ErrEmptyCorpus.
func (b *Builder) Build(ctx context.Context, seeds []string) (*Pack, BuildStats, error) {
	start := time.Now()
	seeds = NormalizeSeeds(seeds)
	stats := BuildStats{Seeds: len(seeds)}
	if len(seeds) == 0 {
		return nil, stats, eris.Wrap(model.ErrEmptyCorpus, "index: no seeds")
	}

	pages, failed, err := b.crawl(ctx, seeds)
	if err != nil {
		return nil, stats, err
	}
	stats.FailedSeeds = failed
	stats.Pages = len(pages)

	var (
		texts   []string
		records []model.DocRecord
	)
	for _, p := range pages {
		if p.Len() < b.opts.MinTextLen {
			continue
		}
		domain := util.DomainOf(p.URL)
		for _, c := range b.chunker.Chunk(p.Text) {
			texts = append(texts, util.CleanText(c))
			records = append(records, model.DocRecord{
				URL:       p.URL,
				Title:     p.Title,
				Published: p.Published,
				Chunk:     c,
				Domain:    domain,
				FromSeed:  true,
			})
		}
	}
	stats.Chunks = len(texts)
	if len(texts) == 0 {
		return nil, stats, eris.Wrap(model.ErrEmptyCorpus, "index: no chunks extracted")
	}

	zap.L().Info("embedding chunks", zap.Int("chunks", len(texts)), zap.String("model", b.embedder.Model()))
	plan := embed.PlanFor(len(texts), b.opts.EmbedBatch, b.opts.FallbackBatch)
	vecs, kept, err := embed.EncodeAll(ctx, b.embedder, texts, plan)
	if err != nil {
		return nil, stats, eris.Wrap(err, "index: embed")
	}
	if len(vecs) == 0 {
		return nil, stats, eris.Wrap(model.ErrEmptyCorpus, "index: no chunk could be embedded")
	}

	keptRecords := make([]model.DocRecord, len(kept))
	for i, k := range kept {
		keptRecords[i] = records[k]
	}
	pack, err := NewPack(b.embedder.Model(), vecs, keptRecords)
	if err != nil {
		return nil, stats, err
	}

	stats.Rows = pack.Rows()
	stats.Duration = time.Since(start)
	zap.L().Info("index built",
		zap.Int("seeds", stats.Seeds), zap.Int("failed_seeds", stats.FailedSeeds),
		zap.Int("pages", stats.Pages), zap.Int("rows", stats.Rows), zap.Duration("took", stats.Duration))
	return pack, stats, nil
}

func (b *Builder) crawl(ctx context.Context, seeds []string) ([]model.Page, int, error) {
	workers := min(max(b.opts.Workers, 1), 2*runtime.NumCPU())

	pool := worker.NewPool(ctx, workers)
	pool.Start()
	for _, seed := range seeds {
		if err := pool.Submit(&worker.SeedJob{Seed: seed, Crawler: b.crawler, Done: b.progress}); err != nil {
			pool.Wait()
			return nil, 0, eris.Wrap(err, "index: crawl canceled")
		}
	}
	results := pool.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "index: crawl canceled")
	}

	// keep seed order, results arrive in completion order
	bySeed := make(map[string][]model.Page, len(results))
	failed := 0
	for _, r := range results {
		sr := r.(*worker.SeedResult)
		if sr.Error != nil {
			failed++
			zap.L().Warn("seed crawl failed", zap.String("seed", sr.Seed), zap.Error(sr.Error))
			continue
		}
		bySeed[sr.Seed] = sr.Pages
	}

	var pages []model.Page
	for _, seed := range seeds {
		pages = append(pages, bySeed[seed]...)
	}
	return pages, failed, nil
}

func (b *Builder) progress(seed string, pages int, err error) {
	if err != nil {
		return
	}
	b.mu.Lock()
	b.pages += pages
	total := b.pages
	b.mu.Unlock()
	zap.L().Info("seed crawled", zap.String("seed", seed), zap.Int("pages", pages), zap.Int("total_pages", total))
}
