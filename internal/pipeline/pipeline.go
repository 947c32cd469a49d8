package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/cache"
	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/extract/adapters"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/llm"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/nli"
	"github.com/ppiankov/veriscope/internal/store"
	"github.com/ppiankov/veriscope/internal/util"
	"github.com/ppiankov/veriscope/internal/validate"
	"github.com/ppiankov/veriscope/internal/worker"
)

// packName is the slot used for the index in the SQLite store
const packName = "default"

// Pipeline holds every service built from one configuration
type Pipeline struct {
	Config     *config.Config
	Cache      cache.Cache
	Fetcher    *Fetcher
	Registry   *adapters.Registry
	Resolver   *validate.Resolver
	Embedder   embed.Embedder
	Classifier nli.Classifier
	Index      *index.Store
	DB         *store.SQLiteStore // nil unless the sqlite backend or the evaluation log is enabled
	Evaluator  *Evaluator
	Renderer   *Renderer
}

// NewPipeline builds the services described by cfg and loads the persisted
// index. A missing index leaves the store empty; evaluations then fail with
// an empty-corpus result until an index is built.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		Config:   cfg,
		Registry: adapters.NewRegistry(),
		Renderer: NewRenderer(true),
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		zap.L().Warn("cache disabled", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
	}
	p.Cache = c
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour

	p.Fetcher = NewFetcher(FetcherOptionsFrom(cfg.HTTP)).WithCache(c, ttl)
	p.Resolver = validate.NewResolver(validate.ResolverOptions{
		Timeout:     time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		UserAgent:   cfg.HTTP.UserAgent,
		Shorteners:  cfg.HTTP.Shorteners,
		InsecureTLS: cfg.HTTP.InsecureTLS,
		HTTPProxy:   cfg.HTTP.HTTPProxy,
		HTTPSProxy:  cfg.HTTP.HTTPSProxy,
		NoProxy:     cfg.HTTP.NoProxy,
	})

	embedder, err := llm.NewEmbedder(llm.ConfigFrom(cfg.Embedder, cfg.HTTP))
	if err != nil {
		return nil, err
	}
	p.Embedder = embed.NewCachedEmbedder(embedder, c, ttl)

	p.Classifier, err = llm.NewClassifier(llm.ConfigFrom(cfg.NLI.ProviderConfig, cfg.HTTP))
	if err != nil {
		return nil, err
	}

	persister, err := p.persister(ctx)
	if err != nil {
		return nil, err
	}
	pack, err := persister.Load(ctx)
	switch {
	case errors.Is(err, model.ErrNotFound):
		zap.L().Warn("no index found, run build first", zap.String("path", cfg.Index.Path))
		pack = nil
	case err != nil:
		p.Close()
		return nil, err
	default:
		zap.L().Info("index loaded",
			zap.String("model", pack.ModelName),
			zap.Int("rows", pack.Rows()))
	}
	p.Index = index.NewStore(pack, p.Embedder,
		index.WithPersister(persister),
		index.WithChunking(cfg.Index.ChunkWindow, cfg.Index.ChunkStep, cfg.Crawl.MinTextLen),
	)

	deps := Deps{
		Embedder:   p.Embedder,
		Classifier: p.Classifier,
		Index:      p.Index,
		Fetcher:    p.Fetcher,
		Registry:   p.Registry,
		Resolver:   p.Resolver,
	}
	if p.DB != nil {
		deps.Log = p.DB
	}
	p.Evaluator, err = NewEvaluator(cfg, deps)
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// persister selects the index backend, opening the SQLite store when the
// backend or the evaluation log needs it
func (p *Pipeline) persister(ctx context.Context) (index.Persister, error) {
	cfg := p.Config
	sqlite := strings.EqualFold(cfg.Index.Backend, "sqlite")
	if sqlite || cfg.Store.LogEvaluations {
		db, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		p.DB = db
	}

	switch strings.ToLower(cfg.Index.Backend) {
	case "", "file":
		return index.NewFilePersister(cfg.Index.Path), nil
	case "sqlite":
		return p.DB.Persister(packName), nil
	default:
		p.Close()
		return nil, eris.Errorf("pipeline: unknown index backend %q (supported: file, sqlite)", cfg.Index.Backend)
	}
}

// Crawler builds a polite seed crawler from the crawl settings
func (p *Pipeline) Crawler() *Crawler {
	cfg := p.Config
	limiter := worker.NewLimiter(cfg.Crawl.RequestsPerSecond, cfg.Crawl.Burst,
		time.Duration(cfg.Crawl.SleepMillis)*time.Millisecond)

	var robots *util.RobotsChecker
	if cfg.Crawl.RespectRobots {
		robots = util.NewRobotsChecker(cfg.HTTP.UserAgent, time.Duration(cfg.HTTP.TimeoutSecs)*time.Second, 24*time.Hour)
	}
	return NewCrawler(p.Fetcher, p.Registry, limiter, robots, CrawlerOptions{
		MaxDepth:          cfg.Crawl.MaxDepth,
		MaxPagesPerDomain: cfg.Crawl.MaxPagesPerDomain,
		MinTextLen:        cfg.Crawl.MinTextLen,
	})
}

// BuildIndex crawls the seeds, embeds the pages and publishes and persists
// the new pack, replacing the current one
func (p *Pipeline) BuildIndex(ctx context.Context, seeds []string) (index.BuildStats, error) {
	cfg := p.Config
	builder := index.NewBuilder(p.Crawler(), p.Embedder, index.BuildOptions{
		Workers:       cfg.Crawl.Workers,
		MinTextLen:    cfg.Crawl.MinTextLen,
		ChunkWindow:   cfg.Index.ChunkWindow,
		ChunkStep:     cfg.Index.ChunkStep,
		EmbedBatch:    cfg.Index.EmbedBatch,
		FallbackBatch: cfg.Index.FallbackBatch,
	})

	pack, stats, err := builder.Build(ctx, seeds)
	if err != nil {
		return stats, err
	}
	if err := p.Index.Replace(ctx, pack); err != nil {
		return stats, eris.Wrap(err, "pipeline: publish index")
	}
	return stats, nil
}

// Close releases the SQLite store
func (p *Pipeline) Close() {
	if p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Warn("closing store", zap.Error(err))
		}
		p.DB = nil
	}
}
