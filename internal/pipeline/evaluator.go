// Package pipeline wires fetching, extraction, retrieval, re-ranking and
// scoring into crawls and evaluations.
package pipeline

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/chunk"
	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/extract/adapters"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/nli"
	"github.com/ppiankov/veriscope/internal/retrieve"
	"github.com/ppiankov/veriscope/internal/score"
	"github.com/ppiankov/veriscope/internal/util"
	"github.com/ppiankov/veriscope/internal/validate"
)

// Query is one evaluation request. Exactly one of URL and Text is set.
// Zero thresholds fall back to the configured values.
type Query struct {
	URL             string
	Text            string
	Title           string
	Source          model.QuerySource // text or image for Text queries
	MinChars        int
	SimilarityFloor float64
	NLIBatchSize    int
}

func (q Query) source() model.QuerySource {
	if strings.TrimSpace(q.URL) != "" {
		return model.SourceURL
	}
	if q.Source == model.SourceImage {
		return model.SourceImage
	}
	return model.SourceText
}

// EvaluationLog records finished evaluations
type EvaluationLog interface {
	LogEvaluation(ctx context.Context, url string, source model.QuerySource, res model.Result) (string, error)
}

// Deps are the services an Evaluator works with. Embedder, Classifier and
// Index are required; Fetcher is required for URL queries.
type Deps struct {
	Embedder   embed.Embedder
	Classifier nli.Classifier
	Index      *index.Store
	Fetcher    *Fetcher
	Registry   *adapters.Registry
	Resolver   *validate.Resolver
	Log        EvaluationLog
	Clock      func() time.Time
}

// Evaluator scores the credibility of one article against the index
type Evaluator struct {
	cfg       *config.Config
	deps      Deps
	engine    *score.Engine
	retriever *retrieve.Retriever
	now       func() time.Time
}

// NewEvaluator creates an evaluator. A nil config uses the defaults.
func NewEvaluator(cfg *config.Config, deps Deps) (*Evaluator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	switch {
	case deps.Embedder == nil:
		return nil, eris.New("pipeline: evaluator needs an embedder")
	case deps.Classifier == nil:
		return nil, eris.New("pipeline: evaluator needs an NLI classifier")
	case deps.Index == nil:
		return nil, eris.New("pipeline: evaluator needs an index store")
	}
	if deps.Registry == nil {
		deps.Registry = adapters.NewRegistry()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Evaluator{
		cfg:       cfg,
		deps:      deps,
		engine:    score.NewEngine(cfg, score.WithClock(now)),
		retriever: retrieve.NewRetriever(deps.Embedder, cfg.Retrieval.TopK),
		now:       now,
	}, nil
}

// EvaluateURL evaluates the article at rawURL
func (e *Evaluator) EvaluateURL(ctx context.Context, rawURL string) model.Result {
	return e.Evaluate(ctx, Query{URL: rawURL})
}

// Evaluate runs one evaluation. It never returns an error: failures are
// reported as a failure Result. Finding no evidence is a success with
// NoEvidence set.
func (e *Evaluator) Evaluate(ctx context.Context, q Query) model.Result {
	start := time.Now()
	res := e.evaluate(ctx, q)

	if res.OK() {
		zap.L().Info("evaluation finished",
			zap.String("url", q.URL),
			zap.Int("score", res.Report.Score.Percent),
			zap.String("level", string(res.Report.Score.Level)),
			zap.Int("evidence", len(res.Report.Evidence)),
			zap.Duration("took", time.Since(start)))
	} else {
		zap.L().Warn("evaluation failed",
			zap.String("url", q.URL),
			zap.String("kind", string(res.Failure.Kind)),
			zap.String("error", res.Failure.Message))
	}

	if e.deps.Log != nil && e.cfg.Store.LogEvaluations {
		if _, err := e.deps.Log.LogEvaluation(context.WithoutCancel(ctx), q.URL, q.source(), res); err != nil {
			zap.L().Warn("evaluation log write failed", zap.String("url", q.URL), zap.Error(err))
		}
	}
	return res
}

// stageError carries the failure kind of a terminal evaluation error
type stageError struct {
	kind model.ErrorKind
	err  error
}

func (s *stageError) Error() string { return s.err.Error() }
func (s *stageError) Unwrap() error { return s.err }

func failWith(kind model.ErrorKind, err error) error {
	return &stageError{kind: kind, err: err}
}

func resultFrom(ctx context.Context, err error) model.Result {
	var se *stageError
	switch {
	case ctx.Err() != nil:
		return model.Failed(model.KindCanceled, ctx.Err().Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.Failed(model.KindCanceled, err.Error())
	case errors.As(err, &se):
		return model.Failed(se.kind, se.err.Error())
	default:
		return model.FailedFrom(err)
	}
}

func (e *Evaluator) evaluate(ctx context.Context, q Query) model.Result {
	if err := ctx.Err(); err != nil {
		return model.Failed(model.KindCanceled, err.Error())
	}
	rc := e.cfg.Retrieval
	source := q.source()

	article, err := e.input(ctx, q)
	if err != nil {
		return resultFrom(ctx, err)
	}

	minChars := q.MinChars
	if minChars <= 0 {
		minChars = e.minChars(source)
	}
	clean := util.CleanText(article.Text)
	queryLen := util.RuneLen(clean)
	if queryLen < minChars {
		return resultFrom(ctx, failWith(model.KindExtractionFailure,
			eris.Wrapf(model.ErrInsufficientText, "pipeline: %d characters, need %d", queryLen, minChars)))
	}

	snap := e.deps.Index.Snapshot()
	if snap == nil || snap.Rows() == 0 {
		return resultFrom(ctx, failWith(model.KindEmptyCorpus, eris.Wrap(model.ErrEmptyCorpus, "pipeline: index has no rows")))
	}
	if m := e.deps.Embedder.Model(); snap.ModelName != "" && m != snap.ModelName {
		return resultFrom(ctx, failWith(model.KindModelFailure,
			eris.Errorf("pipeline: embedder %q does not match index model %q", m, snap.ModelName)))
	}

	// sentence boundaries such as 。 do not survive CleanText, so windows
	// are cut from the raw text and cleaned one by one
	text := util.NormalizeSpace(article.Text)
	chunker := chunk.New(
		chunk.WithWindow(e.cfg.Index.ChunkWindow),
		chunk.WithStep(e.cfg.Index.ChunkStep),
		chunk.WithMinLen(index.AppendMinLen(e.cfg.Crawl.MinTextLen)),
	)
	chunks := chunker.Chunk(text)
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	queryChunks := make([]string, len(chunks))
	for i, c := range chunks {
		queryChunks[i] = util.CleanText(c)
	}

	vecs, err := e.retriever.EmbedQuery(ctx, queryChunks)
	if err != nil {
		return resultFrom(ctx, err)
	}
	hits, sims, err := e.retriever.Search(ctx, snap, vecs)
	if err != nil {
		return resultFrom(ctx, err)
	}

	base := rc.SimilarityFloor
	if q.SimilarityFloor > 0 {
		base = q.SimilarityFloor
	}
	info := model.RetrievalInfo{
		Floor:      retrieve.AdaptiveFloor(queryLen, base),
		FinalFloor: score.FinalFloor(queryLen, rc.MinFinalScore),
	}
	candidates := retrieve.AboveFloor(hits, info.Floor)
	if retrieve.NeedsFallback(len(candidates), queryLen, source) {
		keywords := score.Keywords(clean)
		if len(keywords) > rc.FallbackKeywords {
			keywords = keywords[:rc.FallbackKeywords]
		}
		info.KeywordSearch = true
		info.Keywords = keywords
		candidates = retrieve.KeywordSearch(snap, keywords, sims, rc.FallbackLimit)
		zap.L().Debug("keyword fallback",
			zap.Strings("keywords", keywords), zap.Int("hits", len(candidates)))
	}
	info.Candidates = len(candidates)

	self := ""
	if source == model.SourceURL {
		self = util.CanonicalURL(article.URL)
	}
	cands, dropped, err := e.rerank(ctx, q, snap, candidates, text, self)
	if err != nil {
		return resultFrom(ctx, err)
	}
	info.Dropped = dropped

	sq := score.Query{
		URL:       self,
		Title:     article.Title,
		Text:      clean,
		Raw:       article.Text,
		Published: article.Published,
		Floor:     info.Floor,
		MinFinal:  info.FinalFloor,
	}
	fused, stats := e.engine.Fuse(sq, cands)
	info.Fused = stats.Out
	zap.L().Debug("fusion", zap.Any("stats", stats))

	kept := score.Dedup(fused, e.engine.DedupOptions())
	evidence := score.ToEvidence(kept)
	if evidence == nil {
		evidence = []model.Evidence{}
	}

	report := &model.Report{
		ID: uuid.NewString(),
		Query: model.QueryInfo{
			URL:       self,
			Title:     article.Title,
			Source:    source,
			Chars:     queryLen,
			Chunks:    len(chunks),
			Published: article.Published,
			Year:      e.engine.QueryYear(sq),
		},
		EvaluatedAt: e.now().UTC(),
		Score:       e.engine.Aggregate(sq, kept),
		Evidence:    evidence,
		NoEvidence:  len(kept) == 0,
		Retrieval:   info,
		Index:       model.IndexInfo{Model: snap.ModelName, Rows: snap.Rows()},
	}

	if source == model.SourceURL && e.cfg.Index.Grow {
		appended, err := e.deps.Index.Append(ctx, index.AppendRequest{
			URL:       self,
			Title:     article.Title,
			Text:      article.Text,
			Published: article.Published,
		})
		switch {
		case errors.Is(err, model.ErrInsufficientText):
			zap.L().Debug("article too short to index", zap.String("url", self))
		case err != nil:
			zap.L().Warn("index append failed", zap.String("url", self), zap.Error(err))
		}
		report.Appended = appended
	}

	return model.Succeeded(report)
}

// input produces the query article: fetched and extracted for URL queries,
// as given for text queries
func (e *Evaluator) input(ctx context.Context, q Query) (model.Article, error) {
	rawURL := strings.TrimSpace(q.URL)
	text := strings.TrimSpace(q.Text)
	switch {
	case rawURL == "" && text == "":
		return model.Article{}, failWith(model.KindInvalidInput, eris.New("pipeline: query needs a url or text"))
	case rawURL != "" && text != "":
		return model.Article{}, failWith(model.KindInvalidInput, eris.New("pipeline: query has both url and text"))
	case text != "":
		return model.Article{Title: q.Title, Text: text}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.Article{}, failWith(model.KindInvalidInput, eris.Errorf("pipeline: invalid url %q", rawURL))
	}
	if e.deps.Fetcher == nil {
		return model.Article{}, failWith(model.KindInvalidInput, eris.New("pipeline: url queries need a fetcher"))
	}

	target := rawURL
	if e.deps.Resolver != nil {
		resolved, err := e.deps.Resolver.Resolve(ctx, rawURL)
		if err != nil {
			zap.L().Warn("short url not resolved", zap.String("url", rawURL), zap.Error(err))
		}
		target = resolved
	}

	page, err := e.deps.Fetcher.FetchPage(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return model.Article{}, ctx.Err()
		}
		return model.Article{}, failWith(model.KindExtractionFailure, err)
	}
	final := page.FinalURL
	if final == "" {
		final = target
	}

	article := e.deps.Registry.Extract(final, page.HTML)
	if article.Empty() {
		return model.Article{}, failWith(model.KindExtractionFailure,
			eris.Wrapf(model.ErrInsufficientText, "pipeline: no article text at %s", final))
	}
	if article.Title == "" {
		article.Title = q.Title
	}
	zap.L().Debug("query article extracted",
		zap.String("url", final),
		zap.String("extractor", article.Extractor),
		zap.Int("chars", article.Len()))
	return article, nil
}

// rerank classifies the retrieved rows against a summary of text. The
// query's own article is skipped. Rows the classifier cannot score are
// dropped and counted.
func (e *Evaluator) rerank(ctx context.Context, q Query, snap *index.Pack, hits []retrieve.Hit, text, self string) ([]score.Candidate, int, error) {
	if len(hits) == 0 {
		return nil, 0, nil
	}
	hypothesis := chunk.Summarize(text, e.cfg.NLI.SummarySentences)

	kept := make([]retrieve.Hit, 0, len(hits))
	pairs := make([]nli.Pair, 0, len(hits))
	for _, h := range hits {
		rec := snap.Records[h.Index]
		if self != "" && util.CanonicalURL(rec.URL) == self {
			continue
		}
		kept = append(kept, h)
		pairs = append(pairs, nli.Pair{Premise: rec.Chunk, Hypothesis: hypothesis})
	}

	batch := e.cfg.NLI.BatchSize
	if q.NLIBatchSize > 0 {
		batch = q.NLIBatchSize
	}
	outcomes, err := nli.NewReranker(e.deps.Classifier, batch, e.cfg.NLI.MaxChars).Rerank(ctx, pairs)
	if err != nil {
		return nil, 0, err
	}

	dropped := 0
	cands := make([]score.Candidate, 0, len(kept))
	for i, o := range outcomes {
		if !o.OK {
			dropped++
			continue
		}
		h := kept[i]
		cands = append(cands, score.Candidate{
			EvidenceCandidate: model.EvidenceCandidate{
				RecordIndex:   h.Index,
				Similarity:    h.Similarity,
				Support:       o.Support(),
				Contradiction: o.Contradiction,
				Fallback:      h.Fallback,
			},
			Record: snap.Records[h.Index],
		})
	}
	if dropped > 0 {
		zap.L().Warn("nli dropped candidates", zap.Int("dropped", dropped), zap.Int("pairs", len(pairs)))
	}
	return cands, dropped, nil
}

func (e *Evaluator) minChars(source model.QuerySource) int {
	rc := e.cfg.Retrieval
	switch source {
	case model.SourceURL:
		return rc.MinURLChars
	case model.SourceImage:
		return rc.MinImageChars
	default:
		return rc.MinTextChars
	}
}

// Index returns the store the evaluator reads from
func (e *Evaluator) Index() *index.Store {
	return e.deps.Index
}
