package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/chunk"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// AppendRequest is one article to add to the index after evaluation
type AppendRequest struct {
	URL       string
	Title     string
	Text      string
	Published *time.Time
}

// Store publishes pack snapshots to concurrent readers. Readers call
// Snapshot and never block; writers are serialised and swap in a new pack.
type Store struct {
	current   atomic.Pointer[Pack]
	mu        sync.Mutex
	embedder  embed.Embedder
	chunker   *chunk.Chunker
	persister Persister
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithPersister saves every new snapshot through p
func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persister = p }
}

// WithChunking sets the sentence window and step used for appended
// articles and derives the minimum chunk length from minTextLen
func WithChunking(window, step, minTextLen int) StoreOption {
	return func(s *Store) {
		s.chunker = chunk.New(
			chunk.WithWindow(window),
			chunk.WithStep(step),
			chunk.WithMinLen(AppendMinLen(minTextLen)),
		)
	}
}

// AppendMinLen is the minimum chunk length for appended articles
func AppendMinLen(minTextLen int) int {
	return max(120, minTextLen/2)
}

// NewStore wraps an initial pack. pack may be nil for an empty store.
func NewStore(pack *Pack, embedder embed.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		embedder: embedder,
		chunker:  chunk.New(chunk.WithMinLen(AppendMinLen(chunk.DefaultConfig().MinLen))),
	}
	for _, o := range opts {
		o(s)
	}
	if pack != nil {
		s.current.Store(pack)
	}
	return s
}

// Snapshot returns the current pack, or nil if the store is empty
func (s *Store) Snapshot() *Pack {
	return s.current.Load()
}

// Replace publishes p as the new snapshot and persists it
func (s *Store) Replace(ctx context.Context, p *Pack) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(p)
	return s.persist(ctx, p)
}

// Append chunks, embeds and adds one article. It reports false without
// changing anything when a record with exactly this URL already exists.
func (s *Store) Append(ctx context.Context, req AppendRequest) (bool, error) {
	if req.URL == "" {
		return false, eris.New("index: append without url")
	}
	text := util.NormalizeSpace(req.Text)
	if text == "" {
		return false, eris.Wrap(model.ErrInsufficientText, "index: append")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return false, eris.Wrap(model.ErrEmptyCorpus, "index: append to empty store")
	}
	if cur.HasURL(req.URL) {
		zap.L().Debug("url already indexed", zap.String("url", req.URL))
		return false, nil
	}
	if m := s.embedder.Model(); cur.ModelName != "" && m != cur.ModelName {
		return false, eris.Errorf("index: embedder %q does not match index model %q", m, cur.ModelName)
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return false, eris.Wrapf(model.ErrInsufficientText, "index: %s too short to index", req.URL)
	}

	cleaned := make([]string, len(chunks))
	for i, c := range chunks {
		cleaned[i] = util.CleanText(c)
	}
	vecs, err := embed.EncodeNormalized(ctx, s.embedder, cleaned)
	if err != nil {
		return false, eris.Wrapf(model.ErrModelFailure, "index: embed appended article: %v", err)
	}

	domain := util.DomainOf(req.URL)
	var (
		rows    [][]float32
		records []model.DocRecord
	)
	for i, v := range vecs {
		if v == nil {
			continue
		}
		rows = append(rows, v)
		records = append(records, model.DocRecord{
			URL:       req.URL,
			Title:     req.Title,
			Published: req.Published,
			Chunk:     chunks[i],
			Domain:    domain,
			FromSeed:  false,
		})
	}
	if len(rows) == 0 {
		return false, eris.Wrap(model.ErrModelFailure, "index: no usable vectors for appended article")
	}

	next, err := cur.Append(rows, records)
	if err != nil {
		return false, err
	}
	s.current.Store(next)
	zap.L().Info("appended article to index",
		zap.String("url", req.URL), zap.Int("chunks", len(rows)), zap.Int("rows", next.Rows()))

	if err := s.persist(ctx, next); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) persist(ctx context.Context, p *Pack) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, p); err != nil {
		return eris.Wrap(err, "index: persist")
	}
	return nil
}
