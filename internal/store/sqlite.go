// Package store persists index snapshots and the evaluation log in SQLite.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
)

// SQLiteStore is the SQLite-backed store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS index_packs (
	name       TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dim        INTEGER NOT NULL,
	rows       INTEGER NOT NULL,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS evaluations (
	id          TEXT PRIMARY KEY,
	url         TEXT,
	source      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	score       INTEGER,
	level       TEXT,
	error_kind  TEXT,
	result      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_evaluations_url ON evaluations(url);
CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at);
`

// Migrate creates the schema
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePack stores p under name, replacing any previous blob
func (s *SQLiteStore) SavePack(ctx context.Context, name string, p *index.Pack) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := index.Encode(&buf, p); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_packs (name, model, dim, rows, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET model = excluded.model, dim = excluded.dim,
		 rows = excluded.rows, data = excluded.data, updated_at = excluded.updated_at`,
		name, p.ModelName, p.Dim, p.Rows(), buf.Bytes(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save pack %s", name)
}

// LoadPack returns the pack stored under name, or model.ErrNotFound
func (s *SQLiteStore) LoadPack(ctx context.Context, name string) (*index.Pack, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM index_packs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: pack %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load pack %s", name)
	}
	return index.Decode(bytes.NewReader(data))
}

// PackPersister adapts one named pack slot to index.Persister
type PackPersister struct {
	store *SQLiteStore
	name  string
}

// Persister returns an index.Persister for the pack stored under name
func (s *SQLiteStore) Persister(name string) *PackPersister {
	return &PackPersister{store: s, name: name}
}

func (p *PackPersister) Load(ctx context.Context) (*index.Pack, error) {
	return p.store.LoadPack(ctx, p.name)
}

func (p *PackPersister) Save(ctx context.Context, pack *index.Pack) error {
	return p.store.SavePack(ctx, p.name, pack)
}

// Evaluation is one logged evaluation result
type Evaluation struct {
	ID        string       `json:"id"`
	URL       string       `json:"url,omitempty"`
	Source    string       `json:"source"`
	Success   bool         `json:"success"`
	Score     int          `json:"score"`
	Level     string       `json:"level,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	Result    model.Result `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
}

// LogEvaluation appends a result to the evaluation log and returns its ID.
// Successful results reuse the report ID.
func (s *SQLiteStore) LogEvaluation(ctx context.Context, url string, source model.QuerySource, res model.Result) (string, error) {
	id := uuid.New().String()
	var (
		score     sql.NullInt64
		level     sql.NullString
		errorKind sql.NullString
	)
	if res.OK() {
		if res.Report.ID != "" {
			id = res.Report.ID
		}
		score = sql.NullInt64{Int64: int64(res.Report.Score.Percent), Valid: true}
		level = sql.NullString{String: string(res.Report.Score.Level), Valid: true}
	} else if res.Failure != nil {
		errorKind = sql.NullString{String: string(res.Failure.Kind), Valid: true}
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, url, source, success, score, level, error_kind, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, url, string(source), res.Success, score, level, errorKind, string(resultJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert evaluation")
	}
	return id, nil
}

// GetEvaluation returns one logged evaluation
func (s *SQLiteStore) GetEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, source, success, score, level, error_kind, result, created_at
		 FROM evaluations WHERE id = ?`, id)
	ev, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: evaluation %s", id)
	}
	return ev, err
}

// ListEvaluations returns the most recent evaluations, newest first.
// A non-empty url restricts the list to that URL.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, url string, limit int) ([]Evaluation, error) {
	query := `SELECT id, url, source, success, score, level, error_kind, result, created_at
		FROM evaluations WHERE 1=1`
	var args []any
	if url != "" {
		query += ` AND url = ?`
		args = append(args, url)
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evaluations")
	}
	defer func() { _ = rows.Close() }()

	var out []Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evaluations iterate")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(sc scanner) (*Evaluation, error) {
	var (
		ev        Evaluation
		url       sql.NullString
		score     sql.NullInt64
		level     sql.NullString
		errorKind sql.NullString
		result    string
	)
	err := sc.Scan(&ev.ID, &url, &ev.Source, &ev.Success, &score, &level, &errorKind, &result, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan evaluation")
	}
	ev.URL = url.String
	ev.Score = int(score.Int64)
	ev.Level = level.String
	ev.ErrorKind = errorKind.String
	if err := json.Unmarshal([]byte(result), &ev.Result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &ev, nil
}
