package index

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/model"
)

// Persister loads and saves a whole pack as one blob
type Persister interface {
	Load(ctx context.Context) (*Pack, error)
	Save(ctx context.Context, p *Pack) error
}

// FilePersister stores the pack as a gzip-compressed gob file
type FilePersister struct {
	Path string
}

// NewFilePersister creates a file persister for path
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Load reads the pack. A missing file yields model.ErrNotFound.
func (f *FilePersister) Load(ctx context.Context) (*Pack, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(model.ErrNotFound, "index: %s", f.Path)
		}
		return nil, eris.Wrap(err, "index: open")
	}
	defer func() { _ = file.Close() }()

	return Decode(file)
}

// Save writes the pack to a temporary file and renames it into place
func (f *FilePersister) Save(ctx context.Context, p *Pack) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "index: create dir")
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "index: create temp")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := Encode(tmp, p); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "index: close temp")
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return eris.Wrap(err, "index: rename")
	}
	return nil
}

// Encode writes p as gzip-compressed gob
func Encode(w io.Writer, p *Pack) error {
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(p); err != nil {
		_ = zw.Close()
		return eris.Wrap(err, "index: encode")
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "index: flush")
	}
	return nil
}

// Decode reads a pack written by Encode and validates it
func Decode(r io.Reader) (*Pack, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "index: gzip header")
	}
	defer func() { _ = zr.Close() }()

	var p Pack
	if err := gob.NewDecoder(zr).Decode(&p); err != nil {
		return nil, eris.Wrap(err, "index: decode")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
