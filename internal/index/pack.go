// Package index holds the embedding index: an immutable Pack snapshot, the
// copy-on-write Store that grows it, the offline Builder, and persistence.
package index

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/model"
)

// Pack is one immutable snapshot of the index. Matrix holds len(Records)
// unit vectors of width Dim, row-major. A Pack is never modified after it
// has been published; growth goes through Append, which returns a new Pack.
type Pack struct {
	ModelName string
	Dim       int
	Matrix    []float32
	Records   []model.DocRecord
}

// NewPack builds a pack from rows and their records
func NewPack(modelName string, rows [][]float32, records []model.DocRecord) (*Pack, error) {
	if len(rows) != len(records) {
		return nil, eris.Errorf("index: %d rows for %d records", len(rows), len(records))
	}
	if len(rows) == 0 {
		return nil, eris.Wrap(model.ErrEmptyCorpus, "index: new pack")
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, eris.New("index: zero-width vectors")
	}

	matrix := make([]float32, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, eris.Errorf("index: row %d has width %d, want %d", i, len(r), dim)
		}
		matrix = append(matrix, r...)
	}

	recs := make([]model.DocRecord, len(records))
	copy(recs, records)
	return &Pack{ModelName: modelName, Dim: dim, Matrix: matrix, Records: recs}, nil
}

// Rows returns the number of indexed chunks
func (p *Pack) Rows() int {
	if p == nil {
		return 0
	}
	return len(p.Records)
}

// Row returns the vector of row i. The slice aliases the matrix and must not
// be modified.
func (p *Pack) Row(i int) []float32 {
	start := i * p.Dim
	return p.Matrix[start : start+p.Dim : start+p.Dim]
}

// Validate checks the rows/records invariant
func (p *Pack) Validate() error {
	if p == nil {
		return eris.New("index: nil pack")
	}
	if p.Dim <= 0 {
		return eris.Errorf("index: invalid dimension %d", p.Dim)
	}
	if len(p.Matrix) != len(p.Records)*p.Dim {
		return eris.Errorf("index: matrix holds %d values, want %d rows of %d",
			len(p.Matrix), len(p.Records), p.Dim)
	}
	return nil
}

// Append returns a new pack with rows and records added after the existing
// ones. The receiver is left untouched.
func (p *Pack) Append(rows [][]float32, records []model.DocRecord) (*Pack, error) {
	if len(rows) != len(records) {
		return nil, eris.Errorf("index: %d rows for %d records", len(rows), len(records))
	}
	for i, r := range rows {
		if len(r) != p.Dim {
			return nil, eris.Errorf("index: row %d has width %d, want %d", i, len(r), p.Dim)
		}
	}

	matrix := make([]float32, len(p.Matrix), len(p.Matrix)+len(rows)*p.Dim)
	copy(matrix, p.Matrix)
	for _, r := range rows {
		matrix = append(matrix, r...)
	}

	recs := make([]model.DocRecord, len(p.Records), len(p.Records)+len(records))
	copy(recs, p.Records)
	recs = append(recs, records...)

	return &Pack{ModelName: p.ModelName, Dim: p.Dim, Matrix: matrix, Records: recs}, nil
}

// HasURL reports whether any record was indexed from exactly this URL
func (p *Pack) HasURL(url string) bool {
	if p == nil {
		return false
	}
	for i := range p.Records {
		if p.Records[i].URL == url {
			return true
		}
	}
	return false
}

// DomainCount is the number of rows indexed for one domain
type DomainCount struct {
	Domain string `json:"domain" yaml:"domain"`
	Rows   int    `json:"rows" yaml:"rows"`
}

// Stats summarises a pack
type Stats struct {
	Model      string        `json:"model" yaml:"model"`
	Dim        int           `json:"dim" yaml:"dim"`
	Rows       int           `json:"rows" yaml:"rows"`
	URLs       int           `json:"urls" yaml:"urls"`
	SeedRows   int           `json:"seed_rows" yaml:"seed_rows"`
	AddedRows  int           `json:"added_rows" yaml:"added_rows"`
	Domains    int           `json:"domains" yaml:"domains"`
	TopDomains []DomainCount `json:"top_domains,omitempty" yaml:"top_domains,omitempty"`
}

// Stats computes row, URL and domain counts. topN limits TopDomains.
func (p *Pack) Stats(topN int) Stats {
	if p == nil {
		return Stats{}
	}
	s := Stats{Model: p.ModelName, Dim: p.Dim, Rows: len(p.Records)}

	urls := make(map[string]struct{})
	domains := make(map[string]int)
	for _, r := range p.Records {
		urls[r.URL] = struct{}{}
		domains[r.Domain]++
		if r.FromSeed {
			s.SeedRows++
		} else {
			s.AddedRows++
		}
	}
	s.URLs = len(urls)
	s.Domains = len(domains)

	for d, n := range domains {
		s.TopDomains = append(s.TopDomains, DomainCount{Domain: d, Rows: n})
	}
	sort.Slice(s.TopDomains, func(i, j int) bool {
		if s.TopDomains[i].Rows != s.TopDomains[j].Rows {
			return s.TopDomains[i].Rows > s.TopDomains[j].Rows
		}
		return s.TopDomains[i].Domain < s.TopDomains[j].Domain
	})
	if topN >= 0 && len(s.TopDomains) > topN {
		s.TopDomains = s.TopDomains[:topN]
	}
	return s
}
