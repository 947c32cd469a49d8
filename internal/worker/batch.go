package worker

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// SeedCrawler crawls one seed site
type SeedCrawler interface {
	Crawl(ctx context.Context, seed string) ([]model.Page, error)
}

// SeedJob crawls a single seed
type SeedJob struct {
	Seed    string
	Crawler SeedCrawler
	// Done is called after the crawl, from the worker goroutine
	Done func(seed string, pages int, err error)
}

// SeedResult holds the pages of one seed
type SeedResult struct {
	Seed  string
	Pages []model.Page
	Error error
}

func (r *SeedResult) GetError() error { return r.Error }

func (j *SeedJob) Execute(ctx context.Context) Result {
	pages, err := j.Crawler.Crawl(ctx, j.Seed)
	if j.Done != nil {
		j.Done(j.Seed, len(pages), err)
	}
	return &SeedResult{Seed: j.Seed, Pages: pages, Error: err}
}

// URLEvaluator evaluates one article URL
type URLEvaluator interface {
	EvaluateURL(ctx context.Context, url string) model.Result
}

// EvalJob evaluates a single URL
type EvalJob struct {
	Index     int
	URL       string
	Evaluator URLEvaluator
}

// EvalResult is the outcome for one URL of a batch
type EvalResult struct {
	Index  int
	URL    string
	Result model.Result
}

// GetError reports a failed evaluation as an error
func (r *EvalResult) GetError() error {
	if r.Result.Success {
		return nil
	}
	if r.Result.Failure == nil {
		return eris.New("worker: evaluation failed")
	}
	return eris.Errorf("%s: %s", r.Result.Failure.Kind, r.Result.Failure.Message)
}

func (j *EvalJob) Execute(ctx context.Context) Result {
	return &EvalResult{Index: j.Index, URL: j.URL, Result: j.Evaluator.EvaluateURL(ctx, j.URL)}
}

// BatchProcessor evaluates many URLs concurrently
type BatchProcessor struct {
	evaluator   URLEvaluator
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(evaluator URLEvaluator, concurrency int) *BatchProcessor {
	return &BatchProcessor{evaluator: evaluator, concurrency: concurrency}
}

// ProcessURLs evaluates urls and returns results in input order. URLs that
// could not be submitted because ctx was cancelled get a canceled failure.
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*EvalResult {
	out := make([]*EvalResult, len(urls))
	if len(urls) == 0 {
		return out
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	for i, u := range urls {
		if err := pool.Submit(&EvalJob{Index: i, URL: u, Evaluator: b.evaluator}); err != nil {
			break
		}
	}
	for _, r := range pool.Wait() {
		er := r.(*EvalResult)
		out[er.Index] = er
	}

	for i, r := range out {
		if r == nil {
			out[i] = &EvalResult{Index: i, URL: urls[i], Result: model.Failed(model.KindCanceled, "evaluation canceled")}
		}
	}
	return out
}

// ProcessFile reads URLs from a file and evaluates them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*EvalResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, err
	}
	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads one URL per line, skipping blanks and # comments
// and dropping duplicates by canonical form
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "worker: open url file")
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key := util.CanonicalURL(line)
		if !seen[key] {
			seen[key] = true
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "worker: scan url file")
	}
	return urls, nil
}
