package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/veriscope/internal/model"
)

type mockEvaluator struct {
	fail  bool
	calls int32
}

func (m *mockEvaluator) EvaluateURL(ctx context.Context, url string) model.Result {
	atomic.AddInt32(&m.calls, 1)
	time.Sleep(5 * time.Millisecond)
	if m.fail {
		return model.Failed(model.KindExtractionFailure, "insufficient text")
	}
	return model.Succeeded(&model.Report{Query: model.QueryInfo{URL: url}})
}

type mockCrawler struct{}

func (mockCrawler) Crawl(ctx context.Context, seed string) ([]model.Page, error) {
	if seed == "bad" {
		return nil, errors.New("unreachable")
	}
	return []model.Page{{Seed: seed}}, nil
}

func TestBatchProcessor_ProcessURLs(t *testing.T) {
	eval := &mockEvaluator{}
	processor := NewBatchProcessor(eval, 2)

	urls := []string{"http://example.com/1", "http://example.com/2", "http://example.com/3"}
	results := processor.ProcessURLs(context.Background(), urls)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("result %d out of order: %s", i, res.URL)
		}
		if err := res.GetError(); err != nil {
			t.Errorf("unexpected error for %s: %v", res.URL, err)
		}
		if res.Result.Report == nil || res.Result.Report.Query.URL != urls[i] {
			t.Errorf("expected report for %s", urls[i])
		}
	}
}

func TestBatchProcessor_Failure(t *testing.T) {
	processor := NewBatchProcessor(&mockEvaluator{fail: true}, 2)
	results := processor.ProcessURLs(context.Background(), []string{"http://example.com"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].GetError() == nil {
		t.Error("expected error, got nil")
	}
	if results[0].Result.Failure.Kind != model.KindExtractionFailure {
		t.Errorf("unexpected kind %s", results[0].Result.Failure.Kind)
	}
}

func TestBatchProcessor_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eval := &mockEvaluator{}
	results := NewBatchProcessor(eval, 2).ProcessURLs(ctx, []string{"http://a.com", "http://b.com"})
	for _, r := range results {
		if r == nil {
			t.Fatal("every URL gets a result")
		}
		if r.Result.Success {
			t.Error("expected canceled failure")
		}
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	if res := NewBatchProcessor(&mockEvaluator{}, 2).ProcessURLs(context.Background(), nil); len(res) != 0 {
		t.Errorf("expected no results, got %d", len(res))
	}
}

func TestSeedJob(t *testing.T) {
	var done int32
	job := &SeedJob{Seed: "bad", Crawler: mockCrawler{}, Done: func(string, int, error) { atomic.AddInt32(&done, 1) }}
	res := job.Execute(context.Background()).(*SeedResult)
	if res.GetError() == nil {
		t.Error("expected crawl error")
	}

	job = &SeedJob{Seed: "good.com", Crawler: mockCrawler{}, Done: func(string, int, error) { atomic.AddInt32(&done, 1) }}
	res = job.Execute(context.Background()).(*SeedResult)
	if res.GetError() != nil || len(res.Pages) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if atomic.LoadInt32(&done) != 2 {
		t.Errorf("expected Done callback twice, got %d", done)
	}
}

func TestReadURLsFromFile(t *testing.T) {
	content := `
# comment
http://example.com/a?utm_source=x
http://example.com/a

http://example.com/b
`
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls, err := ReadURLsFromFile(path)
	if err != nil {
		t.Fatalf("ReadURLsFromFile failed: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 URLs, got %d: %v", len(urls), urls)
	}
	if urls[1] != "http://example.com/b" {
		t.Errorf("unexpected URL %s", urls[1])
	}

	if _, err := ReadURLsFromFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
