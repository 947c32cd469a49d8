package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/cache"
)

func testFetcher() *Fetcher {
	return NewFetcher(FetcherOptions{
		Timeout:         5 * time.Second,
		UserAgent:       "test-agent",
		MobileUserAgent: "test-mobile",
		MaxBytes:        1 << 20,
	})
}

func noSleep(t *testing.T) {
	t.Helper()
	origSleep := fetchSleepFunc
	fetchSleepFunc = func(d time.Duration) {}
	t.Cleanup(func() { fetchSleepFunc = origSleep })
}

func TestFetchWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body>OK</body></html>")
	}))
	defer server.Close()

	result, err := testFetcher().FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.HTML != "<html><body>OK</body></html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()
	noSleep(t)

	result, err := testFetcher().FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if result.HTML != "<html>OK</html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	noSleep(t)

	_, err := testFetcher().FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}
	// 404 is not retryable, so should fail immediately
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("Expected *StatusError with code 404, got %v", err)
	}
	if got := err.Error(); got != "unexpected status: 404 404 Not Found" {
		t.Errorf("Unexpected error: %s", got)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_AllRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	noSleep(t)

	_, err := testFetcher().FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error after all retries exhausted")
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_429Retried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()
	noSleep(t)

	result, err := testFetcher().FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if result.HTML != "<html>OK</html>" {
		t.Errorf("Unexpected HTML: %s", result.HTML)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetch_DecodesEUCKR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		_, _ = w.Write([]byte("<p>\xc7\xd1\xb1\xb9</p>"))
	}))
	defer server.Close()

	result, err := testFetcher().Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.HTML != "<p>한국</p>" {
		t.Errorf("Expected decoded hangul, got %q", result.HTML)
	}
}

func TestFetchPage_MobileFallback(t *testing.T) {
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.UserAgent())
		if r.UserAgent() != "test-mobile" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = fmt.Fprint(w, "<html>mobile</html>")
	}))
	defer server.Close()
	noSleep(t)

	result, err := testFetcher().FetchPage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected mobile fallback to succeed, got %v", err)
	}
	if !result.Mobile {
		t.Error("Expected result fetched with the mobile agent")
	}
	if strings.Join(agents, ",") != "test-agent,test-mobile" {
		t.Errorf("Unexpected agent order: %v", agents)
	}
}

func TestFetchPage_MobileFirstHost(t *testing.T) {
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.UserAgent())
		_, _ = fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	f := NewFetcher(FetcherOptions{
		UserAgent:       "test-agent",
		MobileUserAgent: "test-mobile",
		MobileFirst:     []string{"127.0.0.1"},
	})
	result, err := f.FetchPage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !result.Mobile || len(agents) != 1 || agents[0] != "test-mobile" {
		t.Errorf("Expected a single mobile request, got %v", agents)
	}
}

func TestFetchPage_EmptyBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := testFetcher().FetchPage(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for empty body")
	}
}

func TestFetchPage_Cached(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = fmt.Fprint(w, "<html>cached</html>")
	}))
	defer server.Close()

	f := testFetcher().WithCache(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)
	for i := 0; i < 3; i++ {
		result, err := f.FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if result.HTML != "<html>cached</html>" {
			t.Errorf("Unexpected HTML: %s", result.HTML)
		}
		if i > 0 && !result.Cached {
			t.Errorf("Expected cached result on call %d", i+1)
		}
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", attempts.Load())
	}
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"503", &StatusError{Code: 503, Status: "503 Service Unavailable"}, true},
		{"500", &StatusError{Code: 500, Status: "500 Internal Server Error"}, true},
		{"502", &StatusError{Code: 502, Status: "502 Bad Gateway"}, true},
		{"429", &StatusError{Code: 429, Status: "429 Too Many Requests"}, true},
		{"404", &StatusError{Code: 404, Status: "404 Not Found"}, false},
		{"403", &StatusError{Code: 403, Status: "403 Forbidden"}, false},
		{"401", &StatusError{Code: 401, Status: "401 Unauthorized"}, false},
		{"wrapped 503", eris.Wrap(&StatusError{Code: 503, Status: "503 Service Unavailable"}, "pipeline: fetch"), true},
		{"wrapped 404", eris.Wrapf(&StatusError{Code: 404, Status: "404 Not Found"}, "pipeline: fetch %s", "https://a.kr/1"), false},
		// status codes inside a URL or body text are not statuses
		{"code in url", eris.New("fetch: dial https://a.kr/unexpected status: 503"), false},
		{"connection refused", eris.New("fetch: connection refused"), true},
		{"connection reset", eris.New("fetch: connection reset by peer"), true},
		{"timeout", eris.New("fetch: i/o timeout"), true},
		{"net timeout", eris.Wrap(timeoutError{}, "fetch"), true},
		{"bad request", eris.New("create request: invalid URL"), false},
		{"short body", eris.New("read body: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryableFetchError(tt.err)
			if got != tt.retryable {
				t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "deadline" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryableFetchError_Nil(t *testing.T) {
	if isRetryableFetchError(nil) {
		t.Error("Expected nil error to not be retryable")
	}
}
