package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/ppiankov/veriscope/internal/cache"
	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/util"
)

const defaultFetchAttempts = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// StatusError is returned for responses outside the 2xx range
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || (e.Code >= 500 && e.Code < 600)
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Timeout         time.Duration
	UserAgent       string
	MobileUserAgent string
	MaxBytes        int64
	MaxAttempts     int
	InsecureTLS     bool
	HTTPProxy       string
	HTTPSProxy      string
	NoProxy         string
	MobileFirst     []string // hosts fetched with the mobile UA first
}

// FetcherOptionsFrom converts the HTTP section of the config
func FetcherOptionsFrom(h config.HTTPConfig) FetcherOptions {
	return FetcherOptions{
		Timeout:         time.Duration(h.TimeoutSecs) * time.Second,
		UserAgent:       h.UserAgent,
		MobileUserAgent: h.MobileUserAgent,
		MaxBytes:        h.MaxBodyBytes,
		MaxAttempts:     h.MaxAttempts,
		InsecureTLS:     h.InsecureTLS,
		HTTPProxy:       h.HTTPProxy,
		HTTPSProxy:      h.HTTPSProxy,
		NoProxy:         h.NoProxy,
		MobileFirst:     h.MobileFirst,
	}
}

// Fetcher fetches HTML content from URLs
type Fetcher struct {
	httpClient *http.Client
	opts       FetcherOptions
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 4_000_000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultFetchAttempts
	}

	transport := &http.Transport{Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return eris.New("stopped after 5 redirects")
				}
				return nil
			},
		},
		opts: opts,
	}
}

// WithCache stores fetched pages in c for ttl. A nil cache disables caching.
func (f *Fetcher) WithCache(c cache.Cache, ttl time.Duration) *Fetcher {
	f.cache = c
	f.cacheTTL = ttl
	return f
}

// FetchResult contains the fetched HTML and response metadata
type FetchResult struct {
	HTML        string
	StatusCode  int
	ContentType string
	FinalURL    string
	Mobile      bool // fetched with the mobile user agent
	Cached      bool
}

// Fetch retrieves HTML content from the given URL with the desktop user
// agent, once
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.fetch(ctx, rawURL, f.opts.UserAgent)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, userAgent string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}

	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")
	limited := io.LimitReader(resp.Body, f.opts.MaxBytes)
	// Korean portals still serve EUC-KR; decode to UTF-8 from the header or meta tag
	body, err := charset.NewReader(limited, contentType)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	return &FetchResult{
		HTML:        string(raw),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// FetchWithRetry fetches with the desktop user agent and retries transient
// failures (429, 5xx, connection errors) with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.fetchWithRetry(ctx, rawURL, f.opts.UserAgent)
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL, userAgent string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		result, err := f.fetch(ctx, rawURL, userAgent)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < f.opts.MaxAttempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			zap.L().Debug("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			fetchSleepFunc(backoff)
		}
	}
	return nil, lastErr
}

// FetchPage fetches a query article. The desktop user agent is tried first
// and the mobile one second, in reverse order for mobile-first hosts. A
// response without a body counts as a failure so the other agent gets a try.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*FetchResult, error) {
	type agent struct {
		ua     string
		mobile bool
	}
	agents := []agent{{f.opts.UserAgent, false}}
	if f.opts.MobileUserAgent != "" {
		agents = append(agents, agent{f.opts.MobileUserAgent, true})
		if f.mobileFirst(rawURL) {
			agents[0], agents[1] = agents[1], agents[0]
		}
	}

	var lastErr error
	for _, a := range agents {
		key := cache.Key("page", strconv.FormatBool(a.mobile), rawURL)
		if res, ok := f.cached(ctx, key); ok {
			res.Mobile = a.mobile
			return res, nil
		}

		res, err := f.fetchWithRetry(ctx, rawURL, a.ua)
		if err == nil && strings.TrimSpace(res.HTML) == "" {
			err = eris.Errorf("empty body from %s", rawURL)
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			zap.L().Debug("fetch failed, trying next user agent",
				zap.String("url", rawURL), zap.Bool("mobile", a.mobile), zap.Error(err))
			continue
		}

		res.Mobile = a.mobile
		f.store(ctx, key, res)
		return res, nil
	}
	return nil, eris.Wrapf(lastErr, "pipeline: fetch %s", rawURL)
}

func (f *Fetcher) mobileFirst(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, h := range f.opts.MobileFirst {
		if util.HasDomainSuffix(host, h) {
			return true
		}
	}
	return false
}

// cached pages are stored as "<final url>\n<html>"
func (f *Fetcher) cached(ctx context.Context, key string) (*FetchResult, bool) {
	if f.cache == nil {
		return nil, false
	}
	buf, ok := f.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	finalURL, html, ok := strings.Cut(string(buf), "\n")
	if !ok || html == "" {
		return nil, false
	}
	return &FetchResult{HTML: html, StatusCode: http.StatusOK, FinalURL: finalURL, Cached: true}, true
}

func (f *Fetcher) store(ctx context.Context, key string, res *FetchResult) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, key, []byte(res.FinalURL+"\n"+res.HTML), f.cacheTTL); err != nil {
		zap.L().Warn("page cache write failed", zap.String("url", res.FinalURL), zap.Error(err))
	}
}

// isRetryableFetchError returns true for transient HTTP errors (5xx, 429,
// connection errors)
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
