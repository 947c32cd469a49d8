package validate

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/util"
)

const resolveMaxRetries = 3

// resolveSleepFunc is the sleep function used between retries (injectable for tests)
var resolveSleepFunc = time.Sleep

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	Timeout     time.Duration
	UserAgent   string
	Shorteners  []string
	InsecureTLS bool
	HTTPProxy   string
	HTTPSProxy  string
	NoProxy     string
}

// Resolver expands short links (naver.me, bit.ly, ...) to the article URL
// they redirect to
type Resolver struct {
	httpClient *http.Client
	userAgent  string
	shorteners []string
}

// NewResolver creates a short-link resolver
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	proxyFunc := util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy)
	transport := &http.Transport{Proxy: proxyFunc}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Resolver{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return eris.New("validate: stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent:  opts.UserAgent,
		shorteners: opts.Shorteners,
	}
}

// IsShortened reports whether rawURL is on a known shortener host
func (r *Resolver) IsShortened(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, s := range r.shorteners {
		if util.HasDomainSuffix(host, s) {
			return true
		}
	}
	return false
}

// Resolve follows the redirects of a short link and returns the final URL.
// URLs that are not on a shortener host are returned unchanged. When the
// link cannot be resolved the original URL is returned with the error.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if !r.IsShortened(rawURL) {
		return rawURL, nil
	}

	final, status, err := r.resolveWithRetry(ctx, http.MethodHead, rawURL)
	if err != nil || status >= 400 {
		// some shorteners reject HEAD
		final, status, err = r.resolveWithRetry(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		return rawURL, eris.Wrapf(err, "validate: resolve %s", rawURL)
	}
	if status >= 400 {
		return rawURL, eris.Errorf("validate: resolve %s: status %d", rawURL, status)
	}

	if final != rawURL {
		zap.L().Debug("resolved short url", zap.String("url", rawURL), zap.String("resolved", final))
	}
	return final, nil
}

// resolveOnce issues one request and returns the URL the client ended up at
func (r *Resolver) resolveOnce(ctx context.Context, method, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if method == http.MethodGet {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}

	return resp.Request.URL.String(), resp.StatusCode, nil
}

// resolveWithRetry retries transient failures with exponential backoff
func (r *Resolver) resolveWithRetry(ctx context.Context, method, rawURL string) (string, int, error) {
	var (
		final  string
		status int
		err    error
	)
	for attempt := 0; attempt < resolveMaxRetries; attempt++ {
		final, status, err = r.resolveOnce(ctx, method, rawURL)
		if !isRetryable(status, err) || ctx.Err() != nil {
			return final, status, err
		}
		if attempt < resolveMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			resolveSleepFunc(backoff)
		}
	}
	return final, status, err
}

// isRetryable returns true for transient failures
func isRetryable(status int, err error) bool {
	if err != nil {
		return isRetryableNetworkError(err.Error())
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
