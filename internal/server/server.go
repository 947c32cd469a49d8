// Package server exposes the evaluator over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/pipeline"
)

const (
	maxRequestBytes = 1 << 20
	defaultTopN     = 10
)

// Server serves evaluation and index endpoints
type Server struct {
	cfg       config.ServerConfig
	evaluator *pipeline.Evaluator
	index     *index.Store
	router    chi.Router
}

// EvaluateRequest is the body of POST /api/v1/evaluate. Exactly one of URL
// and Text must be set.
type EvaluateRequest struct {
	URL             string  `json:"url,omitempty"`
	Text            string  `json:"text,omitempty"`
	Title           string  `json:"title,omitempty"`
	Source          string  `json:"source,omitempty"` // text or image, for text queries
	MinChars        int     `json:"min_chars,omitempty"`
	SimilarityFloor float64 `json:"similarity_floor,omitempty"`
	NLIBatchSize    int     `json:"nli_batch_size,omitempty"`
}

// New creates a server over ev
func New(cfg config.ServerConfig, ev *pipeline.Evaluator) *Server {
	s := &Server{cfg: cfg, evaluator: ev, index: ev.Index()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if cfg.TimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(cfg.TimeoutSecs) * time.Second))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/index", s.handleIndex)
	})
	s.router = r
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address from the config
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	writeTimeout := time.Duration(s.cfg.TimeoutSecs)*time.Second + 10*time.Second
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rows":   s.index.Snapshot().Rows(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	topN := defaultTopN
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		topN = n
	}
	writeJSON(w, http.StatusOK, s.index.Snapshot().Stats(topN))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeResult(w, model.Failed(model.KindInvalidInput, "invalid request body"))
		return
	}

	q := pipeline.Query{
		URL:             strings.TrimSpace(req.URL),
		Text:            req.Text,
		Title:           req.Title,
		MinChars:        req.MinChars,
		SimilarityFloor: req.SimilarityFloor,
		NLIBatchSize:    req.NLIBatchSize,
	}
	switch model.QuerySource(strings.ToLower(req.Source)) {
	case "", model.SourceText, model.SourceURL:
	case model.SourceImage:
		q.Source = model.SourceImage
	default:
		writeResult(w, model.Failed(model.KindInvalidInput, fmt.Sprintf("unknown source %q", req.Source)))
		return
	}

	writeResult(w, s.evaluator.Evaluate(r.Context(), q))
}

// statusFor maps a result to an HTTP status
func statusFor(res model.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	if res.Failure == nil {
		return http.StatusInternalServerError
	}
	switch res.Failure.Kind {
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindExtractionFailure:
		return http.StatusUnprocessableEntity
	case model.KindEmptyCorpus:
		return http.StatusServiceUnavailable
	case model.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeResult(w http.ResponseWriter, res model.Result) {
	writeJSON(w, statusFor(res), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("took", time.Since(start)))
	})
}
