// Package server exposes a repository backend over HTTP in the default
// repository layout, so that depot (or any Maven-compatible client) can
// resolve from and deploy to it.
//
// Routes:
//
//	GET, HEAD /*   serve a resource
//	PUT /*         store a resource (unless read-only)
//	GET /health    liveness check
//	GET /metrics   Prometheus metrics, when a handler is configured
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/errors"
)

// Options configure a [Server].
type Options struct {
	// ReadOnly rejects uploads with 405.
	ReadOnly bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *log.Logger
	// MaxUpload bounds the size of a single upload. Zero means 512 MiB.
	MaxUpload int64
}

// DefaultMaxUpload is the upload limit when [Options.MaxUpload] is zero.
const DefaultMaxUpload = 512 << 20

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o.MaxUpload <= 0 {
		o.MaxUpload = DefaultMaxUpload
	}
	return o
}

// Server serves one backend.
type Server struct {
	backend connector.Backend
	opts    Options
	router  chi.Router
}

// New creates a server for backend.
func New(backend connector.Backend, opts Options) *Server {
	s := &Server{backend: backend, opts: opts.WithDefaults()}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	r.Get("/*", s.get)
	r.Head("/*", s.get)
	r.Put("/*", s.put)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("repository server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK\n")
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if name == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	rc, size, err := s.backend.Open(r.Context(), name)
	if err != nil {
		s.fail(w, r, name, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType(name))
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.opts.Logger.Warn("response aborted", "resource", name, "error", err)
	}
}

func (s *Server) put(w http.ResponseWriter, r *http.Request) {
	if s.opts.ReadOnly {
		http.Error(w, "repository is read-only", http.StatusMethodNotAllowed)
		return
	}
	name := resourceName(r)
	if name == "" || strings.HasSuffix(name, "/") {
		http.Error(w, "missing resource name", http.StatusBadRequest)
		return
	}
	if r.ContentLength > s.opts.MaxUpload {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)
	if err := s.backend.Put(r.Context(), name, body, r.ContentLength); err != nil {
		s.fail(w, r, name, err)
		return
	}
	s.opts.Logger.Debug("stored", "resource", name, "bytes", r.ContentLength)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case stderrors.Is(err, connector.ErrResourceMissing):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, errors.ErrCodeInvalidPath), errors.Is(err, errors.ErrCodeInvalidInput):
		http.Error(w, errors.UserMessage(err), http.StatusBadRequest)
	case stderrors.As(err, &maxErr):
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
	default:
		s.opts.Logger.Error("request failed", "method", r.Method, "resource", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func resourceName(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".pom"), strings.HasSuffix(name, ".xml"):
		return "application/xml"
	case strings.HasSuffix(name, ".jar"):
		return "application/java-archive"
	case strings.HasSuffix(name, ".sha1"), strings.HasSuffix(name, ".md5"):
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
