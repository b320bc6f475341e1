// Package httprepo implements a repository backend over HTTP(S): GET to
// download, PUT to upload and HEAD for existence checks. Transient failures
// are retried with exponential backoff.
package httprepo

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/buildinfo"
	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/httputil"
	"github.com/matzehuels/depot/pkg/observability"
	"github.com/matzehuels/depot/pkg/repository"
)

// Backend talks to one repository base URL.
type Backend struct {
	base     *url.URL
	client   *http.Client
	user     *url.Userinfo
	attempts int
	delay    time.Duration
	logger   *log.Logger
}

var _ connector.Backend = (*Backend)(nil)

// Option configures a [Backend].
type Option func(*Backend)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option { return func(b *Backend) { b.client = c } }

// WithRetry sets the attempt count and the initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(b *Backend) { b.attempts, b.delay = attempts, delay }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *log.Logger) Option { return func(b *Backend) { b.logger = l } }

// New creates a backend for baseURL. Credentials in the URL's user info are
// sent as basic auth and stripped from request URLs.
func New(baseURL string, opts ...Option) (*Backend, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.New(errors.ErrCodeInvalidInput, "not an http(s) repository URL: %q", baseURL)
	}
	b := &Backend{
		user:     u.User,
		client:   httputil.NewClient(),
		attempts: 3,
		delay:    time.Second,
	}
	u.User = nil
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	b.base = u
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Open is a [connector.BackendFunc] for http and https repositories.
func Open(_ context.Context, repo repository.RemoteRepository, logger *log.Logger) (connector.Backend, error) {
	opts := []Option{}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return New(repo.URL, opts...)
}

func (b *Backend) url(name string) (string, error) {
	if err := errors.ValidatePath(name); err != nil {
		return "", err
	}
	return b.base.ResolveReference(&url.URL{Path: name}).String(), nil
}

func (b *Backend) request(ctx context.Context, method, name string, body io.Reader) (*http.Request, error) {
	u, err := b.url(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if b.user != nil {
		pw, _ := b.user.Password()
		req.SetBasicAuth(b.user.Username(), pw)
	}
	return req, nil
}

// do sends a bodiless request with retries and returns the first response
// with an acceptable status.
func (b *Backend) do(ctx context.Context, method, name string) (*http.Response, error) {
	var resp *http.Response
	err := httputil.Retry(ctx, b.attempts, b.delay, func() error {
		req, err := b.request(ctx, method, name, nil)
		if err != nil {
			return err
		}
		r, err := b.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.debug("request failed", "method", method, "name", name, "err", err)
			return &httputil.RetryableError{Err: fmt.Errorf("%w: %v", httputil.ErrNetwork, err)}
		}
		if err := httputil.CheckStatus(r.StatusCode); err != nil {
			r.Body.Close()
			return err
		}
		resp = r
		return nil
	})
	if stderrors.Is(err, httputil.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, connector.ErrResourceMissing)
	}
	return resp, err
}

// send performs one round trip and reports it to the HTTP hooks.
func (b *Backend) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, err
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))
	return resp, nil
}

func (b *Backend) debug(msg string, kv ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, kv...)
	}
}

func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	resp, err := b.do(ctx, http.MethodGet, name)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// Put uploads in a single attempt; the body is a stream and cannot be
// replayed.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	req, err := b.request(ctx, http.MethodPut, name, r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	resp, err := b.send(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", httputil.ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return httputil.CheckStatus(resp.StatusCode)
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	resp, err := b.do(ctx, http.MethodHead, name)
	if stderrors.Is(err, connector.ErrResourceMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
