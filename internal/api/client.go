// internal/api/client.go
//
// Ponyracer API client.
//
// Context
//   Every call to the remote Ponyracer API goes through Client: a JSON
//   request/response helper on top of go-retryablehttp (bounded retries of
//   GET on connection errors and 5xx) and an x/time/rate limiter that keeps
//   one process from hammering the API.  POSTs are sent once.  Users and
//   Races wrap the endpoints the views consume.
//
// Errors
//   Transport failures are returned wrapped.  Non-2xx responses become a
//   *StatusError carrying the status code and a truncated body.  Callers in
//   the workflow layer treat every error the same; the type only serves logs
//   and tests.
//
//------------------------------------------------------------------------------

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/ponyracer/internal/metrics"
)

// DefaultBaseURL is the public Ponyracer API.
const DefaultBaseURL = "https://ponyracer.ninja-squad.com"

const maxErrorBody = 512

// Options configures a Client.  Zero values select defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	RateLimit float64 // requests per second; 0 disables limiting
	Burst     int
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Code)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q: scheme and host required", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveledZap{zap.S().Named("api")}
	rc.CheckRetry = idempotentOnly
	// Hand the last response back instead of a generic "giving up" error so
	// StatusError keeps the real code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{base: base, http: rc, limiter: limiter}, nil
}

// Users returns the user endpoints.
func (c *Client) Users() *Users { return &Users{c: c} }

// Races returns the race endpoints.
func (c *Client) Races() *Races { return &Races{c: c} }

// post sends body as JSON and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api encode %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, out)
}

// get sends query parameters and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}

	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var body any
	if payload != nil {
		body = payload
	}
	req, err := retryablehttp.NewRequestWithContext(context.WithValue(ctx, methodKey{}, method), method, u.String(), body)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequestDuration.WithLabelValues(method, path, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.APIRequestDuration.WithLabelValues(method, path, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api decode %s %s: %w", method, path, err)
	}
	return nil
}

// idempotentOnly applies the default retry policy to GET and HEAD.  A POST
// that failed with a 5xx or a dropped connection may already have created the
// user, so it is never replayed.
func idempotentOnly(ctx context.Context, resp *http.Response, err error) (bool, error) {
	method := http.MethodGet
	if resp != nil && resp.Request != nil {
		method = resp.Request.Method
	} else if m, ok := ctx.Value(methodKey{}).(string); ok {
		method = m
	}
	if method != http.MethodGet && method != http.MethodHead {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// methodKey carries the request method into CheckRetry when a transport
// error leaves no response to read it from.
type methodKey struct{}

// leveledZap adapts a SugaredLogger to retryablehttp.LeveledLogger.
type leveledZap struct{ s *zap.SugaredLogger }

func (l leveledZap) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveledZap) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveledZap) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveledZap) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
