// Package proxy relays remote result images (TIFFs in S3 buckets) to browser
// clients, which cannot fetch them directly because the buckets do not send
// CORS headers.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"tomohub/internal/apperrors"
	"tomohub/internal/observability"
	"tomohub/pkg/backoff"
	"tomohub/pkg/circuitbreaker"
)

const defaultContentType = "image/tiff"

// Fetch outcomes, as recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
)

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration          // Wait for connect and response headers; default 60s
	AllowedHosts []string               // Empty allows any host
	Retry        *backoff.Config        // Retries of connection errors and 5xx; default 3 attempts
	Breaker      circuitbreaker.Config  // Per host
	Metrics      *observability.Metrics // Optional
}

// Fetcher fetches remote objects with retries and a circuit breaker per host.
type Fetcher struct {
	client   *http.Client
	allowed  []string
	retry    *backoff.Config
	breakers *circuitbreaker.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = &backoff.Config{Initial: 250 * time.Millisecond, Max: 2 * time.Second, Attempts: 3}
	}

	// Large files may take longer than Timeout to stream, so only the wait
	// for a connection and for headers is bounded.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = cfg.Timeout
	transport.ResponseHeaderTimeout = cfg.Timeout

	return &Fetcher{
		client:   &http.Client{Transport: transport},
		allowed:  cfg.AllowedHosts,
		retry:    cfg.Retry,
		breakers: circuitbreaker.NewRegistry(cfg.Breaker),
		metrics:  cfg.Metrics,
		logger:   slog.With("component", "proxy"),
	}
}

// Object is a fetched remote object. The caller closes Body.
type Object struct {
	ContentType   string
	ContentLength int64 // -1 when unknown
	Body          io.ReadCloser
}

// statusError is a non-200 answer from the remote host.
type statusError struct{ code int }

func (e *statusError) Error() string {
	return fmt.Sprintf("remote returned %d", e.code)
}

// Fetch GETs rawURL. Connection errors, 429 and 5xx answers are retried; a
// host that keeps failing is refused until its breaker cools down.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Object, error) {
	u, err := f.parse(rawURL)
	if err != nil {
		return nil, err
	}
	logger := f.logger.With("host", u.Host)

	breaker := f.breakers.Get(u.Host)
	if !breaker.Allow() {
		f.record(ctx, outcomeRejected)
		wait := breaker.RetryAfter().Round(time.Second)
		return nil, apperrors.Unavailable("file", fmt.Sprintf("%s is failing; retry in %s", u.Host, wait))
	}

	logger.Info("Proxying file", "url", u.Redacted())
	var resp *http.Response
	err = backoff.Retry(ctx, f.retry, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return backoff.Permanent(err)
			}
			logger.Debug("Fetch failed", "attempt", attempt, "error", err)
			return err
		}
		if r.StatusCode == http.StatusOK {
			resp = r
			return nil
		}
		discard(r)
		serr := &statusError{code: r.StatusCode}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			logger.Debug("Fetch failed", "attempt", attempt, "status", r.StatusCode)
			return serr
		}
		return backoff.Permanent(serr)
	})

	if err != nil {
		return nil, f.classify(ctx, logger, breaker, err)
	}

	breaker.RecordSuccess()
	f.record(ctx, outcomeOK)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Object{ContentType: contentType, ContentLength: resp.ContentLength, Body: resp.Body}, nil
}

// classify maps a failed fetch to a client-facing error and updates the
// host's breaker. Client errors from the remote mean the host is up.
func (f *Fetcher) classify(ctx context.Context, logger *slog.Logger, breaker *circuitbreaker.Breaker, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var serr *statusError
	switch {
	case errors.As(err, &serr) && serr.code < 500 && serr.code != http.StatusTooManyRequests:
		breaker.RecordSuccess()
		f.record(ctx, outcomeError)
		logger.Warn("Remote refused file", "status", serr.code)
		msg := fmt.Sprintf("Failed to fetch file: %d", serr.code)
		switch serr.code {
		case http.StatusNotFound:
			return apperrors.Missing("file", msg)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.Forbidden("file", msg)
		}
		return apperrors.Upstream("file", msg, err)

	case isTimeout(err):
		breaker.RecordFailure()
		f.record(ctx, outcomeTimeout)
		logger.Error("Timeout while fetching file", "error", err)
		return apperrors.UpstreamTimeout("file", "Timeout while fetching file", err)

	case serr != nil:
		breaker.RecordFailure()
		f.record(ctx, outcomeError)
		logger.Error("Remote failed", "status", serr.code)
		return apperrors.Upstream("file", fmt.Sprintf("Failed to fetch file: %d", serr.code), err)

	default:
		breaker.RecordFailure()
		f.record(ctx, outcomeError)
		logger.Error("Error fetching file", "error", err)
		return apperrors.Upstream("file", fmt.Sprintf("Error fetching file: %v", err), err)
	}
}

// parse accepts absolute http(s) URLs to allowed hosts.
func (f *Fetcher) parse(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, apperrors.Validation("url", "url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Validation("url", "Invalid URL scheme")
	}
	if len(f.allowed) > 0 && !slices.Contains(f.allowed, u.Hostname()) {
		return nil, apperrors.Forbidden("url", fmt.Sprintf("host %s is not allowed", u.Hostname()))
	}
	return u, nil
}

func (f *Fetcher) record(ctx context.Context, outcome string) {
	if f.metrics != nil {
		f.metrics.RecordProxyFetch(ctx, outcome)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// discard drains a little of an unwanted body so the connection can be reused.
func discard(r *http.Response) {
	_, _ = io.CopyN(io.Discard, r.Body, 4<<10)
	r.Body.Close()
}
