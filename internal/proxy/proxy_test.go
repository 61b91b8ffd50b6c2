package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tomohub/internal/apperrors"
	"tomohub/pkg/backoff"
	"tomohub/pkg/circuitbreaker"
)

// quickRetry keeps retry tests fast.
var quickRetry = &backoff.Config{Initial: time.Millisecond, Max: 5 * time.Millisecond, Attempts: 3}

func newFetcher(cfg Config) *Fetcher {
	if cfg.Retry == nil {
		cfg.Retry = quickRetry
	}
	return New(cfg)
}

func TestFetch_RelaysBodyAndContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/tiff; application=geotiff")
		_, _ = w.Write([]byte("II*\x00tiff"))
	}))
	defer srv.Close()

	obj, err := newFetcher(Config{}).Fetch(context.Background(), srv.URL+"/bucket/recon.tif")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	defer obj.Body.Close()

	body, _ := io.ReadAll(obj.Body)
	if string(body) != "II*\x00tiff" {
		t.Errorf("body = %q", body)
	}
	if obj.ContentType != "image/tiff; application=geotiff" {
		t.Errorf("content type = %q", obj.ContentType)
	}
	if obj.ContentLength != int64(len(body)) {
		t.Errorf("content length = %d, want %d", obj.ContentLength, len(body))
	}
}

func TestFetch_DefaultsContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil // suppress sniffing
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	obj, err := newFetcher(Config{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	obj.Body.Close()
	if obj.ContentType != defaultContentType {
		t.Errorf("content type = %q, want %q", obj.ContentType, defaultContentType)
	}
}

func TestFetch_RejectsBadURLs(t *testing.T) {
	t.Parallel()
	f := newFetcher(Config{AllowedHosts: []string{"bucket.s3.amazonaws.com"}})
	tests := []struct {
		name string
		url  string
		want int
	}{
		{"empty", "", http.StatusBadRequest},
		{"file scheme", "file:///etc/passwd", http.StatusBadRequest},
		{"relative", "/bucket/a.tif", http.StatusBadRequest},
		{"host not allowed", "https://evil.example.com/a.tif", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.Fetch(context.Background(), tt.url)
			if got := apperrors.HTTPStatus(err); got != tt.want {
				t.Errorf("Fetch(%q) status = %d, want %d (err %v)", tt.url, got, tt.want, err)
			}
		})
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	obj, err := newFetcher(Config{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	obj.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Errorf("remote called %d times, want 3", got)
	}
}

func TestFetch_MapsRemoteFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		want      int
	}{
		{"not found is not retried", http.StatusNotFound, 1, http.StatusNotFound},
		{"forbidden is not retried", http.StatusForbidden, 1, http.StatusForbidden},
		{"other client error", http.StatusBadRequest, 1, http.StatusBadGateway},
		{"server error after retries", http.StatusInternalServerError, 3, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newFetcher(Config{}).Fetch(context.Background(), srv.URL)
			if got := apperrors.HTTPStatus(err); got != tt.want {
				t.Errorf("status = %d, want %d (err %v)", got, tt.want, err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("remote called %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newFetcher(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, apperrors.ErrUpstreamTimeout) {
		t.Fatalf("Fetch() error = %v, want upstream timeout", err)
	}
	if got := apperrors.HTTPStatus(err); got != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("timeouts are not retried; remote called %d times", got)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newFetcher(Config{}).Fetch(context.Background(), addr)
	if got := apperrors.HTTPStatus(err); got != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 (err %v)", got, err)
	}
}

func TestFetch_BreakerOpensPerHost(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	// Breakers are keyed by host:port, so this is a different host.
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	f := newFetcher(Config{
		Retry:   &backoff.Config{Initial: time.Millisecond, Attempts: 1},
		Breaker: circuitbreaker.Config{Threshold: 2, Cooldown: time.Minute},
	})
	ctx := context.Background()

	for range 2 {
		if _, err := f.Fetch(ctx, failing.URL); !errors.Is(err, apperrors.ErrUpstream) {
			t.Fatalf("Fetch() error = %v, want upstream error", err)
		}
	}
	_, err := f.Fetch(ctx, failing.URL)
	if got := apperrors.HTTPStatus(err); got != http.StatusServiceUnavailable {
		t.Errorf("open breaker status = %d, want 503 (err %v)", got, err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("remote called %d times after breaker opened, want 2", got)
	}

	obj, err := f.Fetch(ctx, healthy.URL)
	if err != nil {
		t.Fatalf("other host blocked by open breaker: %v", err)
	}
	obj.Body.Close()
}

func TestFetch_ClientErrorsKeepBreakerClosed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newFetcher(Config{Breaker: circuitbreaker.Config{Threshold: 1, Cooldown: time.Minute}})
	for range 3 {
		_, err := f.Fetch(context.Background(), srv.URL)
		if got := apperrors.HTTPStatus(err); got != http.StatusNotFound {
			t.Fatalf("status = %d, want 404 (err %v)", got, err)
		}
	}
}
