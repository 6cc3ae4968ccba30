package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testRetryClient(attempts int) *http.Client {
	cfg := DefaultConfig()
	cfg.RetryAttempts = attempts
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return &http.Client{Transport: newRetryTransport(http.DefaultTransport, cfg)}
}

func TestRetrySucceedsAfterServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	resp, err := testRetryClient(2).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d requests, want 2", calls.Load())
	}
}

func TestRetryDoesNotTouch4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := testRetryClient(3).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", calls.Load())
	}
}

func TestRetryExhaustionReturnsLastResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "still down")
	}))
	defer server.Close()

	resp, err := testRetryClient(2).Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", calls.Load())
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	// The final response body must still be readable.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading final body: %v", err)
	}
	if string(body) != "still down" {
		t.Errorf("body = %q, want %q", body, "still down")
	}
}

func TestRetryHonorsRetryAfterSeconds(t *testing.T) {
	var first atomic.Value
	var gap atomic.Int64
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			first.Store(time.Now())
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap.Store(int64(time.Since(first.Load().(time.Time))))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Backoff alone would wait milliseconds; Retry-After must not stretch
	// the wait because it only wins when it is SHORTER than the backoff.
	cfg := DefaultConfig()
	cfg.RetryAttempts = 1
	cfg.RetryBackoff = 2 * time.Second
	cfg.MaxBackoff = 2 * time.Second
	client := &http.Client{Transport: newRetryTransport(http.DefaultTransport, cfg)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 2 {
		t.Fatalf("server saw %d requests, want 2", calls.Load())
	}
	if got := time.Duration(gap.Load()); got < 900*time.Millisecond || got > 1900*time.Millisecond {
		t.Errorf("retry waited %v, want close to the 1s Retry-After", got)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 5
	cfg.RetryBackoff = time.Second
	cfg.MaxBackoff = time.Second
	client := &http.Client{Transport: newRetryTransport(http.DefaultTransport, cfg)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = client.Do(req)
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retry kept waiting %v past cancellation", elapsed)
	}
}

func TestRetryableMethod(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{http.MethodGet, true},
		{http.MethodHead, true},
		{http.MethodOptions, true},
		{"get", true},
		{http.MethodPost, false},
		{http.MethodPut, false},
		{http.MethodDelete, false},
		{http.MethodPatch, false},
	}

	for _, tt := range tests {
		if got := retryableMethod(tt.method); got != tt.want {
			t.Errorf("retryableMethod(%q) = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		if got := retryableStatus(tt.code); got != tt.want {
			t.Errorf("retryableStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unknown host", errors.New("dial tcp: lookup nowhere.invalid: no such host"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"other", errors.New("certificate is expired"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transientError(tt.err); got != tt.want {
				t.Errorf("transientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffStaysUnderCap(t *testing.T) {
	rt := &retryTransport{
		baseBackoff: 100 * time.Millisecond,
		maxBackoff:  time.Second,
	}

	for retry := 1; retry <= 10; retry++ {
		d := rt.backoff(retry)
		// Cap plus the 20% jitter allowance.
		if d > 1200*time.Millisecond {
			t.Errorf("backoff(%d) = %v, above cap", retry, d)
		}
		if d <= 0 {
			t.Errorf("backoff(%d) = %v, not positive", retry, d)
		}
	}
}
