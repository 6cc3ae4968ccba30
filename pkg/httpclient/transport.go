package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/ensemble/internal/tracing"
)

// loggingTransport logs every request with a sanitized URL, stamps the
// User-Agent, and propagates the correlation ID from the request context.
type loggingTransport struct {
	base       http.RoundTripper
	userAgent  string
	serverName string
}

func newLoggingTransport(base http.RoundTripper, userAgent, serverName string) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{
		base:       base,
		userAgent:  userAgent,
		serverName: serverName,
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	if corrID := tracing.FromContextOrEmpty(req.Context()); corrID.IsValid() {
		req.Header.Set("X-Correlation-ID", corrID.String())
	}

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	attrs := []any{
		"method", req.Method,
		"url", sanitizeURL(req.URL),
		"duration_ms", duration,
	}
	if t.serverName != "" {
		attrs = append(attrs, "server", t.serverName)
	}

	if err != nil {
		slog.Warn("http request failed", append(attrs, "error", err.Error())...)
		return resp, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	slog.Log(req.Context(), level, "http request", append(attrs, "status", resp.StatusCode)...)

	return resp, nil
}

// headerTransport sets the configured headers on every outgoing request.
// Header values are credentials for most remote servers and are never
// logged; the logging layer only ever sees the sanitized URL.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func newHeaderTransport(base http.RoundTripper, headers map[string]string) *headerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &headerTransport{base: base, headers: headers}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
