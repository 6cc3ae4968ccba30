package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New builds the http.Client a remote tool server transport rides on.
//
// The transport stack, outermost first:
//   - retries with exponential backoff, idempotent methods only
//   - configured headers on every request
//   - request logging, User-Agent, and correlation ID propagation
//
// In Streaming mode the client carries no whole-request timeout; the
// connect phase is still bounded by ConnectTimeout, and per-call contexts
// bound everything else.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,

		// Compressed event streams get buffered by proxies; a streaming
		// client asks for identity encoding instead.
		DisableCompression: cfg.Streaming,
	}

	var rt http.RoundTripper = newLoggingTransport(base, cfg.UserAgent, cfg.ServerName)

	if len(cfg.Headers) > 0 {
		rt = newHeaderTransport(rt, cfg.Headers)
	}

	if cfg.RetryAttempts > 0 {
		rt = newRetryTransport(rt, cfg)
	}

	timeout := cfg.RequestTimeout
	if cfg.Streaming {
		timeout = 0
	}

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
	}, nil
}
