// Package httpclient builds the HTTP clients that remote tool server
// transports ride on: the SSE event stream and the streamable HTTP
// endpoint both take a client constructed here.
//
// The clients it produces are tuned for long-lived protocol sessions
// rather than one-shot API calls:
//   - connect-phase timeouts (dial, TLS, response headers) are bounded by
//     ConnectTimeout; in Streaming mode the response body is unbounded so
//     an SSE stream can stay open for hours
//   - idempotent requests are retried with exponential backoff and
//     Retry-After support; POSTs, which carry tool calls, never are
//   - configured headers ride on every request, so authenticated
//     endpoints work without per-call plumbing
//   - every request is logged through log/slog with the URL sanitized and
//     the owning server name attached
//   - correlation IDs present in the request context propagate as the
//     X-Correlation-ID header
//   - TLS 1.2 minimum, TLS 1.3 preferred
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.ServerName = "docs"
//	cfg.Streaming = true // SSE
//	cfg.Headers = map[string]string{"Authorization": "Bearer ..."}
//	client, err := httpclient.New(cfg)
//
// # Credential handling
//
// Endpoint URLs and headers are user configuration and often carry
// secrets. Query parameters that look like credentials and URL userinfo
// are redacted from logs; header values are never logged at all.
package httpclient
