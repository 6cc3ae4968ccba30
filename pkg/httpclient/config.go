package httpclient

import (
	"fmt"
	"time"
)

// Config describes the HTTP client handed to a remote tool server transport.
type Config struct {
	// ConnectTimeout bounds dialing, the TLS handshake, and the wait for
	// response headers. It never bounds response bodies, so event streams
	// can stay open past it. Must be > 0.
	ConnectTimeout time.Duration

	// RequestTimeout bounds whole requests including the body. Ignored in
	// Streaming mode, where bodies are open-ended.
	RequestTimeout time.Duration

	// Streaming marks the client as carrying a long-lived event stream
	// (SSE). It removes the whole-request timeout and disables response
	// compression so events are not buffered by intermediaries.
	Streaming bool

	// RetryAttempts is how many times idempotent requests are retried
	// after the first failure. 0 disables retries. Requests that send
	// tool calls are POSTs and are never retried regardless.
	RetryAttempts int

	// RetryBackoff is the initial delay before the first retry.
	RetryBackoff time.Duration

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration

	// UserAgent is set on requests that do not carry their own.
	UserAgent string

	// ServerName tags request logs with the configured tool server, so a
	// failing endpoint can be traced back to its config entry.
	ServerName string

	// Headers are set on every outgoing request. Values are treated as
	// credentials and never logged.
	Headers map[string]string
}

// DefaultConfig returns the defaults for talking to a remote tool server.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  2,
		RetryBackoff:   250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		UserAgent:      "ensemble-http-client/1.0",
	}
}

// Validate checks the configuration before a client is built.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be > 0, got %v", c.ConnectTimeout)
	}

	if !c.Streaming && c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be > 0, got %v", c.RequestTimeout)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be >= 0, got %d", c.RetryAttempts)
	}

	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry backoff must be > 0 when retries are enabled, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max backoff (%v) must be >= retry backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent is required")
	}

	return nil
}
