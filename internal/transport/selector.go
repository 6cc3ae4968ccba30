// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tombee/ensemble/internal/config"
)

// ErrUnsupportedConfig marks configurations no transport rule matches.
// Callers test with errors.Is.
var ErrUnsupportedConfig = errors.New("unsupported server configuration")

// Select classifies one server configuration into a transport descriptor.
//
// Priority order:
//  1. A url field classifies by scheme and path: ws/wss schemes are
//     websocket; a declared sse type is SSE; a /stream path segment or a
//     declared streamable-http type is streamable HTTP; any other http(s)
//     URL is inferred (a /sse suffix means SSE, everything else streamable).
//  2. A websocket type without a url synthesizes one from host/port/path.
//  3. A command means stdio, with the launch strategy resolved here.
func Select(name string, cfg *config.ServerConfig) (*Descriptor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server %q: no configuration: %w", name, ErrUnsupportedConfig)
	}

	d := &Descriptor{
		Name:         name,
		Timeout:      cfg.TimeoutDuration(),
		PingInterval: cfg.PingIntervalDuration(),
	}

	if cfg.URL != "" {
		if err := classifyURL(cfg, d); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		return d, nil
	}

	if cfg.Type == config.TransportWebSocket {
		wsURL, err := synthesizeWebsocketURL(cfg)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		d.Kind = KindWebSocket
		d.URL = wsURL
		d.Headers = cfg.Headers
		return d, nil
	}

	if cfg.Command != "" && (cfg.Type == "" || cfg.Type == config.TransportStdio) {
		if err := classifyStdio(cfg, d); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		return d, nil
	}

	return nil, fmt.Errorf("server %q: no transport rule for config: %w", name, ErrUnsupportedConfig)
}

// classifyURL resolves a url-bearing configuration.
func classifyURL(cfg *config.ServerConfig, d *Descriptor) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", cfg.URL, ErrUnsupportedConfig)
	}

	d.URL = cfg.URL
	d.Headers = cfg.Headers

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		d.Kind = KindWebSocket
		return nil
	case "http", "https":
		// Resolved below.
	default:
		return fmt.Errorf("unsupported url scheme %q: %w", u.Scheme, ErrUnsupportedConfig)
	}

	switch cfg.Type {
	case config.TransportSSE:
		d.Kind = KindSSE
		return nil
	case config.TransportStreamableHTTP:
		d.Kind = KindStreamableHTTP
		return nil
	}

	if strings.Contains(u.Path, "/stream") {
		d.Kind = KindStreamableHTTP
		return nil
	}

	d.Kind = inferHTTPKind(u)
	d.Inferred = true
	return nil
}

// inferHTTPKind resolves a bare http(s) URL: a path ending in /sse is taken
// as an SSE endpoint, anything else as streamable HTTP.
func inferHTTPKind(u *url.URL) Kind {
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/sse") {
		return KindSSE
	}
	return KindStreamableHTTP
}

// synthesizeWebsocketURL builds a ws(s) URL from host/port/path fields.
func synthesizeWebsocketURL(cfg *config.ServerConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("websocket config requires host or url: %w", ErrUnsupportedConfig)
	}

	scheme := "ws"
	if cfg.Secure {
		scheme = "wss"
	}

	host := cfg.Host
	if cfg.Port > 0 {
		host = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	path := cfg.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return fmt.Sprintf("%s://%s%s", scheme, host, path), nil
}

// classifyStdio resolves a stdio configuration, applying the launch strategy.
// Configurations that came through the store carry their LauncherKind already;
// detection here only covers hand-built configs that were never stamped.
func classifyStdio(cfg *config.ServerConfig, d *Descriptor) error {
	d.Kind = KindStdio
	d.Command = cfg.Command
	d.Env = cfg.EnvSlice()
	d.LauncherKind = cfg.LauncherKind
	if d.LauncherKind == config.LauncherUnknown {
		d.LauncherKind = config.DetectLauncherKind(cfg.Command)
	}

	switch d.LauncherKind {
	case LauncherPackageRunner:
		args, err := rewritePackageRunnerArgs(config.CommandBase(cfg.Command), cfg.Args)
		if err != nil {
			return err
		}
		d.Args = args
	default:
		d.Args = append([]string(nil), cfg.Args...)
	}

	return nil
}

// rewritePackageRunnerArgs normalizes package-runner argv to
// {package, remaining args}, with npx gaining -y exactly once.
func rewritePackageRunnerArgs(runner string, args []string) ([]string, error) {
	rest := append([]string(nil), args...)

	// Strip caller-supplied -y flags so npx gets exactly one.
	for len(rest) > 0 && rest[0] == "-y" {
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return nil, fmt.Errorf("%s requires a package argument: %w", runner, ErrUnsupportedConfig)
	}

	if runner == "npx" {
		return append([]string{"-y"}, rest...), nil
	}
	return rest, nil
}
