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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/tombee/ensemble/pkg/errors"
)

// ServerNameRegex validates tool server names.
// Names must start with a letter and contain only letters, numbers, hyphens,
// and underscores. Maximum length is 64 characters.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Transport type values accepted in server configuration.
const (
	TransportStdio          = "stdio"
	TransportWebSocket      = "websocket"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// DefaultTimeoutSeconds is applied to tool calls when a server declares none.
const DefaultTimeoutSeconds = 30

const (
	// configLockTimeout is the maximum time to wait for the cross-process
	// config file lock.
	configLockTimeout = 1 * time.Second

	// configLockRetryDelay is how often lock acquisition is retried.
	configLockRetryDelay = 100 * time.Millisecond
)

// ServerConfig is the declared configuration for a single tool server.
// Immutable once loaded; Store hands out copies.
type ServerConfig struct {
	// Type is the declared transport ("stdio", "websocket", "sse",
	// "streamable-http"). Empty means inferred: a url field classifies by
	// scheme and path, a command field implies stdio.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Command is the executable for locally launched servers.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Args are command-line arguments.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env are environment variables overlaid on the orchestrator's own
	// environment when launching the server.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// URL is the endpoint for remote servers.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Headers are sent with every HTTP request for url-based transports.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Host, Port, Path and Secure synthesize a websocket URL when Type is
	// "websocket" and no literal URL is given.
	Host   string `json:"host,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Secure bool   `json:"secure,omitempty" yaml:"secure,omitempty"`

	// Timeout is the per-call deadline in seconds (default 30).
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// PingInterval is the keepalive interval in seconds for transports that
	// support pings (websocket). 0 disables keepalives.
	PingInterval int `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`

	// ArgTransform is an optional jq expression applied to the merged
	// argument map before a tool call is forwarded.
	ArgTransform string `json:"arg_transform,omitempty" yaml:"arg_transform,omitempty"`

	// LauncherKind is the launch strategy for the command, stamped by the
	// store at load time. Never serialized; it is derived state.
	LauncherKind LauncherKind `json:"-" yaml:"-"`
}

// IsLaunchable reports whether this configuration describes a local process
// the orchestrator can start: a stdio-style entry with a command and no URL.
func (c *ServerConfig) IsLaunchable() bool {
	if c.URL != "" {
		return false
	}
	if c.Type != "" && c.Type != TransportStdio {
		return false
	}
	return c.Command != ""
}

// TimeoutDuration returns the per-call deadline, applying the default.
func (c *ServerConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// PingIntervalDuration returns the keepalive interval, 0 when disabled.
func (c *ServerConfig) PingIntervalDuration() time.Duration {
	if c.PingInterval <= 0 {
		return 0
	}
	return time.Duration(c.PingInterval) * time.Second
}

// EnvSlice returns the declared environment as a sorted KEY=VALUE list.
func (c *ServerConfig) EnvSlice() []string {
	if len(c.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate the stored config.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}

// Validate checks the structural invariants of a single entry.
func (c *ServerConfig) Validate() error {
	if c.Command == "" && c.URL == "" && c.Host == "" {
		return &pkgerrors.ValidationError{
			Message: "either command, url, or host is required",
			Hint:    "Run 'ensemble add NAME --command CMD' or 'ensemble add NAME --url URL'",
		}
	}

	if c.Type != "" {
		switch c.Type {
		case TransportStdio, TransportWebSocket, TransportSSE, TransportStreamableHTTP:
			// Valid
		default:
			return &pkgerrors.ValidationError{
				Field:   "type",
				Message: fmt.Sprintf("%q is not a transport (must be 'stdio', 'websocket', 'sse', or 'streamable-http')", c.Type),
			}
		}
	}

	if c.Timeout < 0 {
		return &pkgerrors.ValidationError{Field: "timeout", Message: "must be non-negative"}
	}
	if c.PingInterval < 0 {
		return &pkgerrors.ValidationError{Field: "ping_interval", Message: "must be non-negative"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &pkgerrors.ValidationError{Field: "port", Message: "must be between 0 and 65535"}
	}

	for i, arg := range c.Args {
		if err := ValidateArg(arg); err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
	}

	for key, value := range c.Env {
		if err := ValidateEnvPair(key, value); err != nil {
			return fmt.Errorf("env[%s]: %w", key, err)
		}
	}

	return nil
}

// configFile is the on-disk shape: a Claude-Desktop-compatible mcpServers
// object, with a plain servers key accepted as an alias.
type configFile struct {
	MCPServers map[string]*ServerConfig `json:"mcpServers,omitempty" yaml:"mcpServers,omitempty"`
	Servers    map[string]*ServerConfig `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// Store holds the mapping from server name to declared configuration.
// Read-only after load except for explicit Add.
type Store struct {
	mu      sync.RWMutex
	path    string
	servers map[string]*ServerConfig
	logger  *slog.Logger
}

// LoadStore reads the server configuration from path. An empty path loads
// the platform default location. A missing file yields an empty store.
func LoadStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		path = p
	}

	s := &Store{
		path:    path,
		servers: make(map[string]*ServerConfig),
		logger:  logger,
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Reload re-reads the configuration file, replacing the in-memory map.
func (s *Store) Reload() error {
	servers, err := readConfigFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.servers = servers
	s.mu.Unlock()

	s.logger.Debug("server configuration loaded",
		"path", s.path,
		"servers", len(servers))
	return nil
}

// readConfigFile parses the file at path into a validated server map.
// A missing file is not an error; it yields an empty map.
func readConfigFile(path string) (map[string]*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*ServerConfig), nil
		}
		return nil, &pkgerrors.ConfigError{Path: path, Reason: "failed to read", Cause: err}
	}

	return parseServers(data, path)
}

// parseServers decodes and validates configuration bytes. YAML files are
// detected by extension; everything else is treated as JSON.
func parseServers(data []byte, path string) (map[string]*ServerConfig, error) {
	var file configFile

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, &pkgerrors.ConfigError{Path: path, Reason: "failed to parse as YAML", Cause: err}
		}
	default:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, &pkgerrors.ConfigError{Path: path, Reason: "failed to parse as JSON", Cause: err}
		}
	}

	servers := make(map[string]*ServerConfig)
	for name, cfg := range file.Servers {
		servers[name] = cfg
	}
	// mcpServers wins when both keys declare the same name.
	for name, cfg := range file.MCPServers {
		servers[name] = cfg
	}

	for name, cfg := range servers {
		if cfg == nil {
			return nil, fmt.Errorf("server %q: empty configuration", name)
		}
		if err := ValidateServerName(name); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		if cfg.Command != "" {
			cfg.LauncherKind = DetectLauncherKind(cfg.Command)
		}
	}

	return servers, nil
}

// Path returns the configuration file path backing this store.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the named server's configuration.
func (s *Store) Get(name string) (*ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.servers[name]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

// Names returns all configured server names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.servers))
	for name := range s.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured servers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.servers)
}

// Add validates and persists a new server entry, then updates the in-memory
// map. The file is rewritten atomically under a cross-process lock so two
// orchestrator instances cannot interleave read-modify-write cycles.
func (s *Store) Add(name string, cfg *ServerConfig) error {
	if err := ValidateServerName(name); err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("server %q: empty configuration", name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}
	if cfg.Command != "" {
		if err := ValidateCommand(cfg.Command, s.logger); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
	}

	s.mu.RLock()
	_, exists := s.servers[name]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("server %q already exists", name)
	}

	err := s.withFileLock(func() error {
		// Re-read under the lock so concurrent writers are not clobbered.
		servers, err := readConfigFile(s.path)
		if err != nil {
			return err
		}
		if _, ok := servers[name]; ok {
			return fmt.Errorf("server %q already exists", name)
		}
		added := cfg.Clone()
		if added.Command != "" {
			added.LauncherKind = DetectLauncherKind(added.Command)
		}
		servers[name] = added

		if err := writeConfigFile(s.path, servers); err != nil {
			return err
		}

		s.mu.Lock()
		s.servers = servers
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("server added to configuration", "server", name, "path", s.path)
	return nil
}

// Remove deletes a server entry and rewrites the file, under the same
// cross-process lock Add takes.
func (s *Store) Remove(name string) error {
	s.mu.RLock()
	_, exists := s.servers[name]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("server %q is not configured", name)
	}

	err := s.withFileLock(func() error {
		// Re-read under the lock so concurrent writers are not clobbered.
		servers, err := readConfigFile(s.path)
		if err != nil {
			return err
		}
		if _, ok := servers[name]; !ok {
			return fmt.Errorf("server %q is not configured", name)
		}
		delete(servers, name)

		if err := writeConfigFile(s.path, servers); err != nil {
			return err
		}

		s.mu.Lock()
		s.servers = servers
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("server removed from configuration", "server", name, "path", s.path)
	return nil
}

// withFileLock runs fn while holding the cross-process config lock,
// retrying acquisition the same way the process registry does rather than
// failing on first contention.
func (s *Store) withFileLock(fn func() error) error {
	fileLock := flock.New(s.path + ".lock")
	lockCtx, cancel := context.WithTimeout(context.Background(), configLockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, configLockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire config lock: timeout after %v", configLockTimeout)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			s.logger.Warn("failed to release config lock", "error", err)
		}
	}()

	return fn()
}

// writeConfigFile atomically rewrites the configuration file, preserving the
// format implied by its extension.
func writeConfigFile(path string, servers map[string]*ServerConfig) error {
	file := configFile{MCPServers: servers}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&file)
	default:
		data, err = json.MarshalIndent(&file, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// Write to temp file first, then rename (atomic operation)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// ValidateServerName validates a tool server name.
func ValidateServerName(name string) error {
	if name == "" {
		return &pkgerrors.ValidationError{Field: "name", Message: "is required"}
	}
	if len(name) > 64 {
		return &pkgerrors.ValidationError{Field: "name", Message: "exceeds 64 character limit"}
	}
	if !ServerNameRegex.MatchString(name) {
		return &pkgerrors.ValidationError{
			Field:   "name",
			Message: "must start with a letter and contain only letters, numbers, hyphens, and underscores",
		}
	}
	return nil
}

// ValidateCommand validates a command is safe to execute.
func ValidateCommand(cmd string, logger *slog.Logger) error {
	if cmd == "" {
		return fmt.Errorf("command is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Check if it's an absolute path
	if filepath.IsAbs(cmd) {
		if !strings.HasPrefix(cmd, "/usr/bin/") && !strings.HasPrefix(cmd, "/usr/local/bin/") {
			logger.Warn("server command path is outside standard directories",
				"command", cmd,
				"recommendation", "Consider using commands from /usr/bin or /usr/local/bin for better security")
		}

		// Verify the file exists and is executable
		info, err := os.Stat(cmd)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("command not found: %s", cmd)
			}
			return fmt.Errorf("cannot access command: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("command is a directory: %s", cmd)
		}
		// Check if executable (Unix only, but Windows will still work)
		if info.Mode()&0111 == 0 {
			return fmt.Errorf("command is not executable: %s", cmd)
		}
		return nil
	}

	// Check if command is in PATH
	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("command not found in PATH: %s", cmd)
	}

	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection attempts.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// envKeyRegex validates environment variable keys.
var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateEnvPair validates a single environment variable.
func ValidateEnvPair(key, value string) error {
	if key == "" {
		return fmt.Errorf("environment variable key is required")
	}

	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable key: %s", key)
	}

	// Values may use ${VAR} substitution syntax but not other shell
	// injection patterns.
	for _, pattern := range shellInjectionPatterns {
		if pattern == "${" {
			continue
		}
		if strings.Contains(value, pattern) {
			return fmt.Errorf("environment value contains potentially unsafe pattern %q", pattern)
		}
	}

	return nil
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH", "API_KEY",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv redacts sensitive values from an environment map for logging.
func RedactEnv(env map[string]string) map[string]string {
	result := make(map[string]string, len(env))
	for key, value := range env {
		if IsSensitiveEnvKey(key) {
			result[key] = "***REDACTED***"
		} else {
			result[key] = value
		}
	}
	return result
}
