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

// Package orchestrator coordinates named tool servers: resolving their
// configuration, launching local processes, caching protocol sessions, and
// routing tool calls. It is the single entry point the CLI and embedding
// applications use.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/ensemble/internal/adapt"
	"github.com/tombee/ensemble/internal/client"
	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/launch"
	"github.com/tombee/ensemble/internal/registry"
	"github.com/tombee/ensemble/internal/transport"
	pkgerrors "github.com/tombee/ensemble/pkg/errors"
)

const (
	// defaultLaunchBurst is how many launches of one server may happen
	// back to back before the rate limit engages.
	defaultLaunchBurst = 3

	// defaultLaunchRefill is how often a spent launch slot is returned.
	defaultLaunchRefill = 5 * time.Second
)

// Orchestrator manages a set of named tool servers. Connections are cached
// per server, local stdio servers are launched on demand, and launched
// processes are tracked both in memory and in the durable registry so other
// invocations can find them.
//
// All methods are safe for concurrent use. The internal mutex guards only
// the tracking maps; it is never held across process or network I/O.
type Orchestrator struct {
	store    *config.Store
	logger   *slog.Logger
	factory  client.Factory
	registry *registry.Registry
	launcher *launch.Launcher
	watcher  *config.Watcher

	autoLaunch   bool
	launchBurst  int
	launchRefill time.Duration

	// Option staging, consumed by New.
	registryPath string
	logDir       string
	gracePeriod  time.Duration
	stopTimeout  time.Duration
	watchConfig  bool

	mu          sync.Mutex
	connections map[string]client.Client
	connHashes  map[string]string
	handles     map[string]*launch.Handle
	// launched maps servers this instance launched or adopted to the
	// config fingerprint they were started with.
	launched  map[string]string
	launching map[string]chan struct{}
	limiters  map[string]*rate.Limiter
	closed    bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithAutoLaunch controls whether Connect starts launchable servers that
// are not yet running. Enabled by default.
func WithAutoLaunch(enabled bool) Option {
	return func(o *Orchestrator) { o.autoLaunch = enabled }
}

// WithClientFactory overrides how protocol sessions are built. Tests use
// this to substitute fake sessions.
func WithClientFactory(factory client.Factory) Option {
	return func(o *Orchestrator) { o.factory = factory }
}

// WithRegistryPath overrides the process registry location.
func WithRegistryPath(path string) Option {
	return func(o *Orchestrator) { o.registryPath = path }
}

// WithLogDir overrides the directory server process logs are written under.
func WithLogDir(dir string) Option {
	return func(o *Orchestrator) { o.logDir = dir }
}

// WithGracePeriod overrides how long a launched process must survive to
// count as started.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) { o.gracePeriod = d }
}

// WithStopTimeout overrides how long a stop waits after SIGTERM before
// escalating to SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stopTimeout = d }
}

// WithLaunchLimit overrides the per-server launch rate limit. A burst of
// launches is allowed before one slot refills per interval; this keeps a
// crashing server from being relaunched in a tight loop.
func WithLaunchLimit(burst int, refill time.Duration) Option {
	return func(o *Orchestrator) {
		if burst > 0 {
			o.launchBurst = burst
		}
		if refill > 0 {
			o.launchRefill = refill
		}
	}
}

// WithConfigWatch reloads the store when the config file changes on disk
// and drops cached connections whose configuration drifted.
func WithConfigWatch() Option {
	return func(o *Orchestrator) { o.watchConfig = true }
}

// New creates an orchestrator over the given config store.
func New(store *config.Store, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("orchestrator requires a config store")
	}

	o := &Orchestrator{
		store:        store,
		autoLaunch:   true,
		launchBurst:  defaultLaunchBurst,
		launchRefill: defaultLaunchRefill,
		connections:  make(map[string]client.Client),
		connHashes:   make(map[string]string),
		handles:      make(map[string]*launch.Handle),
		launched:     make(map[string]string),
		launching:    make(map[string]chan struct{}),
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.factory == nil {
		o.factory = client.New
	}

	reg, err := registry.New(o.registryPath, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open process registry: %w", err)
	}
	o.registry = reg

	launcher, err := launch.NewLauncher(launch.LauncherConfig{
		Registry:    o.registry,
		LogDir:      o.logDir,
		Logger:      o.logger,
		GracePeriod: o.gracePeriod,
		StopTimeout: o.stopTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launcher: %w", err)
	}
	o.launcher = launcher

	if o.watchConfig {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Store:    store,
			Logger:   o.logger,
			OnReload: o.handleConfigReload,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch config: %w", err)
		}
		o.watcher = watcher
	}

	return o, nil
}

// ListServers returns the configured server names, sorted.
func (o *Orchestrator) ListServers() []string {
	return o.store.Names()
}

// GetServerConfig returns a copy of the named server's configuration.
func (o *Orchestrator) GetServerConfig(name string) (*config.ServerConfig, bool) {
	return o.store.Get(name)
}

// ConfigPath returns the path of the backing config file.
func (o *Orchestrator) ConfigPath() string {
	return o.store.Path()
}

// LogDir returns the directory server process logs are written under.
func (o *Orchestrator) LogDir() string {
	return o.launcher.LogDir()
}

// AddServer validates and persists a new server configuration.
func (o *Orchestrator) AddServer(name string, cfg *config.ServerConfig) error {
	if cfg != nil && cfg.ArgTransform != "" {
		if err := adapt.ValidateTransform(cfg.ArgTransform); err != nil {
			return NewError(CodeUnsupportedConfig, fmt.Sprintf("Invalid arg_transform for server '%s'", name)).
				WithDetail(err.Error()).
				WithCause(err)
		}
	}
	return o.store.Add(name, cfg)
}

// RemoveServer deletes the named server's configuration entry, stopping its
// process first when one is running. The stop is best effort; removal
// proceeds even when the process cannot be signalled.
func (o *Orchestrator) RemoveServer(ctx context.Context, name string) error {
	if _, ok := o.store.Get(name); !ok {
		return ErrConfigNotFound(name)
	}
	if running, _ := o.IsRunning(name); running {
		if stopped, detail := o.StopServer(ctx, name); !stopped {
			o.logger.Warn("failed to stop server before removal", "server", name, "detail", detail)
		}
	}
	return o.store.Remove(name)
}

// IsRunning reports whether the named server's process is alive, and its
// PID. The in-memory handle table answers first; processes launched by
// earlier invocations are resolved through the registry, which prunes
// entries for dead processes as a side effect.
func (o *Orchestrator) IsRunning(name string) (bool, int) {
	o.mu.Lock()
	if h, ok := o.handles[name]; ok && h.Alive() {
		pid := h.PID
		o.mu.Unlock()
		return true, pid
	}
	o.mu.Unlock()

	return o.registry.IsRunning(name)
}

// ServerLogs returns the stdout and stderr log paths for the named server,
// preferring the live handle over the registry record.
func (o *Orchestrator) ServerLogs(name string) (stdout, stderr string, err error) {
	o.mu.Lock()
	h, ok := o.handles[name]
	o.mu.Unlock()
	if ok {
		return h.StdoutPath, h.StderrPath, nil
	}

	entry, found, err := o.registry.Get(name)
	if err != nil {
		return "", "", fmt.Errorf("failed to read process registry: %w", err)
	}
	if !found || (entry.StdoutLog == "" && entry.StderrLog == "") {
		return "", "", &pkgerrors.NotFoundError{Resource: "server logs", ID: name}
	}
	return entry.StdoutLog, entry.StderrLog, nil
}

// Connect returns a ready protocol session for the named server, reusing a
// cached one when available. Launchable servers that are not running are
// started first when auto-launch is enabled. Failed connections are never
// cached.
func (o *Orchestrator) Connect(ctx context.Context, name string) (client.Client, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrInternal("orchestrator is closed", nil)
	}
	var stale client.Client
	if h, ok := o.handles[name]; ok && !h.Alive() {
		// The process died since we connected; the cached session is
		// poisoned and must not serve this call.
		if c, ok := o.connections[name]; ok {
			stale = c
			delete(o.connections, name)
			delete(o.connHashes, name)
		}
	}
	if c, ok := o.connections[name]; ok {
		o.mu.Unlock()
		return c, nil
	}
	o.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			o.logger.Debug("failed to close stale session", "server", name, "error", err)
		}
	}

	cfg, ok := o.store.Get(name)
	if !ok {
		return nil, ErrConfigNotFound(name)
	}

	if o.autoLaunch && cfg.IsLaunchable() {
		if _, err := o.launchIfNeeded(ctx, name, cfg); err != nil {
			return nil, err
		}
	}

	desc, err := transport.Select(name, cfg)
	if err != nil {
		return nil, ErrUnsupportedConfig(name, err)
	}

	o.logger.Debug("connecting to server", "server", name, "transport", desc.Kind.String())
	c, err := o.factory(ctx, name, desc)
	if err != nil {
		return nil, o.transportError(name, err)
	}
	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, o.transportError(name, err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		_ = c.Close()
		return nil, ErrInternal("orchestrator is closed", nil)
	}
	if existing, ok := o.connections[name]; ok {
		// Another caller connected while we were handshaking; keep theirs.
		o.mu.Unlock()
		_ = c.Close()
		return existing, nil
	}
	o.connections[name] = c
	o.connHashes[name] = registry.Fingerprint(cfg)
	o.mu.Unlock()

	return c, nil
}

// ListTools returns the tools the named server advertises, connecting
// first if needed.
func (o *Orchestrator) ListTools(ctx context.Context, name string) ([]client.Tool, error) {
	c, err := o.Connect(ctx, name)
	if err != nil {
		return nil, err
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, o.transportError(name, err)
	}
	return tools, nil
}

// Query calls a tool on the named server. Arguments are adapted to the
// tool's input schema before the call: a plain message is folded into the
// schema's expected parameter and any configured arg_transform expression
// is applied last.
func (o *Orchestrator) Query(ctx context.Context, name, tool string, args map[string]any, message string) (*client.ToolResult, error) {
	c, err := o.Connect(ctx, name)
	if err != nil {
		return nil, err
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, o.transportError(name, err)
	}

	var schema json.RawMessage
	names := make([]string, 0, len(tools))
	found := false
	for _, t := range tools {
		names = append(names, t.Name)
		if t.Name == tool {
			schema = t.InputSchema
			found = true
		}
	}
	if !found {
		return nil, ErrToolNotFound(name, tool, names)
	}

	transform := ""
	if cfg, ok := o.store.Get(name); ok {
		transform = cfg.ArgTransform
	}
	merged, err := adapt.Arguments(ctx, schema, args, message, transform)
	if err != nil {
		return nil, NewError(CodeInternal, fmt.Sprintf("Argument adaptation failed for server '%s'", name)).
			WithDetail(err.Error()).
			WithCause(err).
			WithSuggestions("Check the arg_transform expression for this server in your configuration")
	}

	result, err := c.CallTool(ctx, tool, merged)
	if err != nil {
		return nil, o.transportError(name, err)
	}
	return result, nil
}

// LaunchServer starts the named server if it is not already running. The
// call is idempotent: a live process, whether tracked in memory or found
// through the registry, is adopted rather than duplicated. A registry
// entry whose recorded configuration no longer matches the current config
// is stopped and relaunched. Returns whether the server is running and a
// detail string ("already running", or a failure reason).
func (o *Orchestrator) LaunchServer(ctx context.Context, name string) (bool, string) {
	cfg, ok := o.store.Get(name)
	if !ok {
		return false, fmt.Sprintf("server %q is not configured", name)
	}
	if !cfg.IsLaunchable() {
		return false, fmt.Sprintf("server %q is not launchable: launching requires a stdio command", name)
	}

	adopted, err := o.launchIfNeeded(ctx, name, cfg)
	if err != nil {
		var oErr *OrchestratorError
		if errors.As(err, &oErr) {
			return false, oErr.UserMessage()
		}
		return false, err.Error()
	}
	if adopted {
		return true, "already running"
	}
	return true, ""
}

// launchIfNeeded launches name at most once across concurrent callers.
// Returns adopted=true when a live process already covered the request. A
// live process started from a different config falls through to doLaunch,
// which stops it and relaunches with the current config.
func (o *Orchestrator) launchIfNeeded(ctx context.Context, name string, cfg *config.ServerConfig) (adopted bool, err error) {
	fingerprint := registry.Fingerprint(cfg)
	for {
		o.mu.Lock()
		if h, ok := o.handles[name]; ok {
			if h.Alive() && o.launched[name] == fingerprint {
				o.mu.Unlock()
				return true, nil
			}
			if !h.Alive() {
				// The process died since launch. Clear instance state so
				// the relaunch below starts clean.
				delete(o.handles, name)
				delete(o.launched, name)
			}
		} else if hash, ok := o.launched[name]; ok && hash == fingerprint {
			// Adopted earlier without a handle to poll.
			o.mu.Unlock()
			return true, nil
		}

		ch, inFlight := o.launching[name]
		if !inFlight {
			ch = make(chan struct{})
			o.launching[name] = ch
			o.mu.Unlock()

			adopted, err = o.doLaunch(ctx, name, cfg)

			o.mu.Lock()
			delete(o.launching, name)
			o.mu.Unlock()
			close(ch)
			return adopted, err
		}
		o.mu.Unlock()

		select {
		case <-ch:
			// The winning launcher finished; loop to observe the result.
		case <-ctx.Done():
			return false, ErrLaunchFailed(name, ctx.Err())
		}
	}
}

// doLaunch performs one launch attempt. Callers serialize per name through
// launchIfNeeded.
func (o *Orchestrator) doLaunch(ctx context.Context, name string, cfg *config.ServerConfig) (bool, error) {
	fingerprint := registry.Fingerprint(cfg)
	if running, pid := o.registry.IsRunning(name); running {
		entry, found, err := o.registry.Get(name)
		if err == nil && found && entry.ConfigHash == fingerprint {
			o.logger.Debug("adopting running server", "server", name, "pid", pid)
			o.mu.Lock()
			o.launched[name] = fingerprint
			o.mu.Unlock()
			return true, nil
		}
		o.logger.Warn("server configuration changed since launch, relaunching",
			"server", name, "pid", pid)
		if err := o.launcher.StopPID(name, pid); err != nil {
			return false, ErrLaunchFailed(name, fmt.Errorf("failed to stop superseded instance: %w", err))
		}
	}

	if !o.limiterFor(name).Allow() {
		return false, ErrLaunchFailed(name, fmt.Errorf("relaunching %q too quickly, wait a few seconds", name))
	}

	h, err := o.launcher.Launch(ctx, name, cfg)
	if err != nil {
		return false, ErrLaunchFailed(name, err)
	}

	o.mu.Lock()
	o.handles[name] = h
	o.launched[name] = fingerprint
	o.mu.Unlock()
	return false, nil
}

// limiterFor returns the launch rate limiter for name, creating it on
// first use.
func (o *Orchestrator) limiterFor(name string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Every(o.launchRefill), o.launchBurst)
		o.limiters[name] = l
	}
	return l
}

// StopServer stops the named server: graceful signal first, forceful after
// the stop timeout. Servers launched by this instance are stopped through
// their handle; otherwise the registry record is used. Returns whether a
// process was stopped and a detail string on failure.
func (o *Orchestrator) StopServer(ctx context.Context, name string) (bool, string) {
	o.mu.Lock()
	h, hasHandle := o.handles[name]
	delete(o.handles, name)
	delete(o.launched, name)
	conn, hasConn := o.connections[name]
	delete(o.connections, name)
	delete(o.connHashes, name)
	o.mu.Unlock()

	if hasConn {
		if err := conn.Close(); err != nil {
			o.logger.Debug("failed to close session", "server", name, "error", err)
		}
	}

	if hasHandle {
		if err := o.launcher.Stop(h); err != nil {
			return false, err.Error()
		}
		return true, ""
	}

	// Processes launched by earlier invocations are only known to the
	// registry.
	entry, found, err := o.registry.Get(name)
	if err != nil {
		return false, fmt.Sprintf("failed to read process registry: %v", err)
	}
	if !found {
		return false, fmt.Sprintf("server %q is not running", name)
	}
	if err := o.launcher.StopPID(name, entry.PID); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// StopLocalPipeServers stops every tracked server classified as a local
// pipe server. Remote servers stay untouched even when they appear in the
// tracking tables. Returns per-server success.
func (o *Orchestrator) StopLocalPipeServers(ctx context.Context) map[string]bool {
	o.mu.Lock()
	names := make([]string, 0, len(o.handles))
	for name := range o.handles {
		names = append(names, name)
	}
	o.mu.Unlock()

	results := make(map[string]bool)
	for _, name := range names {
		if !o.IsLocalPipeServer(name) {
			o.logger.Debug("skipping non-local server", "server", name)
			continue
		}
		ok, detail := o.StopServer(ctx, name)
		results[name] = ok
		if !ok {
			o.logger.Warn("failed to stop server", "server", name, "detail", detail)
		}
	}
	return results
}

// StopAllServers stops every server this instance launched plus every
// registry entry left behind by earlier invocations. Returns per-server
// success.
func (o *Orchestrator) StopAllServers(ctx context.Context) map[string]bool {
	results := make(map[string]bool)

	o.mu.Lock()
	names := make([]string, 0, len(o.handles))
	for name := range o.handles {
		names = append(names, name)
	}
	o.mu.Unlock()

	for _, name := range names {
		ok, detail := o.StopServer(ctx, name)
		results[name] = ok
		if !ok {
			o.logger.Warn("failed to stop server", "server", name, "detail", detail)
		}
	}

	entries, err := o.registry.Load()
	if err != nil {
		o.logger.Warn("failed to read process registry", "error", err)
		return results
	}
	for name := range entries {
		if _, done := results[name]; done {
			continue
		}
		ok, detail := o.StopServer(ctx, name)
		results[name] = ok
		if !ok {
			o.logger.Warn("failed to stop server", "server", name, "detail", detail)
		}
	}
	return results
}

// Close releases the orchestrator. Cached protocol sessions are always
// closed; server processes are stopped only when stopServers is true, and
// then only local pipe servers. Remote servers and processes meant to
// outlive this invocation keep running.
func (o *Orchestrator) Close(ctx context.Context, stopServers bool) error {
	if o.watcher != nil {
		o.watcher.Close()
	}

	if stopServers {
		o.StopLocalPipeServers(ctx)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	conns := o.connections
	o.connections = make(map[string]client.Client)
	o.connHashes = make(map[string]string)
	o.mu.Unlock()

	var errs []error
	for name, c := range conns {
		if err := c.Close(); err != nil {
			o.logger.Debug("failed to close session", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// transportError classifies a failure talking to name and invalidates the
// cached session when the connection itself is gone.
func (o *Orchestrator) transportError(name string, err error) error {
	unwrapped := UnwrapAggregate(err)

	switch {
	case errors.Is(unwrapped, context.DeadlineExceeded):
		timeout := time.Duration(config.DefaultTimeoutSeconds) * time.Second
		if cfg, ok := o.store.Get(name); ok {
			timeout = cfg.TimeoutDuration()
		}
		return ErrQueryTimeout(name, timeout, err)
	case errors.Is(unwrapped, io.EOF), errors.Is(err, net.ErrClosed):
		o.dropConnection(name)
		return ErrConnectionClosed(name, err)
	}
	return ErrTransportFailed(name, unwrapped, err)
}

// dropConnection removes and closes the cached session for name.
func (o *Orchestrator) dropConnection(name string) {
	o.mu.Lock()
	c, ok := o.connections[name]
	delete(o.connections, name)
	delete(o.connHashes, name)
	o.mu.Unlock()

	if ok {
		if err := c.Close(); err != nil {
			o.logger.Debug("failed to close session", "server", name, "error", err)
		}
	}
}

// handleConfigReload runs after the watcher reloads the store. Cached
// connections whose configuration drifted are dropped so the next Connect
// rebuilds them against the new config.
func (o *Orchestrator) handleConfigReload() {
	type staleConn struct {
		name string
		conn client.Client
	}
	var stale []staleConn

	o.mu.Lock()
	for name, conn := range o.connections {
		cfg, ok := o.store.Get(name)
		if ok && registry.Fingerprint(cfg) == o.connHashes[name] {
			continue
		}
		delete(o.connections, name)
		delete(o.connHashes, name)
		stale = append(stale, staleConn{name: name, conn: conn})
	}
	o.mu.Unlock()

	for _, s := range stale {
		o.logger.Info("configuration changed, dropping cached session", "server", s.name)
		if err := s.conn.Close(); err != nil {
			o.logger.Debug("failed to close session", "server", s.name, "error", err)
		}
	}
}
