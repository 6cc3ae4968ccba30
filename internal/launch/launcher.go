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

// Package launch spawns tool server processes detached from the
// orchestrator, redirects their output to per-launch log files, and
// records them in the persistent registry.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/proc"
	"github.com/tombee/ensemble/internal/registry"
	"github.com/tombee/ensemble/internal/transport"
)

const (
	// DefaultGracePeriod is how long a spawned process must survive
	// before the launch is considered successful.
	DefaultGracePeriod = 1 * time.Second

	// DefaultStopTimeout bounds each phase of the stop sequence.
	DefaultStopTimeout = 5 * time.Second

	// DefaultStderrTailLines is how many stderr lines a launch failure
	// error carries for diagnosis.
	DefaultStderrTailLines = 20

	// stopPollInterval is how often non-child processes are probed
	// while waiting for them to exit.
	stopPollInterval = 500 * time.Millisecond

	// maxLogNameAttempts bounds the collision-suffix search when two
	// launches of the same server share a timestamp second.
	maxLogNameAttempts = 100
)

// Launcher spawns detached server processes.
type Launcher struct {
	logDir      string
	registry    *registry.Registry
	logger      *slog.Logger
	gracePeriod time.Duration
	stopTimeout time.Duration
	tailLines   int
}

// LauncherConfig configures a Launcher.
type LauncherConfig struct {
	// Registry records launched processes (required).
	Registry *registry.Registry

	// LogDir overrides the directory for process log files (optional).
	LogDir string

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// GracePeriod overrides DefaultGracePeriod (optional).
	GracePeriod time.Duration

	// StopTimeout overrides DefaultStopTimeout (optional).
	StopTimeout time.Duration

	// StderrTailLines overrides DefaultStderrTailLines (optional).
	StderrTailLines int
}

// NewLauncher creates a launcher writing logs under the configured
// directory, defaulting to the state log directory.
func NewLauncher(cfg LauncherConfig) (*Launcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("launcher requires a registry")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logDir := cfg.LogDir
	if logDir == "" {
		var err error
		logDir, err = config.LogDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve log directory: %w", err)
		}
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	tailLines := cfg.StderrTailLines
	if tailLines <= 0 {
		tailLines = DefaultStderrTailLines
	}

	return &Launcher{
		logDir:      logDir,
		registry:    cfg.Registry,
		logger:      logger,
		gracePeriod: grace,
		stopTimeout: stopTimeout,
		tailLines:   tailLines,
	}, nil
}

// LogDir returns the directory launch logs are written under.
func (l *Launcher) LogDir() string {
	return l.logDir
}

// Launch starts the configured command for name as a detached process.
// The process inherits the orchestrator environment overlaid with the
// server's env entries, writes stdout/stderr to fresh timestamped log
// files, and must survive the grace period to count as launched. On
// success the process is recorded in the registry.
func (l *Launcher) Launch(ctx context.Context, name string, cfg *config.ServerConfig) (*Handle, error) {
	if cfg == nil || !cfg.IsLaunchable() {
		return nil, fmt.Errorf("server %q is not launchable: %w", name, transport.ErrUnsupportedConfig)
	}

	desc, err := transport.Select(name, cfg)
	if err != nil {
		return nil, err
	}
	if desc.Kind != transport.KindStdio {
		return nil, fmt.Errorf("server %q does not use a stdio transport: %w", name, transport.ErrUnsupportedConfig)
	}

	logs, err := l.openLogFiles(name, time.Now())
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Env = append(os.Environ(), desc.Env...)
	cmd.Stdout = logs.stdout
	cmd.Stderr = logs.stderr
	cmd.Stdin = nil
	cmd.SysProcAttr = proc.DetachPolicy()

	l.logger.Info("launching server process",
		"server", name,
		"command", desc.Command,
		"launcher", desc.LauncherKind.String(),
		"stdout_log", logs.stdoutPath,
		"stderr_log", logs.stderrPath)

	if err := cmd.Start(); err != nil {
		logs.stdout.Close()
		logs.stderr.Close()
		return nil, fmt.Errorf("failed to start server %q: %w", name, err)
	}

	h := &Handle{
		ServerName: name,
		PID:        cmd.Process.Pid,
		StartTime:  time.Now(),
		StdoutPath: logs.stdoutPath,
		StderrPath: logs.stderrPath,
		process:    cmd.Process,
		done:       make(chan struct{}),
		stdout:     logs.stdout,
		stderr:     logs.stderr,
	}

	// Reap the child so a grace-period exit is observable without
	// polling, and so no zombie is left behind.
	go func() {
		waitErr := cmd.Wait()
		h.setExit(waitErr)
		h.closeLogs()
	}()

	if err := l.awaitGrace(ctx, h); err != nil {
		return nil, err
	}

	entry := registry.Entry{
		ServerName: name,
		PID:        h.PID,
		StartTime:  h.StartTime,
		ConfigHash: registry.Fingerprint(cfg),
		LogDir:     l.logDir,
		StdoutLog:  h.StdoutPath,
		StderrLog:  h.StderrPath,
	}
	if err := l.registry.Put(entry); err != nil {
		l.abort(h)
		return nil, fmt.Errorf("failed to record launch of %q: %w", name, err)
	}

	l.logger.Info("server process launched",
		"server", name,
		"pid", h.PID)
	return h, nil
}

// awaitGrace watches the freshly started process for the grace period.
// An early non-zero exit fails the launch with a stderr tail; an early
// clean exit flags the handle as possibly detached.
func (l *Launcher) awaitGrace(ctx context.Context, h *Handle) error {
	timer := time.NewTimer(l.gracePeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.abort(h)
		return fmt.Errorf("launch of %q canceled: %w", h.ServerName, ctx.Err())

	case <-h.done:
		code := h.exitCode()
		if code == 0 {
			h.MaybeDetached = true
			l.logger.Warn("server exited cleanly during grace period, assuming it detached itself",
				"server", h.ServerName,
				"pid", h.PID)
			return nil
		}

		tail, tailErr := TailLines(h.StderrPath, l.tailLines)
		if tailErr != nil {
			l.logger.Warn("failed to read stderr tail",
				"server", h.ServerName,
				"path", h.StderrPath,
				"error", tailErr)
		}
		h.closeLogs()
		return fmt.Errorf("server %q exited with code %d during launch (stderr log: %s)%s",
			h.ServerName, code, h.StderrPath, formatTail(tail))

	case <-timer.C:
		return nil
	}
}

// formatTail renders captured stderr lines for inclusion in an error.
func formatTail(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "\nstderr tail:\n  " + strings.Join(lines, "\n  ")
}

// abort kills a process whose launch cannot complete and waits briefly
// for it to be reaped.
func (l *Launcher) abort(h *Handle) {
	if h.Alive() {
		if err := proc.Kill(h.PID); err != nil {
			l.logger.Warn("failed to kill aborted launch",
				"server", h.ServerName,
				"pid", h.PID,
				"error", err)
		}
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	}
	h.closeLogs()
}

// Stop gracefully stops a process launched by this instance: SIGTERM,
// a bounded wait, then SIGKILL. The registry entry is removed and the
// log handles closed on every path.
func (l *Launcher) Stop(h *Handle) error {
	if h == nil {
		return nil
	}
	defer h.closeLogs()
	defer l.removeEntry(h.ServerName)

	if !h.Alive() {
		return nil
	}

	l.logger.Info("stopping server process",
		"server", h.ServerName,
		"pid", h.PID)

	if err := proc.Terminate(h.PID); err != nil {
		l.logger.Warn("failed to signal server process",
			"server", h.ServerName,
			"pid", h.PID,
			"error", err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(l.stopTimeout):
	}

	l.logger.Warn("server did not exit after SIGTERM, killing",
		"server", h.ServerName,
		"pid", h.PID)

	if err := proc.Kill(h.PID); err != nil {
		return fmt.Errorf("failed to kill server %q (pid %d): %w", h.ServerName, h.PID, err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(l.stopTimeout):
		return fmt.Errorf("server %q (pid %d) did not exit: %w", h.ServerName, h.PID, proc.ErrShutdownTimeout)
	}
}

// StopPID stops a process recorded in the registry but not launched by
// this instance, so its exit can only be observed by polling. The
// registry entry is removed on every path.
func (l *Launcher) StopPID(name string, pid int) error {
	defer l.removeEntry(name)

	alive, err := proc.FindProcess(pid)
	if err != nil {
		l.logger.Warn("failed to probe process",
			"server", name,
			"pid", pid,
			"error", err)
	}
	if !alive {
		return nil
	}

	l.logger.Info("stopping server process",
		"server", name,
		"pid", pid)

	if err := proc.Terminate(pid); err != nil {
		l.logger.Warn("failed to signal server process",
			"server", name,
			"pid", pid,
			"error", err)
	}

	err = proc.WaitForExit(pid, l.stopTimeout, stopPollInterval)
	if err == nil {
		return nil
	}
	if !errors.Is(err, proc.ErrShutdownTimeout) {
		return fmt.Errorf("failed waiting for server %q (pid %d) to exit: %w", name, pid, err)
	}

	l.logger.Warn("server did not exit after SIGTERM, killing",
		"server", name,
		"pid", pid)

	if err := proc.Kill(pid); err != nil {
		return fmt.Errorf("failed to kill server %q (pid %d): %w", name, pid, err)
	}
	if err := proc.WaitForExit(pid, l.stopTimeout, stopPollInterval); err != nil {
		return fmt.Errorf("server %q (pid %d) did not exit: %w", name, pid, err)
	}
	return nil
}

// removeEntry drops the registry record for name, logging failures
// instead of propagating them so stop paths always run to completion.
func (l *Launcher) removeEntry(name string) {
	if err := l.registry.Remove(name); err != nil {
		l.logger.Warn("failed to remove registry entry",
			"server", name,
			"error", err)
	}
}

// logFiles carries the freshly created log paths and handles.
type logFiles struct {
	stdoutPath string
	stderrPath string
	stdout     *os.File
	stderr     *os.File
}

// openLogFiles creates exclusive timestamped stdout/stderr log files,
// appending a numeric suffix when two launches share the same second.
func (l *Launcher) openLogFiles(name string, now time.Time) (*logFiles, error) {
	if err := os.MkdirAll(l.logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	stamp := now.Format("20060102-150405")
	flags := os.O_CREATE | os.O_EXCL | os.O_WRONLY | os.O_APPEND

	for attempt := 0; attempt < maxLogNameAttempts; attempt++ {
		base := fmt.Sprintf("%s_%s", name, stamp)
		if attempt > 0 {
			base = fmt.Sprintf("%s_%d", base, attempt+1)
		}
		stdoutPath := filepath.Join(l.logDir, base+"_stdout.log")
		stderrPath := filepath.Join(l.logDir, base+"_stderr.log")

		stdout, err := os.OpenFile(stdoutPath, flags, 0600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open stdout log: %w", err)
		}

		stderr, err := os.OpenFile(stderrPath, flags, 0600)
		if err != nil {
			stdout.Close()
			os.Remove(stdoutPath)
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open stderr log: %w", err)
		}

		return &logFiles{
			stdoutPath: stdoutPath,
			stderrPath: stderrPath,
			stdout:     stdout,
			stderr:     stderr,
		}, nil
	}

	return nil, fmt.Errorf("failed to allocate log files for %q", name)
}
