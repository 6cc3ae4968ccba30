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

package launch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/proc"
	"github.com/tombee/ensemble/internal/registry"
	"github.com/tombee/ensemble/internal/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test exercises POSIX shell processes")
	}
}

func newTestLauncher(t *testing.T, grace time.Duration) (*Launcher, *registry.Registry) {
	t.Helper()

	dir := t.TempDir()
	reg, err := registry.New(filepath.Join(dir, "registry.json"), quietLogger())
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}

	l, err := NewLauncher(LauncherConfig{
		Registry:    reg,
		LogDir:      filepath.Join(dir, "logs"),
		Logger:      quietLogger(),
		GracePeriod: grace,
		StopTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewLauncher() error = %v", err)
	}
	return l, reg
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}
}

func TestNewLauncher_RequiresRegistry(t *testing.T) {
	if _, err := NewLauncher(LauncherConfig{LogDir: t.TempDir()}); err == nil {
		t.Error("expected error for missing registry")
	}
}

func TestLauncher_LaunchAndStop(t *testing.T) {
	requirePOSIX(t)
	l, reg := newTestLauncher(t, 100*time.Millisecond)

	cfg := &config.ServerConfig{Command: "sleep", Args: []string{"60"}}
	h, err := l.Launch(context.Background(), "echo", cfg)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if h.PID <= 0 {
		t.Errorf("PID = %d, want > 0", h.PID)
	}
	if !h.Alive() {
		t.Error("process should be alive after launch")
	}
	if h.MaybeDetached {
		t.Error("long-running process should not be flagged as detached")
	}

	entry, ok, err := reg.Get("echo")
	if err != nil {
		t.Fatalf("registry Get() error = %v", err)
	}
	if !ok {
		t.Fatal("launch did not write a registry entry")
	}
	if entry.PID != h.PID {
		t.Errorf("registry PID = %d, want %d", entry.PID, h.PID)
	}
	if entry.ConfigHash != registry.Fingerprint(cfg) {
		t.Error("registry entry fingerprint does not match config")
	}
	if _, err := os.Stat(entry.StdoutLog); err != nil {
		t.Errorf("stdout log missing: %v", err)
	}
	if _, err := os.Stat(entry.StderrLog); err != nil {
		t.Errorf("stderr log missing: %v", err)
	}

	if err := l.Stop(h); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.Alive() {
		t.Error("process still alive after Stop")
	}

	if _, ok, _ := reg.Get("echo"); ok {
		t.Error("registry entry not removed after Stop")
	}
}

func TestLauncher_FailureCarriesStderrTail(t *testing.T) {
	requirePOSIX(t)
	l, reg := newTestLauncher(t, 2*time.Second)

	cfg := &config.ServerConfig{
		Command: "sh",
		Args:    []string{"-c", "echo boom line one >&2; echo boom line two >&2; exit 3"},
	}
	h, err := l.Launch(context.Background(), "broken", cfg)
	if err == nil {
		t.Fatal("expected launch failure for exiting process")
	}
	if h != nil {
		t.Error("expected nil handle on launch failure")
	}

	msg := err.Error()
	if !strings.Contains(msg, "exited with code 3") {
		t.Errorf("error missing exit code: %v", err)
	}
	if !strings.Contains(msg, "boom line two") {
		t.Errorf("error missing stderr tail: %v", err)
	}
	if !strings.Contains(msg, "_stderr.log") {
		t.Errorf("error missing stderr log path: %v", err)
	}

	if entries, _ := reg.Load(); len(entries) != 0 {
		t.Error("failed launch should not leave a registry entry")
	}
}

func TestLauncher_CleanEarlyExitFlagsDetached(t *testing.T) {
	requirePOSIX(t)
	l, reg := newTestLauncher(t, 2*time.Second)

	cfg := &config.ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}}
	h, err := l.Launch(context.Background(), "daemonish", cfg)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !h.MaybeDetached {
		t.Error("clean early exit should flag the handle as possibly detached")
	}

	if _, ok, _ := reg.Get("daemonish"); !ok {
		t.Error("possibly-detached launch should still be recorded")
	}
}

func TestLauncher_RefusesNonLaunchable(t *testing.T) {
	l, _ := newTestLauncher(t, 50*time.Millisecond)

	tests := []struct {
		name string
		cfg  *config.ServerConfig
	}{
		{"nil config", nil},
		{"url config", &config.ServerConfig{URL: "https://example.com/mcp"}},
		{"no command", &config.ServerConfig{}},
		{"sse type with command", &config.ServerConfig{Type: config.TransportSSE, Command: "python"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Launch(context.Background(), "srv", tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, transport.ErrUnsupportedConfig) {
				t.Errorf("error = %v, want ErrUnsupportedConfig", err)
			}
		})
	}
}

func TestLauncher_EnvOverlay(t *testing.T) {
	requirePOSIX(t)
	l, _ := newTestLauncher(t, 500*time.Millisecond)

	t.Setenv("ENSEMBLE_LAUNCH_INHERITED", "inherited")
	t.Setenv("ENSEMBLE_LAUNCH_OVERRIDDEN", "parent")

	cfg := &config.ServerConfig{
		Command: "sh",
		Args:    []string{"-c", `echo "$ENSEMBLE_LAUNCH_INHERITED $ENSEMBLE_LAUNCH_OVERRIDDEN"`},
		Env:     map[string]string{"ENSEMBLE_LAUNCH_OVERRIDDEN": "child"},
	}
	h, err := l.Launch(context.Background(), "envcheck", cfg)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	waitDone(t, h)

	data, err := os.ReadFile(h.StdoutPath)
	if err != nil {
		t.Fatalf("failed to read stdout log: %v", err)
	}
	got := strings.TrimSpace(string(data))
	if got != "inherited child" {
		t.Errorf("child environment = %q, want %q", got, "inherited child")
	}
}

func TestLauncher_LogNamesNeverCollide(t *testing.T) {
	requirePOSIX(t)
	l, _ := newTestLauncher(t, 10*time.Millisecond)

	cfg := &config.ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}}

	h1, err := l.Launch(context.Background(), "echo", cfg)
	if err != nil {
		t.Fatalf("first Launch() error = %v", err)
	}
	h2, err := l.Launch(context.Background(), "echo", cfg)
	if err != nil {
		t.Fatalf("second Launch() error = %v", err)
	}

	if h1.StdoutPath == h2.StdoutPath {
		t.Errorf("stdout log paths collide: %s", h1.StdoutPath)
	}
	if h1.StderrPath == h2.StderrPath {
		t.Errorf("stderr log paths collide: %s", h1.StderrPath)
	}
}

func TestLauncher_LaunchCanceled(t *testing.T) {
	requirePOSIX(t)
	l, reg := newTestLauncher(t, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	cfg := &config.ServerConfig{Command: "sleep", Args: []string{"60"}}
	_, err := l.Launch(ctx, "slow", cfg)
	if err == nil {
		t.Fatal("expected error for canceled launch")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}

	if entries, _ := reg.Load(); len(entries) != 0 {
		t.Error("canceled launch should not leave a registry entry")
	}
}

func TestLauncher_StopPID(t *testing.T) {
	requirePOSIX(t)
	l, reg := newTestLauncher(t, 100*time.Millisecond)

	cfg := &config.ServerConfig{Command: "sleep", Args: []string{"60"}}
	h, err := l.Launch(context.Background(), "echo", cfg)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	if err := l.StopPID("echo", h.PID); err != nil {
		t.Fatalf("StopPID() error = %v", err)
	}
	waitDone(t, h)

	alive, _ := proc.FindProcess(h.PID)
	if alive {
		t.Error("process still alive after StopPID")
	}
	if _, ok, _ := reg.Get("echo"); ok {
		t.Error("registry entry not removed after StopPID")
	}
}

func TestLauncher_StopPIDDeadProcess(t *testing.T) {
	l, reg := newTestLauncher(t, 100*time.Millisecond)

	if err := reg.Put(registry.Entry{ServerName: "gone", PID: 999999, StartTime: time.Now()}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := l.StopPID("gone", 999999); err != nil {
		t.Errorf("StopPID() on dead process error = %v", err)
	}
	if _, ok, _ := reg.Get("gone"); ok {
		t.Error("stale registry entry not removed")
	}
}

func TestLauncher_StopNilHandle(t *testing.T) {
	l, _ := newTestLauncher(t, 100*time.Millisecond)
	if err := l.Stop(nil); err != nil {
		t.Errorf("Stop(nil) error = %v", err)
	}
}
