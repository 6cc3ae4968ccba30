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

// Package registry persists records of launched tool server processes so
// that later invocations can find, reuse, or stop them.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/proc"
)

const (
	// lockTimeout is the maximum time to wait for the cross-process file lock.
	lockTimeout = 1 * time.Second

	// lockRetryDelay is how often lock acquisition is retried.
	lockRetryDelay = 100 * time.Millisecond
)

// Entry is one persisted record of a launched server process.
type Entry struct {
	// ServerName is the configured name of the server.
	ServerName string `json:"server_name"`

	// PID is the operating system process ID.
	PID int `json:"pid"`

	// StartTime is when the process was launched.
	StartTime time.Time `json:"start_time"`

	// ConfigHash fingerprints the configuration the process was launched
	// with, so a later invocation can detect that the config changed.
	ConfigHash string `json:"config_hash"`

	// LogDir is the directory holding the process log files.
	LogDir string `json:"log_dir"`

	// StdoutLog is the path to the captured stdout stream.
	StdoutLog string `json:"stdout_log"`

	// StderrLog is the path to the captured stderr stream.
	StderrLog string `json:"stderr_log"`
}

// Registry is a durable JSON table of launched processes, keyed by server
// name. It survives orchestrator restarts so a new instance can adopt or
// stop processes launched by a previous one.
//
// Mutations hold an in-process mutex plus a cross-process file lock on
// <path>.lock, and the file is replaced atomically via temp file + rename.
type Registry struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// New creates a registry backed by the JSON file at path. An empty path
// selects the default location under the state directory.
func New(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		var err error
		path, err = config.RegistryPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve registry path: %w", err)
		}
	}
	return &Registry{path: path, logger: logger}, nil
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Load reads all entries from disk. A missing file yields an empty table.
func (r *Registry) Load() (map[string]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Save replaces the registry contents with entries.
func (r *Registry) Save(entries map[string]Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.withFileLock(func() error {
		return r.write(entries)
	})
}

// Put inserts or replaces the entry for its server name.
func (r *Registry) Put(entry Entry) error {
	if entry.ServerName == "" {
		return fmt.Errorf("registry entry has no server name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.withFileLock(func() error {
		entries, err := r.read()
		if err != nil {
			return err
		}
		entries[entry.ServerName] = entry
		return r.write(entries)
	})
}

// Remove deletes the entry for name. Removing an absent name is not an error.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.withFileLock(func() error {
		entries, err := r.read()
		if err != nil {
			return err
		}
		if _, ok := entries[name]; !ok {
			return nil
		}
		delete(entries, name)
		return r.write(entries)
	})
}

// Get returns the stored entry for name.
func (r *Registry) Get(name string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := entries[name]
	return entry, ok, nil
}

// IsRunning reports whether the recorded process for name is still alive,
// returning its PID when it is. Entries whose process has exited are
// removed on the spot so the registry heals itself as servers die.
func (r *Registry) IsRunning(name string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read()
	if err != nil {
		r.logger.Warn("failed to read process registry", "error", err)
		return false, 0
	}

	entry, ok := entries[name]
	if !ok {
		return false, 0
	}

	alive, err := proc.FindProcess(entry.PID)
	if err != nil {
		r.logger.Warn("failed to probe process",
			"server", name,
			"pid", entry.PID,
			"error", err)
	}
	if alive {
		return true, entry.PID
	}

	if err := r.removeStale(name, entry.PID); err != nil {
		r.logger.Warn("failed to remove stale registry entry",
			"server", name,
			"pid", entry.PID,
			"error", err)
	} else {
		r.logger.Debug("removed stale registry entry",
			"server", name,
			"pid", entry.PID)
	}

	return false, 0
}

// removeStale deletes the entry for name only if it still records pid.
// Callers hold r.mu.
func (r *Registry) removeStale(name string, pid int) error {
	return r.withFileLock(func() error {
		entries, err := r.read()
		if err != nil {
			return err
		}
		stored, ok := entries[name]
		if !ok || stored.PID != pid {
			return nil
		}
		delete(entries, name)
		return r.write(entries)
	})
}

// read loads the registry file. Callers hold r.mu.
func (r *Registry) read() (map[string]Entry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Entry), nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", r.path, err)
	}
	return entries, nil
}

// write persists entries atomically via a temp file in the same directory.
// Callers hold r.mu and the file lock.
func (r *Registry) write(entries map[string]Entry) error {
	if entries == nil {
		entries = make(map[string]Entry)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry temp file: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	return nil
}

// withFileLock runs fn while holding the cross-process registry lock.
func (r *Registry) withFileLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	fileLock := flock.New(r.path + ".lock")
	lockCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire registry lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire registry lock: timeout after %v", lockTimeout)
	}
	defer fileLock.Unlock()

	return fn()
}
