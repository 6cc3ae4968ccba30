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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the server configuration file and reloads the store when
// it changes. Reloads are debounced because editors and our own atomic saves
// emit bursts of events for a single logical change.
type Watcher struct {
	// fsWatcher is the underlying filesystem watcher
	fsWatcher *fsnotify.Watcher

	// store is reloaded when the config file changes
	store *Store

	// onReload is invoked after each successful reload
	onReload func()

	// logger is used for structured logging
	logger *slog.Logger

	// debounceDelay is the delay before reloading after file changes
	debounceDelay time.Duration

	// configPath is the absolute path of the watched file
	configPath string

	// pending is the debounce timer for an in-flight reload
	pending *time.Timer

	// mu protects pending
	mu sync.Mutex

	// ctx is the watcher's lifecycle context
	ctx context.Context

	// cancel stops the watcher
	cancel context.CancelFunc

	// wg tracks active goroutines
	wg sync.WaitGroup
}

// WatcherConfig configures the config file watcher.
type WatcherConfig struct {
	// Store is the configuration store to reload on changes
	Store *Store

	// OnReload is invoked after each successful reload (optional)
	OnReload func()

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceDelay is the delay before reloading after file changes (defaults to 200ms)
	DebounceDelay time.Duration
}

// NewWatcher creates a watcher for the store's configuration file.
// The parent directory is watched rather than the file itself because saves
// done as write-then-rename replace the inode a direct watch is bound to.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	configPath, err := filepath.Abs(cfg.Store.Path())
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if err := fsWatcher.Add(filepath.Dir(configPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		fsWatcher:     fsWatcher,
		store:         cfg.Store,
		onReload:      cfg.OnReload,
		logger:        logger,
		debounceDelay: debounceDelay,
		configPath:    configPath,
		ctx:           ctx,
		cancel:        cancel,
	}

	// Start event processing loop
	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// processEvents filters filesystem events down to the config file and
// schedules debounced reloads.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isConfigEvent(event) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

// isConfigEvent reports whether the event targets the watched config file.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	absPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return absPath == w.configPath
}

// scheduleReload resets the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.triggerReload)
	w.mu.Unlock()
}

// triggerReload reloads the store and notifies the callback.
func (w *Watcher) triggerReload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	if err := w.store.Reload(); err != nil {
		w.logger.Error("failed to reload server configuration",
			"path", w.configPath,
			"error", err,
		)
		return
	}

	w.logger.Info("server configuration reloaded",
		"path", w.configPath,
		"servers", w.store.Len(),
	)

	if w.onReload != nil {
		w.onReload()
	}
}

// Close shuts down the watcher.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	// Wait for event processing to stop
	w.wg.Wait()

	return w.fsWatcher.Close()
}
