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

// Package server implements the top-level CLI verbs for managing tool
// servers: list, tools, query, launch, stop, stop-all, logs, add, and
// remove.
package server

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/tombee/ensemble/internal/commands/shared"
	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/log"
	"github.com/tombee/ensemble/internal/orchestrator"
	"github.com/tombee/ensemble/internal/tracing"
)

// newLogger builds the invocation logger from the global flags. Logs go to
// stderr so stdout stays clean for command output and --json envelopes.
func newLogger() *slog.Logger {
	cfg := log.FromEnv()
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Format = log.FormatText
	}
	if shared.GetVerbose() {
		cfg.Level = "debug"
	}
	if shared.GetQuiet() {
		cfg.Level = "error"
	}
	return log.WithCorrelationID(log.New(cfg), tracing.NewCorrelationID().String())
}

// configPath resolves the configuration file location: the --config flag
// wins, then ENSEMBLE_CONFIG, then the platform default.
func configPath() string {
	if p := shared.GetConfigPath(); p != "" {
		return p
	}
	return os.Getenv("ENSEMBLE_CONFIG")
}

// buildOrchestrator loads the server configuration and assembles an
// orchestrator for a single command invocation.
func buildOrchestrator(opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	logger := newLogger()

	store, err := config.LoadStore(configPath(), logger)
	if err != nil {
		return nil, shared.NewInvalidConfigError("failed to load server configuration", err)
	}

	base := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithAutoLaunch(!shared.GetNoAutoLaunch()),
	}
	o, err := orchestrator.New(store, append(base, opts...)...)
	if err != nil {
		return nil, shared.NewExecutionError("failed to initialize orchestrator", err)
	}
	return o, nil
}

// finish releases protocol sessions once a command is done. stopLaunched
// also stops the local pipe servers this invocation launched itself;
// lifecycle verbs pass false so the detached servers they manage survive.
func finish(ctx context.Context, o *orchestrator.Orchestrator, stopLaunched bool) {
	_ = o.Close(ctx, stopLaunched)
}

// exitCodeOf maps an error onto the CLI exit-code taxonomy.
func exitCodeOf(err error) int {
	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch orchestrator.CodeOf(err) {
	case orchestrator.CodeConfigNotFound, orchestrator.CodeUnsupportedConfig:
		return shared.ExitInvalidConfig
	case orchestrator.CodeLaunchFailed, orchestrator.CodeTransport,
		orchestrator.CodeConnectionClosed, orchestrator.CodeTimeout:
		return shared.ExitServerError
	default:
		return shared.ExitExecutionFailed
	}
}

// jsonErrorFrom converts an error into the structured form --json consumers
// parse. Orchestration errors keep their code; everything else is INTERNAL.
func jsonErrorFrom(err error) shared.JSONError {
	var oErr *orchestrator.OrchestratorError
	if errors.As(err, &oErr) {
		return shared.JSONError{
			Code:       string(oErr.Code),
			Message:    oErr.Message,
			Detail:     oErr.Detail,
			Suggestion: oErr.Suggestion(),
		}
	}
	return shared.JSONError{
		Code:    string(orchestrator.CodeInternal),
		Message: err.Error(),
	}
}

// commandError adapts a failure to the active output mode: an error
// envelope on stdout under --json, a coded ExitError otherwise. The
// original error stays in the chain so suggestions print.
func commandError(command, msg string, err error) error {
	if err == nil {
		return nil
	}
	if shared.GetJSON() {
		_ = shared.EmitJSONError(command, []shared.JSONError{jsonErrorFrom(err)})
		return &shared.ExitError{Code: exitCodeOf(err)}
	}

	var exitErr *shared.ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &shared.ExitError{Code: exitCodeOf(err), Message: msg, Cause: err}
}
