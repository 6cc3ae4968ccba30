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
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Handle tracks a server process launched by this orchestrator instance.
type Handle struct {
	// ServerName is the configured name of the server.
	ServerName string

	// PID is the operating system process ID.
	PID int

	// StartTime is when the process was started.
	StartTime time.Time

	// StdoutPath and StderrPath are the log files the process writes to.
	StdoutPath string
	StderrPath string

	// MaybeDetached is set when the process exited cleanly during the
	// launch grace period, which usually means it forked its real work
	// into the background and the recorded PID no longer matters.
	MaybeDetached bool

	process *os.Process
	done    chan struct{}
	exitErr error
	logOnce sync.Once
	stdout  *os.File
	stderr  *os.File
}

// Alive reports whether the process has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitError returns the wait error once the process has been reaped,
// nil for a clean exit or while the process is still running.
func (h *Handle) ExitError() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// setExit records the wait result and marks the handle done.
func (h *Handle) setExit(err error) {
	h.exitErr = err
	close(h.done)
}

// exitCode maps the recorded wait error to a process exit code. It is
// only meaningful after the handle is done.
func (h *Handle) exitCode() int {
	if h.exitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(h.exitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// closeLogs releases the parent's copies of the log file descriptors.
// The child keeps its own, so this never truncates the logs.
func (h *Handle) closeLogs() {
	h.logOnce.Do(func() {
		if h.stdout != nil {
			h.stdout.Close()
		}
		if h.stderr != nil {
			h.stderr.Close()
		}
	})
}
