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

// Package proc provides the platform process primitives the launcher and
// registry build on: liveness probes for processes we did not parent,
// detach attributes for spawning, and graceful/forceful termination.
package proc

import (
	"errors"
	"time"
)

// ErrShutdownTimeout is returned when a process doesn't exit within the timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// WaitForExit waits for the process to exit, probing every interval.
// An interval of 0 defaults to 100ms. Returns ErrShutdownTimeout if the
// process is still running after timeout.
func WaitForExit(pid int, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := FindProcess(pid)
		if err != nil || !alive {
			return nil
		}
		time.Sleep(interval)
	}

	return ErrShutdownTimeout
}
