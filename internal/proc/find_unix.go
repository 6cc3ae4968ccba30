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

//go:build !windows

package proc

import (
	"errors"
	"os"
	"syscall"
)

// FindProcess reports whether a process with the given PID is running.
// On Unix, os.FindProcess always succeeds regardless of whether the process
// exists, so liveness is probed by sending signal 0, which delivers nothing
// but performs the existence and permission checks.
func FindProcess(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EPERM) {
		// Process exists but belongs to another user.
		return true, nil
	}
	return false, nil
}
