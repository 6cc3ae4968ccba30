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
	"fmt"
	"os"
	"syscall"
)

// Terminate asks the process to exit gracefully with SIGTERM.
// A process that is already gone is not an error.
func Terminate(pid int) error {
	return signal(pid, syscall.SIGTERM)
}

// Kill forcefully terminates the process with SIGKILL.
func Kill(pid int) error {
	return signal(pid, syscall.SIGKILL)
}

func signal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := proc.Signal(sig); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to send %v to process %d: %w", sig, pid, err)
	}

	return nil
}
