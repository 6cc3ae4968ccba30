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

//go:build windows

package proc

import (
	"fmt"
	"os"
)

// Terminate stops the process. Windows offers no SIGTERM analog for a
// detached process, so the graceful and forceful paths are the same call.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill forcefully terminates the process via TerminateProcess.
func Kill(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Kill(); err != nil {
		if alive, _ := FindProcess(pid); !alive {
			return nil
		}
		return fmt.Errorf("failed to terminate process %d: %w", pid, err)
	}

	return nil
}
