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
	"syscall"
	"unsafe"
)

// Windows API constants
const (
	processQueryInformation = 0x0400
	stillActive             = 259
)

// Windows API functions
var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	openProcess        = kernel32.NewProc("OpenProcess")
	getExitCodeProcess = kernel32.NewProc("GetExitCodeProcess")
	closeHandle        = kernel32.NewProc("CloseHandle")
)

// FindProcess reports whether a process with the given PID is running.
// Windows has no signal 0, so the probe opens the process handle and reads
// its exit code: STILL_ACTIVE means running.
func FindProcess(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	handle, _, _ := openProcess.Call(
		uintptr(processQueryInformation),
		uintptr(0),
		uintptr(pid),
	)

	if handle == 0 {
		// Process doesn't exist or cannot be opened
		return false, nil
	}
	defer closeHandle.Call(handle)

	var exitCode uint32
	ret, _, err := getExitCodeProcess.Call(
		handle,
		uintptr(unsafe.Pointer(&exitCode)),
	)

	if ret == 0 {
		return false, fmt.Errorf("failed to get process exit code: %w", err)
	}

	return exitCode == stillActive, nil
}
