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

import "syscall"

// detachedProcess is the DETACHED_PROCESS creation flag.
const detachedProcess = 0x00000008

// DetachPolicy returns the SysProcAttr that detaches a spawned child from
// the parent. Windows has no sessions; a new process group plus the
// DETACHED_PROCESS flag keeps the child alive and console-free after the
// parent exits.
func DetachPolicy() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}
