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

import "syscall"

// DetachPolicy returns the SysProcAttr that detaches a spawned child from
// the parent: a new session, so the child survives the parent's exit and
// never receives the parent's terminal signals. setsid already makes the
// child the leader of a fresh process group; asking for Setpgid as well
// would have the runtime call setpgid on a session leader, which POSIX
// rejects with EPERM.
func DetachPolicy() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
