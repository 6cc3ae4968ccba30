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

import "testing"

func TestDetectLauncherKind(t *testing.T) {
	tests := []struct {
		command string
		want    LauncherKind
	}{
		{"python", LauncherInterpreter},
		{"python3", LauncherInterpreter},
		{"/usr/local/bin/python3", LauncherInterpreter},
		{"node", LauncherInterpreter},
		{"NODE.EXE", LauncherInterpreter},
		{"npx", LauncherPackageRunner},
		{"uvx", LauncherPackageRunner},
		{"/opt/node/bin/npx", LauncherPackageRunner},
		{"./my-server", LauncherGeneric},
		{"ruby", LauncherGeneric},
		{"", LauncherGeneric},
	}

	for _, tt := range tests {
		if got := DetectLauncherKind(tt.command); got != tt.want {
			t.Errorf("DetectLauncherKind(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestLauncherKind_String(t *testing.T) {
	tests := []struct {
		kind LauncherKind
		want string
	}{
		{LauncherGeneric, "generic"},
		{LauncherInterpreter, "interpreter"},
		{LauncherPackageRunner, "package-runner"},
		{LauncherUnknown, "unknown"},
		{LauncherKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("LauncherKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
