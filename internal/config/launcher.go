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

import (
	"path/filepath"
	"strings"
)

// LauncherKind identifies the launch strategy for a stdio server command.
// The store stamps it on every configuration as it loads, so launches never
// re-derive the strategy from the command string.
type LauncherKind int

const (
	// LauncherUnknown is the zero value for configurations built by hand
	// rather than loaded; consumers detect on demand.
	LauncherUnknown LauncherKind = iota

	// LauncherGeneric passes the configured argv through unchanged.
	LauncherGeneric

	// LauncherInterpreter is a script interpreter (python, node) whose
	// argv also passes through unchanged.
	LauncherInterpreter

	// LauncherPackageRunner is an ecosystem package runner (npx, uvx) whose
	// argv is rewritten to {runner, package, remaining args}.
	LauncherPackageRunner
)

// String returns a readable launcher kind for logging.
func (k LauncherKind) String() string {
	switch k {
	case LauncherGeneric:
		return "generic"
	case LauncherInterpreter:
		return "interpreter"
	case LauncherPackageRunner:
		return "package-runner"
	default:
		return "unknown"
	}
}

// DetectLauncherKind resolves the launch strategy from the command name.
func DetectLauncherKind(command string) LauncherKind {
	switch CommandBase(command) {
	case "python", "python3", "node":
		return LauncherInterpreter
	case "npx", "uvx":
		return LauncherPackageRunner
	default:
		return LauncherGeneric
	}
}

// CommandBase normalizes a command path to its lowercase base name,
// tolerating Windows .exe suffixes.
func CommandBase(command string) string {
	base := strings.ToLower(filepath.Base(command))
	return strings.TrimSuffix(base, ".exe")
}
