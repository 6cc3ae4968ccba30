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

/*
Package cli provides the root command and shared configuration for Ensemble's CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	ensemble
	├── list          List configured servers and their status
	├── tools         List tools advertised by a server
	├── query         Call a tool on a server
	├── launch        Launch a local server as a detached process
	├── stop          Stop a running server
	├── stop-all      Stop every tracked server
	├── logs          Show log file paths for a server
	├── add           Add a server to the config
	├── remove        Remove a server from the config
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v       Enable verbose output
	--quiet, -q         Suppress non-error output
	--json              Output in JSON format
	--config, -c        Path to server config file
	--no-auto-launch    Do not launch local servers automatically

# Error Handling

Errors are handled centrally to ensure proper exit codes:

  - Exit 0: Success
  - Exit 1: General error
  - Exit 2: Invalid server configuration
  - Exit 3: Missing required input
  - Exit 4: Server launch or transport failure

Use HandleExitError for consistent error handling:

	if err := cmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
