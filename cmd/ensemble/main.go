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

package main

import (
	"github.com/tombee/ensemble/internal/cli"
	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/server"
	versioncmd "github.com/tombee/ensemble/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Server inspection commands
	rootCmd.AddCommand(server.NewListCommand())
	rootCmd.AddCommand(server.NewToolsCommand())
	rootCmd.AddCommand(server.NewQueryCommand())

	// Lifecycle commands
	rootCmd.AddCommand(server.NewLaunchCommand())
	rootCmd.AddCommand(server.NewStopCommand())
	rootCmd.AddCommand(server.NewStopAllCommand())
	rootCmd.AddCommand(server.NewLogsCommand())

	// Configuration commands
	rootCmd.AddCommand(server.NewAddCommand())
	rootCmd.AddCommand(server.NewRemoveCommand())

	// Diagnostics commands
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
