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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/ensemble/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for Ensemble
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Ensemble - tool server orchestration",
		Long: `Ensemble manages a set of named tool servers from the command line.
Local servers are launched as detached processes that survive across
invocations; remote servers are reached over HTTP, SSE, or WebSocket.
Server definitions live in a single config file shared by every command.

Run 'ensemble list' to see configured servers.
Run 'ensemble query -s <server> -m <message>' to call a tool.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	verbose, quiet, json, config, noAutoLaunch := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVarP(config, "config", "c", "", "Path to server config file (default: ~/.config/ensemble/servers.json)")
	cmd.PersistentFlags().BoolVar(noAutoLaunch, "no-auto-launch", false, "Do not launch local servers automatically on connect")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
