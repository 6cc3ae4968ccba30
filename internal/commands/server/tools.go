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

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/ensemble/internal/client"
	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/shared"
)

// NewToolsCommand creates the 'tools' command.
func NewToolsCommand() *cobra.Command {
	var serverName string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tools available from a server",
		Long: `List the tools a server advertises, with their descriptions.

Connecting may launch the server first when it is local and auto-launch
is enabled. A server launched this way is stopped again when the command
exits; use 'ensemble launch' to keep one running.

See also: ensemble query, ensemble list`,
		Example: `  # Example 1: List tools from a server
  ensemble tools -s fetcher

  # Example 2: Get the tool list as JSON
  ensemble tools -s fetcher --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd.Context(), serverName)
		},
	}

	cmd.Flags().StringVarP(&serverName, "server", "s", "", "Server name to query (required)")
	cmd.MarkFlagRequired("server")
	cmd.RegisterFlagCompletionFunc("server", completion.CompleteServerNames)

	return cmd
}

type toolsResponse struct {
	shared.JSONResponse
	Server string        `json:"server"`
	Tools  []client.Tool `json:"tools"`
}

func runTools(ctx context.Context, serverName string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return commandError("tools", "failed to list tools", err)
	}
	defer finish(ctx, o, true)

	tools, err := o.ListTools(ctx, serverName)
	if err != nil {
		return commandError("tools", fmt.Sprintf("failed to list tools from server %q", serverName), err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(toolsResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "tools", Success: true},
			Server:       serverName,
			Tools:        tools,
		})
	}

	if len(tools) == 0 {
		fmt.Println("No tools available from this server.")
		return nil
	}

	fmt.Printf("Tools from %s:\n\n", serverName)
	for _, t := range tools {
		fmt.Printf("  %s.%s\n", serverName, t.Name)
		if t.Description != "" {
			// Wrap description at 60 chars
			desc := wrapText(t.Description, 60)
			for _, line := range strings.Split(desc, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
		fmt.Println()
	}

	return nil
}
