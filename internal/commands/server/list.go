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

	"github.com/tombee/ensemble/internal/commands/shared"
	"github.com/tombee/ensemble/internal/transport"
)

// NewListCommand creates the 'list' command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tool servers",
		Long: `List configured tool servers with transport and running status.

Local stdio servers report the PID recorded in the process registry.
Remote servers are listed with their transport only; they are not
managed by this machine.

See also: ensemble add, ensemble launch, ensemble tools`,
		Example: `  # Example 1: List configured servers
  ensemble list

  # Example 2: Get the server list as JSON
  ensemble list --json

  # Example 3: Extract server names for scripting
  ensemble list --json | jq -r '.servers[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context())
		},
	}

	return cmd
}

type listedServer struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Local     bool   `json:"local"`
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
}

type listResponse struct {
	shared.JSONResponse
	Config  string         `json:"config"`
	Servers []listedServer `json:"servers"`
}

func runList(ctx context.Context) error {
	o, err := buildOrchestrator()
	if err != nil {
		return commandError("list", "failed to list servers", err)
	}
	defer finish(ctx, o, false)

	names := o.ListServers()
	servers := make([]listedServer, 0, len(names))
	for _, name := range names {
		cfg, ok := o.GetServerConfig(name)
		if !ok {
			continue
		}

		kind := "invalid"
		if desc, err := transport.Select(name, cfg); err == nil {
			kind = desc.Kind.String()
		}

		entry := listedServer{
			Name:      name,
			Transport: kind,
			Local:     o.IsLocalPipeServer(name),
		}
		if entry.Local {
			entry.Running, entry.PID = o.IsRunning(name)
		}
		servers = append(servers, entry)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(listResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "list", Success: true},
			Config:       o.ConfigPath(),
			Servers:      servers,
		})
	}

	if len(servers) == 0 {
		fmt.Println("No MCP servers configured.")
		fmt.Println("\nTo add a server:")
		fmt.Println("  ensemble add <name> --command <cmd>")
		return nil
	}

	fmt.Printf("%-20s %-16s %-10s %s\n", "NAME", "TRANSPORT", "STATUS", "PID")
	fmt.Println(strings.Repeat("-", 55))

	for _, s := range servers {
		status := "remote"
		pid := "-"
		if s.Local {
			status = "stopped"
			if s.Running {
				status = "running"
				pid = fmt.Sprintf("%d", s.PID)
			}
		}

		// Pad before styling: ANSI codes would otherwise count against
		// the column width.
		fmt.Printf("%-20s %-16s %s %s\n",
			truncate(s.Name, 20),
			s.Transport,
			shared.RenderServerState(fmt.Sprintf("%-10s", status)),
			pid,
		)
	}

	return nil
}
