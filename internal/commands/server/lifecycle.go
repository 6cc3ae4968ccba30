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
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/ensemble/internal/cli/prompt"
	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/shared"
	"github.com/tombee/ensemble/internal/orchestrator"
)

// NewLaunchCommand creates the 'launch' command.
func NewLaunchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch <server>",
		Short: "Launch a local server",
		Long: `Launch a local stdio server as a detached process.

The process is recorded in the registry and keeps running after this
command exits. Launching an already-running server is a no-op.

See also: ensemble stop, ensemble list, ensemble logs`,
		Example: `  # Example 1: Launch a configured local server
  ensemble launch fetcher

  # Example 2: Launch and read back the PID
  ensemble launch fetcher --json | jq .pid`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), args[0])
		},
	}

	return cmd
}

type launchResponse struct {
	shared.JSONResponse
	Server  string `json:"server"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func runLaunch(ctx context.Context, name string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return commandError("launch", "launch failed", err)
	}
	defer finish(ctx, o, false)

	cfg, ok := o.GetServerConfig(name)
	if !ok {
		return commandError("launch", "launch failed", orchestrator.ErrConfigNotFound(name))
	}
	if !cfg.IsLaunchable() {
		err := orchestrator.NewError(orchestrator.CodeUnsupportedConfig,
			fmt.Sprintf("Server '%s' is not launchable", name)).
			WithDetail("launching requires a stdio command").
			WithSuggestions("Remote servers are connected on demand; try: ensemble tools -s " + name)
		return commandError("launch", "launch failed", err)
	}

	running, detail := o.LaunchServer(ctx, name)
	if !running {
		return commandError("launch", "launch failed",
			shared.NewServerError(fmt.Sprintf("failed to launch server %q", name), errors.New(detail)))
	}

	_, pid := o.IsRunning(name)

	if shared.GetJSON() {
		return shared.EmitJSON(launchResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "launch", Success: true},
			Server:       name,
			Running:      true,
			PID:          pid,
			Detail:       detail,
		})
	}

	if detail == "already running" {
		fmt.Println(shared.RenderOK(fmt.Sprintf("Server already running: %s (pid %d)", name, pid)))
		return nil
	}
	fmt.Println(shared.RenderOK(fmt.Sprintf("Launched server: %s (pid %d)", name, pid)))
	fmt.Println("\nTo check its logs:")
	fmt.Printf("  ensemble logs %s\n", name)

	return nil
}

// NewStopCommand creates the 'stop' command.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <server>",
		Short: "Stop a running local server",
		Long: `Stop a running local server.

The process is signalled to exit gracefully and killed after the stop
timeout. Stopping a server that is not running is a no-op.

See also: ensemble launch, ensemble stop-all`,
		Example: `  # Example 1: Stop a running server
  ensemble stop fetcher`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0])
		},
	}

	return cmd
}

type stopResponse struct {
	shared.JSONResponse
	Server  string `json:"server"`
	Stopped bool   `json:"stopped"`
	Detail  string `json:"detail,omitempty"`
}

func runStop(ctx context.Context, name string) error {
	o, err := buildOrchestrator()
	if err != nil {
		return commandError("stop", "stop failed", err)
	}
	defer finish(ctx, o, false)

	if running, _ := o.IsRunning(name); !running {
		if shared.GetJSON() {
			return shared.EmitJSON(stopResponse{
				JSONResponse: shared.JSONResponse{Version: "1.0", Command: "stop", Success: true},
				Server:       name,
				Stopped:      false,
				Detail:       "not running",
			})
		}
		fmt.Println(shared.RenderWarn(fmt.Sprintf("Server not running: %s", name)))
		return nil
	}

	stopped, detail := o.StopServer(ctx, name)
	if !stopped {
		return commandError("stop", "stop failed",
			shared.NewServerError(fmt.Sprintf("failed to stop server %q", name), errors.New(detail)))
	}

	if shared.GetJSON() {
		return shared.EmitJSON(stopResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "stop", Success: true},
			Server:       name,
			Stopped:      true,
		})
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("Stopped server: %s", name)))
	return nil
}

// NewStopAllCommand creates the 'stop-all' command.
func NewStopAllCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop all running local servers",
		Long: `Stop every running local server, including the detached processes
left behind by earlier invocations.

Asks for confirmation on a terminal; pass --force to skip it.

See also: ensemble stop, ensemble list`,
		Example: `  # Example 1: Stop everything, with confirmation
  ensemble stop-all

  # Example 2: Stop everything from a script
  ensemble stop-all --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStopAll(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

type stopAllResult struct {
	Server  string `json:"server"`
	Stopped bool   `json:"stopped"`
}

type stopAllResponse struct {
	shared.JSONResponse
	Results []stopAllResult `json:"results"`
}

func runStopAll(ctx context.Context, force bool) error {
	if !force && !shared.GetJSON() && !shared.IsNonInteractive() {
		prompter := prompt.NewSurveyPrompter(true)
		confirmed, err := prompter.Confirm(ctx, "Stop all running servers?", false)
		if err != nil {
			return shared.NewExecutionError("confirmation failed", err)
		}
		if !confirmed {
			fmt.Println("Canceled")
			return nil
		}
	}

	o, err := buildOrchestrator()
	if err != nil {
		return commandError("stop-all", "stop-all failed", err)
	}
	defer finish(ctx, o, false)

	outcome := o.StopAllServers(ctx)

	results := make([]stopAllResult, 0, len(outcome))
	for name, ok := range outcome {
		results = append(results, stopAllResult{Server: name, Stopped: ok})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Server < results[j].Server })

	failed := 0
	for _, r := range results {
		if !r.Stopped {
			failed++
		}
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(stopAllResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "stop-all", Success: failed == 0},
			Results:      results,
		}); err != nil {
			return err
		}
		if failed > 0 {
			return &shared.ExitError{Code: shared.ExitServerError}
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No running servers.")
		return nil
	}

	for _, r := range results {
		if r.Stopped {
			fmt.Println(shared.RenderOK(fmt.Sprintf("Stopped server: %s", r.Server)))
		} else {
			fmt.Println(shared.RenderError(fmt.Sprintf("Failed to stop server: %s", r.Server)))
		}
	}

	if failed > 0 {
		return shared.NewServerError(fmt.Sprintf("failed to stop %d server(s)", failed), nil)
	}
	return nil
}
