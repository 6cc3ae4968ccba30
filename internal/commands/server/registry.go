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
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/ensemble/internal/cli/prompt"
	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/shared"
	"github.com/tombee/ensemble/internal/config"
	"github.com/tombee/ensemble/internal/orchestrator"
)

// NewAddCommand creates the 'add' command.
func NewAddCommand() *cobra.Command {
	var (
		command      string
		args         []string
		env          []string
		headers      []string
		serverURL    string
		serverType   string
		timeout      int
		argTransform string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a server to the configuration",
		Long: `Add a server to the configuration file.

Local servers declare a --command; remote servers declare a --url.
When neither is given and stdin is a terminal, an interactive form
collects the configuration instead.

See also: ensemble remove, ensemble list, ensemble launch`,
		Example: `  # Example 1: Add a local stdio server
  ensemble add fetcher --command uvx --args mcp-server-fetch

  # Example 2: Add a local server with environment variables
  ensemble add github --command npx --args "-y" --args "@modelcontextprotocol/server-github" --env "GITHUB_TOKEN=${GITHUB_TOKEN}"

  # Example 3: Add a remote websocket server
  ensemble add search --url wss://search.example.com/mcp

  # Example 4: Add interactively
  ensemble add myserver`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return runAdd(cmd.Context(), cmdArgs[0], addOptions{
				command:      command,
				args:         args,
				env:          env,
				headers:      headers,
				url:          serverURL,
				serverType:   serverType,
				timeout:      timeout,
				argTransform: argTransform,
			})
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Command to run for a local stdio server")
	cmd.Flags().StringArrayVar(&args, "args", nil, "Command arguments (can be repeated)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "Environment variables in KEY=VALUE format (can be repeated)")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "HTTP headers in KEY=VALUE format for remote servers (can be repeated)")
	cmd.Flags().StringVar(&serverURL, "url", "", "Endpoint URL for a remote server")
	cmd.Flags().StringVar(&serverType, "type", "", "Transport type: stdio, websocket, sse, or streamable-http (default: inferred)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout for tool calls in seconds (default: 30)")
	cmd.Flags().StringVar(&argTransform, "arg-transform", "", "jq expression applied to tool arguments before each call")
	cmd.RegisterFlagCompletionFunc("type", completion.CompleteTransportTypes)

	return cmd
}

type addOptions struct {
	command      string
	args         []string
	env          []string
	headers      []string
	url          string
	serverType   string
	timeout      int
	argTransform string
}

type addResponse struct {
	shared.JSONResponse
	Server string `json:"server"`
	Config string `json:"config"`
}

func runAdd(ctx context.Context, name string, opts addOptions) error {
	if opts.command == "" && opts.url == "" {
		if shared.IsNonInteractive() || shared.GetJSON() {
			return shared.NewMissingInputError(
				"interactive setup requires a terminal. Use: ensemble add NAME --command CMD or --url URL", nil)
		}
		var err error
		opts, err = collectAddForm(opts)
		if err != nil {
			return shared.NewMissingInputError("form cancelled", err)
		}
	}

	cfg := &config.ServerConfig{
		Type:         opts.serverType,
		Command:      opts.command,
		Args:         opts.args,
		URL:          opts.url,
		Timeout:      opts.timeout,
		ArgTransform: opts.argTransform,
	}

	var err error
	cfg.Env, err = parsePairs(opts.env, "--env")
	if err != nil {
		return err
	}
	cfg.Headers, err = parsePairs(opts.headers, "--header")
	if err != nil {
		return err
	}

	o, err := buildOrchestrator()
	if err != nil {
		return commandError("add", "failed to add server", err)
	}
	defer finish(ctx, o, false)

	if err := o.AddServer(name, cfg); err != nil {
		if orchestrator.CodeOf(err) == "" {
			err = shared.NewInvalidConfigError(fmt.Sprintf("failed to add server %q", name), err)
		}
		return commandError("add", "failed to add server", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(addResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "add", Success: true},
			Server:       name,
			Config:       o.ConfigPath(),
		})
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("Registered server: %s", name)))
	fmt.Printf("  %s %s\n", shared.RenderLabel("Config saved to:"), o.ConfigPath())
	if cfg.IsLaunchable() {
		fmt.Println("\nTo launch the server:")
		fmt.Printf("  ensemble launch %s\n", name)
	} else {
		fmt.Println("\nTo list its tools:")
		fmt.Printf("  ensemble tools -s %s\n", name)
	}

	return nil
}

// parsePairs splits repeated KEY=VALUE flag values into a map.
func parsePairs(pairs []string, flag string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, shared.NewMissingInputError(
				fmt.Sprintf("invalid %s value %q: expected KEY=VALUE", flag, pair), nil)
		}
		out[key] = value
	}
	return out, nil
}

// collectAddForm gathers a server configuration interactively when neither
// --command nor --url was given.
func collectAddForm(opts addOptions) (addOptions, error) {
	var kind string

	kindForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Server Type").
				Description("How is this tool server reached?").
				Options(
					huh.NewOption("Local command (stdio)", "stdio"),
					huh.NewOption("Remote URL (websocket, SSE, or streamable HTTP)", "url"),
				).
				Value(&kind),
		),
	)

	if err := kindForm.Run(); err != nil {
		if err == huh.ErrUserAborted {
			os.Exit(130) // Standard exit code for SIGINT
		}
		return opts, err
	}

	if kind == "stdio" {
		var command, argsLine string

		stdioForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Command").
					Description("Executable that starts the server").
					Placeholder("uvx").
					Validate(validateFormCommand).
					Value(&command),
				huh.NewInput().
					Title("Arguments").
					Description("Space-separated command arguments").
					Placeholder("mcp-server-fetch").
					Value(&argsLine),
			),
		)

		if err := stdioForm.Run(); err != nil {
			if err == huh.ErrUserAborted {
				os.Exit(130)
			}
			return opts, err
		}

		opts.command = command
		opts.args = strings.Fields(argsLine)
		return opts, nil
	}

	var serverURL string

	urlForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Endpoint URL").
				Description("ws://, wss://, http://, or https:// endpoint").
				Placeholder("wss://example.com/mcp").
				Validate(validateFormURL).
				Value(&serverURL),
		),
	)

	if err := urlForm.Run(); err != nil {
		if err == huh.ErrUserAborted {
			os.Exit(130)
		}
		return opts, err
	}

	opts.url = serverURL
	return opts, nil
}

func validateFormCommand(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func validateFormURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("URL must use ws, wss, http, or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// NewRemoveCommand creates the 'remove' command.
func NewRemoveCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a server from the configuration",
		Long: `Remove a server from the configuration file.

If the server is running, it is stopped first. Asks for confirmation
on a terminal; pass --force to skip it.

See also: ensemble add, ensemble list`,
		Example: `  # Example 1: Remove a server
  ensemble remove fetcher

  # Example 2: Remove without confirmation
  ensemble remove fetcher --force`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

type removeResponse struct {
	shared.JSONResponse
	Server string `json:"server"`
}

func runRemove(ctx context.Context, name string, force bool) error {
	if !force && !shared.GetJSON() && !shared.IsNonInteractive() {
		prompter := prompt.NewSurveyPrompter(true)
		confirmed, err := prompter.Confirm(ctx, fmt.Sprintf("Remove server %q?", name), false)
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
		return commandError("remove", "failed to remove server", err)
	}
	defer finish(ctx, o, false)

	if err := o.RemoveServer(ctx, name); err != nil {
		if orchestrator.CodeOf(err) == "" {
			err = shared.NewInvalidConfigError(fmt.Sprintf("failed to remove server %q", name), err)
		}
		return commandError("remove", "failed to remove server", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(removeResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "remove", Success: true},
			Server:       name,
		})
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("Removed server: %s", name)))
	return nil
}
