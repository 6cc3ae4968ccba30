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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/ensemble/internal/adapt"
	"github.com/tombee/ensemble/internal/cli/format"
	"github.com/tombee/ensemble/internal/cli/prompt"
	"github.com/tombee/ensemble/internal/client"
	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/shared"
	"github.com/tombee/ensemble/internal/orchestrator"
)

// defaultTool is called when no --tool is given, matching the convention
// of message-processing servers.
const defaultTool = "process_message"

// NewQueryCommand creates the 'query' command.
func NewQueryCommand() *cobra.Command {
	var (
		serverName   string
		toolName     string
		message      string
		argsJSON     string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Call a tool on a server",
		Long: `Call a tool on a server and print the result.

A plain --message is folded into the tool's expected parameter: "url"
for fetch-style tools, "message" otherwise. Structured arguments are
passed with --args as a JSON object. Required arguments that are still
missing are prompted for on a terminal; in non-interactive runs the
command fails instead.

See also: ensemble tools, ensemble list`,
		Example: `  # Example 1: Send a message to a server's default tool
  ensemble query -s echo -m "hello"

  # Example 2: Call a specific tool with structured arguments
  ensemble query -s fetcher -t fetch -a '{"url": "https://example.com"}'

  # Example 3: Fold a message into a fetch-style tool
  ensemble query -s fetcher -t fetch -m "https://example.com"

  # Example 4: Render a markdown result for the terminal
  ensemble query -s fetcher -t fetch_markdown -m "https://example.com" --format markdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), serverName, toolName, message, argsJSON, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&serverName, "server", "s", "", "Server name to query (required)")
	cmd.Flags().StringVarP(&toolName, "tool", "t", defaultTool, "Tool to call")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message to send")
	cmd.Flags().StringVarP(&argsJSON, "args", "a", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&outputFormat, "format", "", "Output format: text, json, markdown, or code:<lang>")
	cmd.MarkFlagRequired("server")
	cmd.RegisterFlagCompletionFunc("server", completion.CompleteServerNames)
	cmd.RegisterFlagCompletionFunc("format", completion.CompleteOutputFormats)

	return cmd
}

type queryResponse struct {
	shared.JSONResponse
	Server  string           `json:"server"`
	Tool    string           `json:"tool"`
	IsError bool             `json:"isError"`
	Content []client.Content `json:"content"`
}

func runQuery(ctx context.Context, serverName, toolName, message, argsJSON, outputFormat string) error {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return shared.NewMissingInputError("invalid JSON in --args", err)
		}
	}

	o, err := buildOrchestrator()
	if err != nil {
		return commandError("query", "query failed", err)
	}
	defer finish(ctx, o, true)

	tools, err := o.ListTools(ctx, serverName)
	if err != nil {
		return commandError("query", "query failed", err)
	}

	var schema json.RawMessage
	names := make([]string, 0, len(tools))
	found := false
	for _, t := range tools {
		names = append(names, t.Name)
		if t.Name == toolName {
			schema = t.InputSchema
			found = true
		}
	}
	if !found {
		return commandError("query", "query failed", orchestrator.ErrToolNotFound(serverName, toolName, names))
	}

	args, err = fillMissingArgs(ctx, schema, args, message, toolName)
	if err != nil {
		return err
	}

	spinner := shared.NewSpinner()
	if !shared.GetJSON() && !shared.GetQuiet() {
		spinner.Start(fmt.Sprintf("Querying %s", serverName))
	}
	result, err := o.Query(ctx, serverName, toolName, args, message)
	spinner.Stop()
	if err != nil {
		return commandError("query", "query failed", err)
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(queryResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "query", Success: !result.IsError},
			Server:       serverName,
			Tool:         toolName,
			IsError:      result.IsError,
			Content:      result.Content,
		}); err != nil {
			return err
		}
		if result.IsError {
			return &shared.ExitError{Code: shared.ExitExecutionFailed}
		}
		return nil
	}

	text := result.Text()
	if result.IsError {
		if text == "" {
			text = "no error detail provided"
		}
		return shared.NewExecutionError(fmt.Sprintf("tool %q failed", toolName), errors.New(text))
	}

	rendered, err := format.Format(text, outputFormat, format.IsTTY())
	if err != nil {
		return shared.NewExecutionError("failed to render result", err)
	}
	fmt.Println(rendered)

	return nil
}

// fillMissingArgs compares the tool's input schema against what the caller
// supplied, counting the message fold, and prompts for whatever required
// arguments remain. Non-interactive runs fail instead of hanging on a
// prompt that can never be answered.
func fillMissingArgs(ctx context.Context, schema json.RawMessage, args map[string]any, message, toolName string) (map[string]any, error) {
	var schemaMap map[string]interface{}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &schemaMap); err != nil {
			// An unparseable schema is the server's problem; let the call
			// proceed and the server report it.
			return args, nil
		}
	}

	provided := adapt.Merge(schema, args, message)
	missing := prompt.FindMissingArgs(schemaMap, provided)
	if len(missing) == 0 {
		return args, nil
	}

	if shared.IsNonInteractive() || shared.GetJSON() {
		argNames := make([]string, 0, len(missing))
		for _, m := range missing {
			argNames = append(argNames, m.Name)
		}
		msg := fmt.Sprintf("missing required arguments for tool %q: %s", toolName, strings.Join(argNames, ", "))

		if shared.GetJSON() {
			_ = shared.EmitJSONError("query", []shared.JSONError{{
				Code:       "MISSING_INPUT",
				Message:    msg,
				Suggestion: `Pass required arguments with -a '{"key": "value"}'`,
			}})
			return nil, &shared.ExitError{Code: shared.ExitMissingInputNonInteractive}
		}
		return nil, shared.NewMissingInputNonInteractiveError(msg, nil)
	}

	collector := prompt.NewArgCollector(prompt.NewSurveyPrompter(true))
	collected, err := collector.CollectArgs(ctx, missing)
	if err != nil {
		return nil, shared.NewMissingInputError("argument collection failed", err)
	}

	merged := make(map[string]any, len(args)+len(collected))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range collected {
		merged[k] = v
	}
	return merged, nil
}
