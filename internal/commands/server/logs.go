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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/ensemble/internal/commands/completion"
	"github.com/tombee/ensemble/internal/commands/shared"
	pkgerrors "github.com/tombee/ensemble/pkg/errors"
)

// NewLogsCommand creates the 'logs' command.
func NewLogsCommand() *cobra.Command {
	var (
		lines      int
		showStdout bool
	)

	cmd := &cobra.Command{
		Use:   "logs <server>",
		Short: "Show log files for a local server",
		Long: `Show the stdout and stderr log paths recorded for a local server,
and the tail of its stderr log.

Each launch writes a fresh pair of log files; the paths shown belong to
the most recent launch. Servers log diagnostics to stderr, so that is
what tails by default.

See also: ensemble launch, ensemble list`,
		Example: `  # Example 1: Show log paths and the last lines of stderr
  ensemble logs fetcher

  # Example 2: Show more context
  ensemble logs fetcher --lines 100

  # Example 3: Tail stdout instead
  ensemble logs fetcher --stdout

  # Example 4: Paths only
  ensemble logs fetcher --lines 0`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteServerNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd.Context(), args[0], lines, showStdout)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show")
	cmd.Flags().BoolVar(&showStdout, "stdout", false, "Tail the stdout log instead of stderr")

	return cmd
}

type logsResponse struct {
	shared.JSONResponse
	Server string `json:"server"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func runLogs(ctx context.Context, name string, lines int, showStdout bool) error {
	o, err := buildOrchestrator()
	if err != nil {
		return commandError("logs", "failed to read logs", err)
	}
	defer finish(ctx, o, false)

	stdout, stderr, err := o.ServerLogs(name)
	if err != nil {
		var nfErr *pkgerrors.NotFoundError
		if errors.As(err, &nfErr) {
			err = shared.NewExecutionError(
				fmt.Sprintf("no logs found for server %q; it has not been launched on this machine", name), nil)
		}
		return commandError("logs", "failed to read logs", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(logsResponse{
			JSONResponse: shared.JSONResponse{Version: "1.0", Command: "logs", Success: true},
			Server:       name,
			Stdout:       stdout,
			Stderr:       stderr,
		})
	}

	fmt.Printf("Logs for %s:\n\n", name)
	fmt.Printf("  stdout: %s\n", stdout)
	fmt.Printf("  stderr: %s\n", stderr)

	if lines <= 0 {
		return nil
	}

	path := stderr
	label := "stderr"
	if showStdout {
		path = stdout
		label = "stdout"
	}
	if path == "" {
		return nil
	}

	tail, err := tailFile(path, lines)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("\n(%s log not written yet)\n", label)
			return nil
		}
		return shared.NewExecutionError(fmt.Sprintf("failed to read %s log", label), err)
	}

	fmt.Printf("\nLast %d lines of %s:\n", len(tail), label)
	for _, line := range tail {
		fmt.Printf("  %s\n", line)
	}

	return nil
}

// tailFile returns up to n trailing lines of the file at path.
func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}

	all := strings.Split(content, "\n")
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
