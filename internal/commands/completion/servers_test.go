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

package completion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompleteServerNames(t *testing.T) {
	// Create a temporary config directory with ensemble subdirectory
	tmpDir := t.TempDir()
	ensembleDir := filepath.Join(tmpDir, "ensemble")
	if err := os.MkdirAll(ensembleDir, 0700); err != nil {
		t.Fatalf("failed to create test config dir: %v", err)
	}
	configPath := filepath.Join(ensembleDir, "servers.json")

	// Write a test config with servers
	config := `{
  "mcpServers": {
    "filesystem": {
      "command": "npx",
      "args": ["-y", "@modelcontextprotocol/server-filesystem"]
    },
    "github": {
      "command": "npx",
      "args": ["-y", "@modelcontextprotocol/server-github"]
    },
    "search": {
      "url": "wss://search.example.com/mcp"
    }
  }
}
`
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set XDG_CONFIG_HOME to use test config dir
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("ENSEMBLE_CONFIG", "")

	completions, directive := CompleteServerNames(nil, nil, "")

	if len(completions) != 3 {
		t.Errorf("expected 3 server names, got %d: %v", len(completions), completions)
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}

	// Verify expected server names are present
	expectedServers := map[string]bool{
		"filesystem": false,
		"github":     false,
		"search":     false,
	}

	for _, name := range completions {
		if _, ok := expectedServers[name]; ok {
			expectedServers[name] = true
		}
	}

	for server, found := range expectedServers {
		if !found {
			t.Errorf("expected server %q not found in completions", server)
		}
	}
}

func TestCompleteServerNames_NoConfig(t *testing.T) {
	// Create a temporary directory with no config file
	tmpDir := t.TempDir()

	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("ENSEMBLE_CONFIG", "")

	completions, directive := CompleteServerNames(nil, nil, "")

	if len(completions) != 0 {
		t.Errorf("expected 0 completions when no config exists, got %d", len(completions))
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}
}

func TestCompleteServerNames_EmptyConfig(t *testing.T) {
	// Create a temporary config directory with ensemble subdirectory
	tmpDir := t.TempDir()
	ensembleDir := filepath.Join(tmpDir, "ensemble")
	if err := os.MkdirAll(ensembleDir, 0700); err != nil {
		t.Fatalf("failed to create test config dir: %v", err)
	}
	configPath := filepath.Join(ensembleDir, "servers.json")

	// Write an empty config
	config := `{"mcpServers": {}}
`
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("ENSEMBLE_CONFIG", "")

	completions, directive := CompleteServerNames(nil, nil, "")

	if len(completions) != 0 {
		t.Errorf("expected 0 completions with empty servers map, got %d", len(completions))
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}
}

func TestCompleteServerNames_BadPermissions(t *testing.T) {
	// Create a temporary config directory with ensemble subdirectory
	tmpDir := t.TempDir()
	ensembleDir := filepath.Join(tmpDir, "ensemble")
	if err := os.MkdirAll(ensembleDir, 0700); err != nil {
		t.Fatalf("failed to create test config dir: %v", err)
	}
	configPath := filepath.Join(ensembleDir, "servers.json")

	// Write a test config
	config := `{"mcpServers": {"test-server": {"command": "echo"}}}
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("ENSEMBLE_CONFIG", "")

	completions, directive := CompleteServerNames(nil, nil, "")

	// Should return empty list due to bad permissions
	if len(completions) != 0 {
		t.Errorf("expected 0 completions with bad permissions, got %d", len(completions))
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}
}
