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
	"strings"
	"testing"
)

func TestNewAddCommand(t *testing.T) {
	cmd := NewAddCommand()

	if cmd.Use != "add <name>" {
		t.Errorf("expected use 'add <name>', got %q", cmd.Use)
	}

	for _, name := range []string{"command", "args", "env", "header", "url", "type", "timeout", "arg-transform"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not defined", name)
		}
	}
}

func TestNewRemoveCommand(t *testing.T) {
	cmd := NewRemoveCommand()

	if cmd.Use != "remove <name>" {
		t.Errorf("expected use 'remove <name>', got %q", cmd.Use)
	}

	if cmd.Flags().Lookup("force") == nil {
		t.Error("--force flag not defined")
	}
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"KEY=value", "TOKEN=a=b=c", "EMPTY="}, "--env")
	if err != nil {
		t.Fatalf("parsePairs() error: %v", err)
	}

	if pairs["KEY"] != "value" {
		t.Errorf("expected KEY=value, got %q", pairs["KEY"])
	}
	// Only the first '=' separates key from value
	if pairs["TOKEN"] != "a=b=c" {
		t.Errorf("expected TOKEN=a=b=c, got %q", pairs["TOKEN"])
	}
	if v, ok := pairs["EMPTY"]; !ok || v != "" {
		t.Errorf("expected EMPTY with empty value, got %q (present: %v)", v, ok)
	}
}

func TestParsePairs_Invalid(t *testing.T) {
	for _, bad := range []string{"NOEQUALS", "=value"} {
		if _, err := parsePairs([]string{bad}, "--env"); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParsePairs_Empty(t *testing.T) {
	pairs, err := parsePairs(nil, "--env")
	if err != nil {
		t.Fatalf("parsePairs(nil) error: %v", err)
	}
	if pairs != nil {
		t.Errorf("expected nil map for no pairs, got %v", pairs)
	}
}

func TestValidateFormCommand(t *testing.T) {
	if err := validateFormCommand("uvx"); err != nil {
		t.Errorf("expected 'uvx' to validate, got: %v", err)
	}
	if err := validateFormCommand("   "); err == nil {
		t.Error("expected blank command to fail validation")
	}
}

func TestValidateFormURL(t *testing.T) {
	valid := []string{
		"wss://search.example.com/mcp",
		"ws://localhost:8080",
		"https://api.example.com/sse",
		"http://127.0.0.1:9000/mcp",
	}
	for _, u := range valid {
		if err := validateFormURL(u); err != nil {
			t.Errorf("expected %q to validate, got: %v", u, err)
		}
	}

	invalid := []string{
		"ftp://example.com",
		"example.com/mcp",
		"wss://",
		"",
	}
	for _, u := range invalid {
		if err := validateFormURL(u); err == nil {
			t.Errorf("expected %q to fail validation", u)
		}
	}
}

func TestAddCommand_NonInteractiveWithoutFlags(t *testing.T) {
	testEnv(t, "")
	t.Setenv("ENSEMBLE_NON_INTERACTIVE", "true")

	cmd := NewAddCommand()
	cmd.SetArgs([]string{"myserver"})

	_, err := captureStdout(t, cmd.Execute)
	if err == nil {
		t.Fatal("expected an error without --command or --url in non-interactive mode")
	}
	if !strings.Contains(err.Error(), "--command") {
		t.Errorf("expected the error to point at the flags, got: %v", err)
	}
}

func TestAddThenRemove(t *testing.T) {
	testEnv(t, "")

	addCmd := NewAddCommand()
	addCmd.SetArgs([]string{"search", "--url", "wss://search.example.com/mcp"})

	output, err := captureStdout(t, addCmd.Execute)
	if err != nil {
		t.Fatalf("add command failed: %v", err)
	}
	if !strings.Contains(output, "Registered server: search") {
		t.Errorf("expected registration notice, got: %s", output)
	}

	listCmd := NewListCommand()
	listCmd.SetArgs([]string{})
	output, err = captureStdout(t, listCmd.Execute)
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	if !strings.Contains(output, "search") {
		t.Errorf("expected added server in list, got: %s", output)
	}

	removeCmd := NewRemoveCommand()
	removeCmd.SetArgs([]string{"search", "--force"})
	output, err = captureStdout(t, removeCmd.Execute)
	if err != nil {
		t.Fatalf("remove command failed: %v", err)
	}
	if !strings.Contains(output, "Removed server: search") {
		t.Errorf("expected removal notice, got: %s", output)
	}

	listCmd = NewListCommand()
	listCmd.SetArgs([]string{})
	output, err = captureStdout(t, listCmd.Execute)
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	if strings.Contains(output, "search") {
		t.Errorf("expected removed server to be gone, got: %s", output)
	}
}
