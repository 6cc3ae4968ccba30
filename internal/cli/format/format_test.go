package format

import (
	"os"
	"strings"
	"testing"
)

func TestFormatTextPassthrough(t *testing.T) {
	got, err := Format("42 open issues\nnewest: #118", "text", true)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got != "42 open issues\nnewest: #118" {
		t.Errorf("text output changed: %q", got)
	}
}

func TestFormatEmptyNameMeansText(t *testing.T) {
	got, err := Format("plain result", "", false)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got != "plain result" {
		t.Errorf("got %q, want input unchanged", got)
	}
}

func TestFormatJSON(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		contains string
	}{
		{
			name:     "compact tool result gets indented",
			content:  `{"total_count":2,"items":[{"name":"search"},{"name":"fetch"}]}`,
			contains: "  \"total_count\": 2",
		},
		{
			name:     "top-level array",
			content:  `["github","filesystem"]`,
			contains: "\"github\"",
		},
		{
			name:    "truncated payload is rejected",
			content: `{"items":[`,
			wantErr: true,
		},
		{
			name:    "plain text is rejected",
			content: "not json at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.content, "json", false)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Format() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(got, tt.contains) {
				t.Errorf("output missing %q:\n%s", tt.contains, got)
			}
		})
	}
}

func TestFormatMarkdown(t *testing.T) {
	doc := "# fetch\n\nRetrieves a URL and returns the body.\n\n- url (required)\n- max_bytes"

	t.Run("piped output stays raw", func(t *testing.T) {
		got, err := Format(doc, "markdown", false)
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if got != doc {
			t.Errorf("piped markdown should pass through, got %q", got)
		}
	})

	t.Run("terminal output keeps the content", func(t *testing.T) {
		got, err := Format(doc, "markdown", true)
		if err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		if !strings.Contains(got, "fetch") || !strings.Contains(got, "max_bytes") {
			t.Errorf("rendered markdown lost content:\n%s", got)
		}
	})

	t.Run("empty document", func(t *testing.T) {
		if _, err := Format("", "markdown", true); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
	})
}

func TestFormatCode(t *testing.T) {
	src := "def handler(event):\n    return {\"ok\": True}"

	tests := []struct {
		name   string
		format string
		isTTY  bool
	}{
		{"known language on terminal", "code:python", true},
		{"unknown language degrades to plain", "code:zephyrlang", true},
		{"no language", "code", true},
		{"piped", "code:python", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(src, tt.format, tt.isTTY)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if !strings.Contains(got, "handler") {
				t.Errorf("source text missing from output:\n%s", got)
			}
		})
	}
}

func TestFormatUnknownName(t *testing.T) {
	if _, err := Format("content", "yaml", true); err == nil {
		t.Error("expected error for unsupported format name")
	}
}

func TestFormatStripsEmbeddedEscapes(t *testing.T) {
	hostile := "before\x1b[2Jmiddle\x1b]0;owned\x07after"
	got, err := Format(hostile, "text", true)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got != "beforemiddleafter" {
		t.Errorf("escapes survived: %q", got)
	}
}

func TestFormatEnforcesSizeCap(t *testing.T) {
	over := strings.Repeat("x", maxCodeSize+1)
	_, err := Format(over, "code:go", false)
	if err == nil {
		t.Fatal("expected size cap error")
	}
	if !strings.Contains(err.Error(), "code format limit") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSplitFormat(t *testing.T) {
	tests := []struct {
		in       string
		wantBase string
		wantLang string
	}{
		{"", "text", ""},
		{"JSON", "json", ""},
		{" markdown ", "markdown", ""},
		{"code", "code", ""},
		{"code:Python", "code", "python"},
		{"code:", "code", ""},
	}

	for _, tt := range tests {
		base, lang := splitFormat(tt.in)
		if base != tt.wantBase || lang != tt.wantLang {
			t.Errorf("splitFormat(%q) = (%q, %q), want (%q, %q)", tt.in, base, lang, tt.wantBase, tt.wantLang)
		}
	}
}

func TestStyledEnv(t *testing.T) {
	t.Run("NO_COLOR set empty still disables", func(t *testing.T) {
		t.Setenv("NO_COLOR", "")
		t.Setenv("TERM", "xterm-256color")
		if styledEnv() {
			t.Error("NO_COLOR should disable styling even when empty")
		}
	})

	t.Run("dumb terminal disables", func(t *testing.T) {
		t.Setenv("TERM", "dumb")
		if styledEnv() {
			t.Error("TERM=dumb should disable styling")
		}
	})

	t.Run("capable terminal enables", func(t *testing.T) {
		t.Setenv("TERM", "xterm-256color")
		if old, set := os.LookupEnv("NO_COLOR"); set {
			os.Unsetenv("NO_COLOR")
			defer os.Setenv("NO_COLOR", old)
		}
		if !styledEnv() {
			t.Error("styling should be enabled for xterm-256color")
		}
	})
}
