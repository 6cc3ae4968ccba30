// Package format renders tool results for the terminal.
//
// Query results come from servers the user configured but does not
// control, so raw content is stripped of terminal escape sequences
// before any styling is applied. Styled output (glamour for markdown,
// chroma for code) is produced only when stdout is a real terminal;
// piped output stays plain so scripts can parse it.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
)

// Per-format size caps. A tool that returns an oversized result gets an
// error instead of flooding the terminal or the renderer.
const (
	maxTextSize     = 100 << 20
	maxJSONSize     = 10 << 20
	maxMarkdownSize = 5 << 20
	maxCodeSize     = 2 << 20
)

const wordWrapColumns = 100

type renderFunc func(content, lang string, isTTY bool) (string, error)

var renderers = map[string]struct {
	render  renderFunc
	maxSize int
}{
	"text":     {renderText, maxTextSize},
	"json":     {renderJSON, maxJSONSize},
	"markdown": {renderMarkdown, maxMarkdownSize},
	"code":     {renderCode, maxCodeSize},
}

// escapeSequences matches CSI and OSC terminal escapes. Embedded escapes
// in a tool result could retitle the window or clear the screen, so they
// are removed before rendering.
var escapeSequences = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

func stripEscapes(s string) string {
	return escapeSequences.ReplaceAllString(s, "")
}

// Format renders a tool result in the named format. Supported names are
// "text", "json", "markdown", "code", and "code:LANG" where LANG is a
// chroma lexer name, as in "code:python". An empty name means "text".
func Format(content, name string, isTTY bool) (string, error) {
	base, lang := splitFormat(name)

	r, ok := renderers[base]
	if !ok {
		return "", fmt.Errorf("unknown format: %s", name)
	}
	if len(content) > r.maxSize {
		return "", fmt.Errorf("result size (%d bytes) exceeds the %s format limit (%d bytes)", len(content), base, r.maxSize)
	}
	return r.render(stripEscapes(content), lang, isTTY)
}

// splitFormat separates a format name into its base form and, for code,
// the language suffix. Names are case-insensitive.
func splitFormat(name string) (base, lang string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "text", ""
	}
	if strings.HasPrefix(name, "code:") {
		return "code", strings.TrimPrefix(name, "code:")
	}
	return name, ""
}

func renderText(content, _ string, _ bool) (string, error) {
	return content, nil
}

// renderJSON validates the payload and re-indents it. Tool results
// usually arrive as compact JSON; two-space indentation keeps nested
// structures readable in both terminal and piped output.
func renderJSON(content, _ string, _ bool) (string, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return "", fmt.Errorf("result is not valid JSON: %w", err)
	}
	indented, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render JSON: %w", err)
	}
	return string(indented), nil
}

// renderMarkdown styles markdown through glamour when writing to a
// terminal. Rendering problems fall back to the raw markdown rather
// than failing the query; the result is still useful unstyled.
func renderMarkdown(content, _ string, isTTY bool) (string, error) {
	if !isTTY {
		return content, nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrapColumns),
	)
	if err != nil {
		return content, nil
	}
	styled, err := renderer.Render(content)
	if err != nil {
		return content, nil
	}
	return styled, nil
}

// renderCode highlights source when a language is named and stdout is a
// terminal. chroma substitutes a plain-text lexer for languages it does
// not know, so mislabeled results still render.
func renderCode(content, lang string, isTTY bool) (string, error) {
	if !isTTY || lang == "" {
		return content, nil
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, content, lang, "terminal256", "monokai"); err != nil {
		return content, nil
	}
	return buf.String(), nil
}
