package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout should receive styled output.
func IsTTY() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return styledEnv()
}

// styledEnv applies the conventional environment overrides: NO_COLOR
// set to anything (including empty) disables styling, and an unset or
// "dumb" TERM signals a terminal without escape support.
func styledEnv() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	switch os.Getenv("TERM") {
	case "", "dumb":
		return false
	}
	return true
}
