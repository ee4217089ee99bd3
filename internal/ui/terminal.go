package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether nr output on stdout gets ANSI color.
func ShouldUseColor() bool {
	return colorFromEnv(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

// colorFromEnv resolves the color setting. NARI_COLOR=always|never wins,
// then NO_COLOR (any value, see no-color.org), then CLICOLOR_FORCE=1 and
// CLICOLOR=0. Otherwise color follows isTTY.
func colorFromEnv(getenv func(string) string, isTTY func() bool) bool {
	switch strings.ToLower(strings.TrimSpace(getenv("NARI_COLOR"))) {
	case "always":
		return true
	case "never":
		return false
	}
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return isTTY()
}
