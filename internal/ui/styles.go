// Package ui colours nr's terminal output. Replies are tinted by response
// kind; watch timestamps are muted.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorSuccess = 114 // green
	colorWarn    = 179 // amber
	colorFail    = 167 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color. Badge ids use it.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderKind colors s according to a response kind string: green for
// success, amber for expected refusals, red for failures.
func RenderKind(kind, s string) string {
	switch kind {
	case "success":
		return paint(colorSuccess, s)
	case "already_exists", "not_found", "argument_error", "unknown_command":
		return paint(colorWarn, s)
	default:
		return paint(colorFail, s)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
