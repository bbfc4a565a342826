// Package color provides terminal color output for autosync's interactive
// commands. It respects the NO_COLOR environment variable (https://no-color.org/)
// and dumb terminals.
package color

import (
	"os"

	"github.com/fatih/color"
)

// Init configures color output from the environment and the --no-color flag.
func Init(noColorFlag bool) {
	if noColorFlag || os.Getenv("TERM") == "dumb" {
		Disable()
		return
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		Disable()
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	return !color.NoColor
}

// Disable turns off color output.
func Disable() {
	color.NoColor = true
}

var (
	successFunc = color.New(color.FgGreen).SprintFunc()
	errorFunc   = color.New(color.FgRed).SprintFunc()
	warningFunc = color.New(color.FgYellow).SprintFunc()
	headerFunc  = color.New(color.Bold).SprintFunc()
	dimFunc     = color.New(color.Faint).SprintFunc()
)

// Success formats a success message in green.
func Success(s string) string { return successFunc(s) }

// Error formats an error message in red.
func Error(s string) string { return errorFunc(s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return warningFunc(s) }

// Header formats a header in bold.
func Header(s string) string { return headerFunc(s) }

// Dim formats secondary information.
func Dim(s string) string { return dimFunc(s) }

// Severity colors a doctor finding severity.
func Severity(s string) string {
	switch s {
	case "critical":
		return Error(s)
	case "warning":
		return Warning(s)
	default:
		return Dim(s)
	}
}
