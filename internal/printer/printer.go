package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	grey   = color.New(color.FgHiBlack)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// TaskStatus returns the status string colored for terminal display.
func TaskStatus(status blackboard.TaskStatus) string {
	switch status {
	case blackboard.TaskStatusCompleted:
		return green.Sprint(status)
	case blackboard.TaskStatusFailed:
		return red.Sprint(status)
	case blackboard.TaskStatusInProgress, blackboard.TaskStatusAssigned:
		return cyan.Sprint(status)
	case blackboard.TaskStatusCancelled:
		return grey.Sprint(status)
	default:
		return yellow.Sprint(status)
	}
}

// ExpertStatus returns the expert status string colored for terminal display.
func ExpertStatus(status blackboard.ExpertStatus) string {
	switch status {
	case blackboard.ExpertStatusActive:
		return green.Sprint(status)
	case blackboard.ExpertStatusBusy:
		return yellow.Sprint(status)
	default:
		return grey.Sprint(status)
	}
}

// Health returns a daemon health status string colored for terminal display.
func Health(status string) string {
	switch status {
	case "healthy":
		return green.Sprint(status)
	case "degraded":
		return yellow.Sprint(status)
	default:
		return red.Sprint(status)
	}
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
