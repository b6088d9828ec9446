package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
)

var stderr io.Writer = os.Stderr

func printSuccess(format string, args ...any) {
	successColor.Fprintln(stderr, "✓ "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	errorColor.Fprintln(stderr, "✗ "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	warnColor.Fprintln(stderr, "⚠ "+fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	stepColor.Fprintln(stderr, "→ "+fmt.Sprintf(format, args...))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint(label+":"), fmt.Sprintf(format, args...))
}
