package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Command output goes to stdout; status lines to stderr. Tests swap both.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notice is a one-line stderr message with a leading marker.
type notice struct {
	color  string
	marker string
}

var (
	success = notice{colorGreen, "✓"}
	failure = notice{colorRed, "✗"}
	warning = notice{colorYellow, "⚠"}
	step    = notice{colorCyan, "→"}
)

func (n notice) print(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(n.color, n.marker+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { success.print(format, args...) }
func printError(format string, args ...any)   { failure.print(format, args...) }
func printWarning(format string, args ...any) { warning.print(format, args...) }
func printStep(format string, args ...any)    { step.print(format, args...) }

// printStatus prints an indented "label: value" line for `bolla status`.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printMemory renders one memory line: id, category, access count, content.
func printMemory(id int64, category string, accessCount int, content string) {
	content = strings.ReplaceAll(content, "\n", " ")
	if r := []rune(content); len(r) > 200 {
		content = string(r[:200]) + "..."
	}
	fmt.Fprintf(stdout, "%s %s %s\n",
		colorize(colorCyan, fmt.Sprintf("#%d", id)),
		colorize(colorBold, "["+category+"]"),
		content,
	)
	if accessCount > 0 {
		fmt.Fprintf(stdout, "    accessed %d times\n", accessCount)
	}
}
