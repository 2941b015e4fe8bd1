// Package notify prints run progress to the terminal.
package notify

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/herdctl/herd/internal/domain"
)

// Console writes colored progress lines to a writer (normally stderr, so
// structured output on stdout stays machine-readable).
type Console struct {
	out io.Writer
}

// NewConsole creates a console notifier.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Ensure Console implements domain.Notifier.
var _ domain.Notifier = (*Console)(nil)

var (
	successMark = color.New(color.FgGreen).Sprint("✓")
	failureMark = color.New(color.FgRed).Sprint("✗")
	infoMark    = color.New(color.FgCyan).Sprint("•")
	warnMark    = color.New(color.FgYellow).Sprint("!")
)

// Success prints a green check line.
func (c *Console) Success(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", successMark, msg)
}

// Failure prints a red cross line.
func (c *Console) Failure(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", failureMark, msg)
}

// Info prints a neutral progress line.
func (c *Console) Info(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", infoMark, msg)
}

// Warn prints a yellow warning line.
func (c *Console) Warn(msg string) {
	fmt.Fprintf(c.out, "%s %s\n", warnMark, msg)
}
