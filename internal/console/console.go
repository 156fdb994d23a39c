// Package console prints the human-readable run transcript.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Printer writes transcript lines. Colors follow color.NoColor, which is set
// when stdout is not a terminal.
type Printer struct {
	w io.Writer
}

func New(w io.Writer) *Printer {
	if w == nil {
		w = io.Discard
	}
	return &Printer{w: w}
}

// Writer exposes the underlying writer for packages with their own transcript
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Rule prints a line of n '=' characters
func (p *Printer) Rule(n int) {
	fmt.Fprintln(p.w, strings.Repeat("=", n))
}

// Banner prints title between two rules of width n
func (p *Printer) Banner(title string, n int) {
	p.Rule(n)
	fmt.Fprintln(p.w, bold(title))
	p.Rule(n)
}

// Step prints a progress header such as "[1/3] Running ..." after a blank line
func (p *Printer) Step(i, total int, msg string) {
	fmt.Fprintf(p.w, "\n%s %s\n", yellow(fmt.Sprintf("[%d/%d]", i, total)), msg)
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

func (p *Printer) Failure(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", red("✗"), fmt.Sprintf(format, args...))
}

func (p *Printer) Pass(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", green("[PASS]"), fmt.Sprintf(format, args...))
}

func (p *Printer) Println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}
