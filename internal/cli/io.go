package cli

import (
	"fmt"
	"io"
	"os"
)

// IO handles command output, collecting warnings so they're visible at
// both the start and end of a run regardless of truncation or piping.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO creates a new IO instance.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a non-fatal warning surfaced to the operator.
func (o *IO) Warn(msg string) {
	o.warnings = append(o.warnings, msg)
}

// Println writes to stdout, flushing any pending start-of-output warnings
// first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout, flushing pending warnings
// first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish prints any remaining warnings to stderr and reports whether any
// were recorded.
func (o *IO) Finish() bool {
	o.flushWarningsStart()

	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	return len(o.warnings) > 0
}

// stdoutFile returns the *os.File backing stdout, if any. Output wired
// to a test buffer or a pipe that isn't an *os.File has no fd to probe,
// so callers should treat that as non-interactive.
func (o *IO) stdoutFile() (*os.File, bool) {
	f, ok := o.out.(*os.File)
	return f, ok
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			_, _ = fmt.Fprintln(o.errOut, "warning:", w)
		}

		o.started = true
	}
}
