// Package progress provides core.ProgressSink implementations: a console
// percentage line, a structured log, prometheus metrics and a snapshot for
// the status server. Multi fans one run out to several of them.
package progress

import (
	"fmt"
	"io"
	"math"

	"github.com/JonMunkholm/heapload/internal/core"
	"github.com/mattn/go-isatty"
)

// Console prints the percentage of the source processed so far.
//
// On a terminal a single line is rewritten in place. Otherwise one line is
// written each time the whole percentage changes, which keeps redirected
// output readable.
type Console struct {
	w     io.Writer
	total int64
	tty   bool

	whole   int  // last whole percent written when not a tty
	pending bool // a line was written without a newline
	err     error
}

// NewConsole returns a console sink for a source of total bytes.
func NewConsole(w io.Writer, total int64) *Console {
	return newConsole(w, total, isTerminal(w))
}

func newConsole(w io.Writer, total int64, tty bool) *Console {
	return &Console{w: w, total: total, tty: tty, whole: -1}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) Advance(byteOffset int64) {
	p := core.Percent(byteOffset, c.total)
	if c.tty {
		c.printf("   %.2f%%\r", p)
		c.pending = true
		return
	}
	if w := int(math.Floor(p)); w != c.whole {
		c.whole = w
		c.printf("   %.2f%%\n", p)
	}
}

func (c *Console) Finish() {
	if c.tty {
		c.printf("   100.00%%")
		c.pending = true
		return
	}
	c.printf("   100.00%%\n")
}

// Close terminates a pending line and reports the first write failure.
func (c *Console) Close() error {
	if c.pending {
		c.printf("\n")
		c.pending = false
	}
	return c.err
}

func (c *Console) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	if _, err := fmt.Fprintf(c.w, format, args...); err != nil {
		c.err = fmt.Errorf("write progress: %w", err)
	}
}
