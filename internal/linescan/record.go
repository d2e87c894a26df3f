// Package linescan turns a byte source into a lazy, forward-only sequence of
// line records that carry exact byte and line coordinates.
//
// A scanner can be given a list of intervals that an earlier run already
// processed. Those byte ranges are never read: the scanner seeks past them
// and renumbers the following lines, so a resumed run yields exactly the
// records a full scan would have yielded from the same byte onward.
//
// Lines end with LF, CRLF or a lone CR. The terminator is excluded from
// Record.Text but included in Record.Length, so consecutive records tile the
// source without gaps.
package linescan

import "fmt"

// Record is one line of the source together with its coordinates.
type Record struct {
	Text   string // line content without its terminator
	Line   int64  // 0-based line index
	Offset int64  // byte offset of the first content byte
	Length int    // byte length including the terminator
}

// End returns the byte offset just past the record's terminator.
func (r Record) End() int64 {
	return r.Offset + int64(r.Length)
}

// NextLine returns the 0-based index of the line that follows the record.
func (r Record) NextLine() int64 {
	return r.Line + 1
}

// Interval is a byte range that has already been processed. The scanner
// seeks from FromOffset to ToOffset and continues numbering at ToLine.
type Interval struct {
	FromLine   int64
	FromOffset int64
	ToLine     int64
	ToOffset   int64
}

// ValidateIntervals reports whether ivs is a usable interval list: every
// entry is non-negative and not reversed, and entries are strictly
// increasing in both byte and line coordinates.
func ValidateIntervals(ivs []Interval) error {
	for i, iv := range ivs {
		if iv.FromOffset < 0 || iv.FromLine < 0 || iv.ToOffset < iv.FromOffset || iv.ToLine < iv.FromLine {
			return fmt.Errorf("%w: interval %d is malformed %+v", ErrIntervalOrder, i, iv)
		}
		if i == 0 {
			continue
		}
		prev := ivs[i-1]
		if prev.ToOffset >= iv.FromOffset || prev.ToLine >= iv.FromLine {
			return fmt.Errorf("%w: interval %d does not start after interval %d", ErrIntervalOrder, i, i-1)
		}
	}
	return nil
}
