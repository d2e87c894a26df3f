package core

// section.go selects the data rows out of the scanned records.
//
// The listing is framed by a preamble that ends with the header label and a
// blank line after the last row. Rows are therefore "skip while not the
// header, skip the header, take while non-blank". Each step is a lazy
// adapter, so scanning stops at the blank line without reading the rest.

import (
	"iter"

	"github.com/JonMunkholm/heapload/internal/linescan"
)

// dataRows returns the records of the data section. When inData is false
// the header is searched for first and *inData is set once it is seen.
// A resumed run passes true since its checkpoint lies inside the section.
func dataRows(recs iter.Seq2[linescan.Record, error], header string, inData *bool) iter.Seq2[linescan.Record, error] {
	if !*inData {
		notHeader := func(r linescan.Record) bool {
			if r.Text == header {
				*inData = true
				return false
			}
			return true
		}
		recs = skip(skipWhile(recs, notHeader), 1)
	}
	return takeWhile(recs, func(r linescan.Record) bool { return r.Text != "" })
}

func skipWhile[T any](seq iter.Seq2[T, error], pred func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		skipping := true
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if skipping && pred(v) {
				continue
			}
			skipping = false
			if !yield(v, nil) {
				return
			}
		}
	}
}

func skip[T any](seq iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if n > 0 {
				n--
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func takeWhile[T any](seq iter.Seq2[T, error], pred func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range seq {
			if err != nil {
				yield(v, err)
				return
			}
			if !pred(v) || !yield(v, nil) {
				return
			}
		}
	}
}
