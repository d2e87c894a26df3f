package linescan

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupEncoding resolves a WHATWG encoding label such as "windows-1252" or
// "latin1". The empty string and UTF-8 labels return nil, which makes the
// scanner hand line bytes through unchanged.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrEncoding, name)
	}
	if err := checkTerminators(enc); err != nil {
		return nil, err
	}
	return enc, nil
}

// checkTerminators rejects codecs whose line terminators are not the single
// bytes the scanner searches for.
func checkTerminators(enc encoding.Encoding) error {
	got, err := enc.NewEncoder().Bytes([]byte("\r\n"))
	if err != nil || !bytes.Equal(got, []byte("\r\n")) {
		name := fmt.Sprint(enc)
		if n, nerr := htmlindex.Name(enc); nerr == nil {
			name = n
		}
		return fmt.Errorf("%w: %s", ErrEncoding, name)
	}
	return nil
}
