package linescan

import "errors"

// Configuration errors. NewScanner returns them before the source is read.
var (
	ErrNotSeekable   = errors.New("linescan: resume intervals require a seekable source")
	ErrIntervalOrder = errors.New("linescan: resume intervals must be strictly increasing")
	ErrEncoding      = errors.New("linescan: encoding must represent CR and LF as single ASCII bytes")
)

// ErrPositionMismatch means the source's read cursor no longer matches the
// offset the scanner computed. Offsets emitted after this point cannot be
// trusted, so scanning stops.
var ErrPositionMismatch = errors.New("linescan: source position diverged from computed offset")

// IsConfigError reports whether err was caused by invalid scanner options.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNotSeekable) ||
		errors.Is(err, ErrIntervalOrder) ||
		errors.Is(err, ErrEncoding)
}
