package core

import "errors"

var (
	// ErrMalformedRecord is returned for a data row that does not parse.
	// The run stops and the checkpoint stays at the last committed batch.
	ErrMalformedRecord = errors.New("malformed heap object row")

	// ErrHeaderNotFound is returned when a run from the start of a source
	// never sees the header label.
	ErrHeaderNotFound = errors.New("header label not found")
)
