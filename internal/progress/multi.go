package progress

import (
	"errors"

	"github.com/JonMunkholm/heapload/internal/core"
)

// Multi forwards every notification to each of its sinks in order.
type Multi []core.ProgressSink

// NewMulti combines sinks, skipping nil ones.
func NewMulti(sinks ...core.ProgressSink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) Advance(byteOffset int64) {
	for _, s := range m {
		s.Advance(byteOffset)
	}
}

func (m Multi) Finish() {
	for _, s := range m {
		s.Finish()
	}
}

// Close closes every sink, even after a failure, and joins the errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
