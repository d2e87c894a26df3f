package progress

import (
	"sync"
	"time"

	"github.com/JonMunkholm/heapload/internal/core"
)

// Run states reported by Status.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateFinished = "finished"
	StateStopped  = "stopped"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Source     string    `json:"source"`
	State      string    `json:"state"`
	ByteOffset int64     `json:"byte_offset"`
	TotalBytes int64     `json:"total_bytes"`
	Percent    float64   `json:"percent"`
	Batches    int       `json:"batches"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Status keeps the latest progress of a run for concurrent readers.
type Status struct {
	mu      sync.RWMutex
	snap    Snapshot
	started bool
	now     func() time.Time
}

// NewStatus returns a status sink for source of total bytes.
func NewStatus(source string, total int64) *Status {
	s := &Status{now: time.Now}
	t := s.now()
	s.snap = Snapshot{
		Source:     source,
		State:      StateStarting,
		TotalBytes: total,
		StartedAt:  t,
		UpdatedAt:  t,
	}
	return s
}

func (s *Status) Advance(byteOffset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.snap.Batches++
	}
	s.started = true
	s.snap.State = StateRunning
	s.snap.ByteOffset = byteOffset
	s.snap.Percent = core.Percent(byteOffset, s.snap.TotalBytes)
	s.snap.UpdatedAt = s.now()
}

func (s *Status) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.State = StateFinished
	s.snap.Percent = 100
	s.snap.UpdatedAt = s.now()
}

// Close marks an unfinished run as stopped.
func (s *Status) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != StateFinished {
		s.snap.State = StateStopped
		s.snap.UpdatedAt = s.now()
	}
	return nil
}

// Snapshot returns the current state.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
