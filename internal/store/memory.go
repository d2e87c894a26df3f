package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JonMunkholm/heapload/internal/core"
)

func init() {
	Register("memory", func(context.Context, Options) (Store, error) {
		return NewMemory(), nil
	})
}

// Memory keeps checkpoints and rows in process memory. It enforces the
// same address uniqueness as the SQL backends.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	checkpoints map[string]core.Checkpoint
	rows        []core.HeapObject
	addresses   map[int64]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		checkpoints: make(map[string]core.Checkpoint),
		addresses:   make(map[int64]struct{}),
	}
}

func (m *Memory) Prepare(_ context.Context, key string, reset bool) error {
	if !reset {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = nil
	m.addresses = make(map[int64]struct{})
	delete(m.checkpoints, key)
	return nil
}

func (m *Memory) Load(_ context.Context, key string) (core.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		m.nextID++
		cp = core.Checkpoint{ID: m.nextID, SourceKey: key, LineOffset: 1}
		m.checkpoints[key] = cp
	}
	return cp, nil
}

func (m *Memory) Commit(_ context.Context, key string, batch *core.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}

	seen := make(map[int64]struct{}, batch.Len())
	for _, o := range batch.Objects {
		_, dup := m.addresses[o.Address]
		if _, again := seen[o.Address]; dup || again {
			return fmt.Errorf("insert rows: duplicate key address %#x", uint64(o.Address))
		}
		seen[o.Address] = struct{}{}
	}

	for a := range seen {
		m.addresses[a] = struct{}{}
	}
	m.rows = append(m.rows, batch.Objects...)

	cp.LineOffset = batch.LineOffset
	cp.ByteOffset = batch.ByteOffset
	cp.PercentDone = batch.PercentDone
	m.checkpoints[key] = cp
	return nil
}

func (m *Memory) Complete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}
	cp.PercentDone = 100
	m.checkpoints[key] = cp
	return nil
}

func (m *Memory) RowCount(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

// Rows returns a copy of the stored rows in commit order.
func (m *Memory) Rows() []core.HeapObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rows)
}

func (m *Memory) Close() error { return nil }
