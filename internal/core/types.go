package core

import (
	"context"
	"io"

	"github.com/JonMunkholm/heapload/internal/linescan"
	"golang.org/x/text/encoding"
)

// DefaultHeaderLabel is the column header the debugger prints above the
// object listing. Everything before it is preamble.
const DefaultHeaderLabel = "         Address               MT     Size"

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 10000

// HeapObject is one row of the object listing.
type HeapObject struct {
	Address     int64 // object address, parsed from hex
	MethodTable int64 // method table pointer, parsed from hex
	Size        int64 // object size in bytes, parsed from decimal
}

// CheckpointState is the lifecycle position of a source's checkpoint.
//
// A source without a journal row is uninitialized; CheckpointStore.Load
// creates the row, which moves it to in progress. Complete is terminal.
type CheckpointState string

const (
	StateUninitialized CheckpointState = "uninitialized"
	StateInProgress    CheckpointState = "in_progress"
	StateComplete      CheckpointState = "complete"
)

// Checkpoint is the persisted resume position for one source.
type Checkpoint struct {
	ID          int64
	SourceKey   string
	LineOffset  int64   // 1-based index of the next unread line
	ByteOffset  int64   // offset of the next unread byte
	PercentDone float64 // 100 once the source is fully ingested
}

// State reports whether the checkpoint still has work left. The zero
// Checkpoint, which no store returns from Load, is uninitialized.
func (c Checkpoint) State() CheckpointState {
	if c.LineOffset < 1 && c.ByteOffset == 0 && c.PercentDone == 0 {
		return StateUninitialized
	}
	if c.PercentDone >= 100 {
		return StateComplete
	}
	return StateInProgress
}

// Resumed reports whether some of the source was already committed.
func (c Checkpoint) Resumed() bool {
	return c.ByteOffset > 0
}

// Resume returns the interval a scanner must skip to continue after the
// last committed batch, or nil when nothing was committed yet.
func (c Checkpoint) Resume() []linescan.Interval {
	if !c.Resumed() {
		return nil
	}
	return []linescan.Interval{{
		FromLine:   0,
		FromOffset: 0,
		ToLine:     c.LineOffset - 1,
		ToOffset:   c.ByteOffset,
	}}
}

// Batch is a group of rows committed atomically together with the
// checkpoint position that follows its last row.
type Batch struct {
	Objects     []HeapObject
	LineOffset  int64 // 1-based next line after the last row
	ByteOffset  int64 // next byte after the last row
	PercentDone float64
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int { return len(b.Objects) }

// CheckpointStore persists checkpoints and batches.
//
// Commit must insert every row of the batch and move the checkpoint to the
// batch position in one transaction: either both are visible afterwards or
// neither is. Implementations must not retain batch.Objects after Commit
// returns; the pipeline reuses the slice.
type CheckpointStore interface {
	// Load returns the checkpoint for key, creating one at line 1, byte 0
	// when none exists.
	Load(ctx context.Context, key string) (Checkpoint, error)

	// Commit inserts the batch and advances the checkpoint atomically.
	Commit(ctx context.Context, key string, batch *Batch) error

	// Complete marks the checkpoint as fully processed.
	Complete(ctx context.Context, key string) error
}

// ProgressSink receives progress notifications from a run.
//
// Advance is called with the byte offset reached after each committed
// batch, Finish once the checkpoint is complete, and Close exactly once
// when the run ends, whether it succeeded or not.
type ProgressSink interface {
	Advance(byteOffset int64)
	Finish()
	Close() error
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	BatchSize   int
	ChunkSize   int
	HeaderLabel string
	Encoding    encoding.Encoding
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.HeaderLabel == "" {
		o.HeaderLabel = DefaultHeaderLabel
	}
	return o
}

// Input is an open byte source to ingest.
type Input struct {
	Key    string    // checkpoint identity, usually the absolute file path
	Reader io.Reader // must implement io.Seeker to resume
	Size   int64     // total length in bytes, for progress
}

// Result summarises a run.
type Result struct {
	SourceKey       string
	Rows            int64 // rows committed by this run
	Batches         int   // batches committed by this run
	AlreadyComplete bool  // the checkpoint was complete before the run
	Resumed         bool  // the run continued an earlier one
	StartLine       int64 // 1-based line the run started from
	Checkpoint      Checkpoint
}
