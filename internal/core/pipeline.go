package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/heapload/internal/linescan"
	"github.com/JonMunkholm/heapload/internal/logging"
)

// ContextCheckInterval is how often (in rows) to check for cancellation.
var ContextCheckInterval = 100

// Pipeline ingests sources into a CheckpointStore one batch at a time.
// A Pipeline is safe to reuse for several sources, one after another.
type Pipeline struct {
	store CheckpointStore
	opts  Options
}

// NewPipeline returns a pipeline committing into store.
func NewPipeline(store CheckpointStore, opts Options) *Pipeline {
	return &Pipeline{store: store, opts: opts.withDefaults()}
}

// RunFile ingests the file at path, keyed by its absolute path. The file is
// closed when the run ends; a close failure is joined to the result error.
func (p *Pipeline) RunFile(ctx context.Context, path string, sink ProgressSink) (res *Result, err error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, closeSink(sink, fmt.Errorf("resolve %s: %w", path, err))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, closeSink(sink, fmt.Errorf("open source: %w", err))
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", path, cerr))
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, closeSink(sink, fmt.Errorf("stat source: %w", err))
	}

	return p.Run(ctx, Input{Key: key, Reader: f, Size: info.Size()}, sink)
}

// Run ingests one source.
//
// The checkpoint for in.Key decides where scanning starts. A complete
// checkpoint ends the run without reading. Otherwise rows are parsed and
// committed in batches of Options.BatchSize, each commit moving the
// checkpoint past its last row, and the checkpoint is completed once the
// data section ends. sink is closed on every return path.
func (p *Pipeline) Run(ctx context.Context, in Input, sink ProgressSink) (res *Result, err error) {
	if sink == nil {
		sink = NopProgress{}
	}
	defer func() {
		err = closeSink(sink, err)
	}()

	logger := logging.WithFields(ctx, "source", in.Key)

	cp, err := p.store.Load(ctx, in.Key)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	res = &Result{
		SourceKey:  in.Key,
		Resumed:    cp.Resumed(),
		StartLine:  cp.LineOffset,
		Checkpoint: cp,
	}

	if cp.State() == StateComplete {
		res.AlreadyComplete = true
		logger.Info("source already ingested", "percent", cp.PercentDone)
		return res, nil
	}

	sink.Advance(cp.ByteOffset)

	sc, err := linescan.NewScanner(in.Reader, linescan.Options{
		ChunkSize: p.opts.ChunkSize,
		Encoding:  p.opts.Encoding,
		Intervals: cp.Resume(),
	})
	if err != nil {
		return res, fmt.Errorf("open scanner: %w", err)
	}

	if cp.Resumed() {
		logger.Info("resuming ingest", "line", cp.LineOffset, "byte_offset", cp.ByteOffset)
	} else {
		logger.Info("starting ingest", "size", in.Size)
	}

	inData := cp.Resumed()
	batch := &Batch{Objects: make([]HeapObject, 0, p.opts.BatchSize)}
	var last linescan.Record
	i := 0

	for rec, err := range dataRows(sc.Records(), p.opts.HeaderLabel, &inData) {
		if err != nil {
			return res, fmt.Errorf("scan source: %w", err)
		}

		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("ingest cancelled at line %d: %w", rec.Line+1, err)
			}
		}
		i++

		obj, err := ParseHeapObject(rec.Text)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", rec.Line+1, err)
		}
		batch.Objects = append(batch.Objects, obj)
		last = rec

		if batch.Len() >= p.opts.BatchSize {
			if err := p.commit(ctx, in, batch, last, res, sink); err != nil {
				return res, err
			}
		}
	}

	if !inData {
		return res, fmt.Errorf("%w: no line matches %q", ErrHeaderNotFound, p.opts.HeaderLabel)
	}

	if batch.Len() > 0 {
		if err := p.commit(ctx, in, batch, last, res, sink); err != nil {
			return res, err
		}
	}

	if err := p.store.Complete(ctx, in.Key); err != nil {
		return res, fmt.Errorf("complete checkpoint: %w", err)
	}
	res.Checkpoint.PercentDone = 100
	sink.Finish()

	logger.Info("source ingested", "rows", res.Rows, "batches", res.Batches)
	return res, nil
}

// commit persists batch with the checkpoint position following last and
// empties it for reuse.
func (p *Pipeline) commit(ctx context.Context, in Input, batch *Batch, last linescan.Record, res *Result, sink ProgressSink) error {
	batch.LineOffset = last.NextLine() + 1
	batch.ByteOffset = last.End()
	batch.PercentDone = Percent(batch.ByteOffset, in.Size)

	if err := p.store.Commit(ctx, in.Key, batch); err != nil {
		return fmt.Errorf("commit batch ending at line %d: %w", last.Line+1, err)
	}

	res.Rows += int64(batch.Len())
	res.Batches++
	res.Checkpoint.LineOffset = batch.LineOffset
	res.Checkpoint.ByteOffset = batch.ByteOffset
	res.Checkpoint.PercentDone = batch.PercentDone

	logging.FromContext(ctx).Debug("batch committed",
		"source", in.Key,
		"rows", batch.Len(),
		"line", batch.LineOffset,
		"byte_offset", batch.ByteOffset,
		"percent", batch.PercentDone,
	)

	sink.Advance(batch.ByteOffset)
	batch.Objects = batch.Objects[:0]
	return nil
}

// closeSink closes sink and joins its failure to err without replacing it.
func closeSink(sink ProgressSink, err error) error {
	if sink == nil {
		return err
	}
	if cerr := sink.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close progress: %w", cerr))
	}
	return err
}
