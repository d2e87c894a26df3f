package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/JonMunkholm/heapload/internal/linescan"
)

const testPreamble = "Statistics for heap 0\nsegment  begin  allocated\n0000 1000 2000\n"

// testListing returns a listing with n data rows and the rows it contains.
func testListing(n int) (string, []HeapObject) {
	var b strings.Builder
	b.WriteString(testPreamble)
	b.WriteString(DefaultHeaderLabel + "\n")
	objs := make([]HeapObject, n)
	for i := range n {
		objs[i] = HeapObject{Address: 0x1000 + int64(i)*0x20, MethodTable: 0x7ff0, Size: 24 + int64(i)}
		fmt.Fprintf(&b, "%016x %016x %8d\n", objs[i].Address, objs[i].MethodTable, objs[i].Size)
	}
	b.WriteString("\nStatistics:\n      MT    Count    TotalSize Class Name\n")
	return b.String(), objs
}

var errInjected = errors.New("injected commit failure")

type fakeStore struct {
	checkpoints  map[string]Checkpoint
	rows         []HeapObject
	commits      []Batch
	completes    int
	failCommitAt int // 1-based commit number that fails; 0 never
}

func newFakeStore() *fakeStore {
	return &fakeStore{checkpoints: map[string]Checkpoint{}}
}

func (s *fakeStore) Load(_ context.Context, key string) (Checkpoint, error) {
	cp, ok := s.checkpoints[key]
	if !ok {
		cp = Checkpoint{ID: int64(len(s.checkpoints) + 1), SourceKey: key, LineOffset: 1}
		s.checkpoints[key] = cp
	}
	return cp, nil
}

func (s *fakeStore) Commit(_ context.Context, key string, b *Batch) error {
	if s.failCommitAt == len(s.commits)+1 {
		return errInjected
	}
	s.rows = append(s.rows, b.Objects...)
	s.commits = append(s.commits, Batch{
		Objects:     slices.Clone(b.Objects),
		LineOffset:  b.LineOffset,
		ByteOffset:  b.ByteOffset,
		PercentDone: b.PercentDone,
	})
	cp := s.checkpoints[key]
	cp.LineOffset, cp.ByteOffset, cp.PercentDone = b.LineOffset, b.ByteOffset, b.PercentDone
	s.checkpoints[key] = cp
	return nil
}

func (s *fakeStore) Complete(_ context.Context, key string) error {
	cp := s.checkpoints[key]
	cp.PercentDone = 100
	s.checkpoints[key] = cp
	s.completes++
	return nil
}

type recordingSink struct {
	advances []int64
	finished int
	closed   int
	closeErr error
}

func (r *recordingSink) Advance(b int64) { r.advances = append(r.advances, b) }
func (r *recordingSink) Finish()         { r.finished++ }
func (r *recordingSink) Close() error {
	r.closed++
	return r.closeErr
}

func runListing(t *testing.T, store CheckpointStore, opts Options, text string, sink ProgressSink) (*Result, error) {
	t.Helper()
	p := NewPipeline(store, opts)
	return p.Run(context.Background(), Input{
		Key:    "/dumps/heap.txt",
		Reader: strings.NewReader(text),
		Size:   int64(len(text)),
	}, sink)
}

func TestPipelineCommitsBatches(t *testing.T) {
	text, want := testListing(25)
	store := newFakeStore()
	sink := &recordingSink{}

	res, err := runListing(t, store, Options{BatchSize: 10}, text, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sizes := make([]int, len(store.commits))
	for i, c := range store.commits {
		sizes[i] = c.Len()
	}
	if !slices.Equal(sizes, []int{10, 10, 5}) {
		t.Errorf("batch sizes = %v, want [10 10 5]", sizes)
	}
	if !slices.Equal(store.rows, want) {
		t.Errorf("rows differ from the listing")
	}
	if res.Rows != 25 || res.Batches != 3 {
		t.Errorf("Result rows=%d batches=%d, want 25 and 3", res.Rows, res.Batches)
	}

	// The last commit points right after the last data row.
	last := store.commits[2]
	wantOffset := int64(strings.Index(text, "\n\n") + 1)
	if last.ByteOffset != wantOffset {
		t.Errorf("last ByteOffset = %d, want %d", last.ByteOffset, wantOffset)
	}
	// 3 preamble lines, the header, 25 rows: the next line is 30.
	if last.LineOffset != 30 {
		t.Errorf("last LineOffset = %d, want 30", last.LineOffset)
	}
	if last.PercentDone != Percent(wantOffset, int64(len(text))) {
		t.Errorf("last PercentDone = %v", last.PercentDone)
	}

	cp := store.checkpoints["/dumps/heap.txt"]
	if cp.State() != StateComplete || store.completes != 1 {
		t.Errorf("checkpoint = %+v completes = %d, want complete once", cp, store.completes)
	}

	wantAdvances := []int64{0, store.commits[0].ByteOffset, store.commits[1].ByteOffset, last.ByteOffset}
	if !slices.Equal(sink.advances, wantAdvances) {
		t.Errorf("advances = %v, want %v", sink.advances, wantAdvances)
	}
	if sink.finished != 1 || sink.closed != 1 {
		t.Errorf("finished=%d closed=%d, want 1 and 1", sink.finished, sink.closed)
	}
}

func TestPipelineBatchOffsetsIncrease(t *testing.T) {
	text, _ := testListing(40)
	store := newFakeStore()

	if _, err := runListing(t, store, Options{BatchSize: 3, ChunkSize: 5}, text, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var prev Batch
	for i, c := range store.commits {
		if c.ByteOffset <= prev.ByteOffset || c.LineOffset <= prev.LineOffset || c.PercentDone < prev.PercentDone {
			t.Fatalf("commit %d = %+v does not advance past %+v", i, c, prev)
		}
		if c.LineOffset-prev.LineOffset != int64(c.Len()) && i > 0 {
			t.Errorf("commit %d advanced %d lines for %d rows", i, c.LineOffset-prev.LineOffset, c.Len())
		}
		prev = c
	}
}

func TestPipelineResumesAfterFailure(t *testing.T) {
	for _, chunk := range []int{0, 1, 7} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			text, want := testListing(25)
			store := newFakeStore()
			store.failCommitAt = 3
			opts := Options{BatchSize: 10, ChunkSize: chunk}

			sink := &recordingSink{}
			_, err := runListing(t, store, opts, text, sink)
			if !errors.Is(err, errInjected) {
				t.Fatalf("first Run() error = %v, want injected failure", err)
			}
			if sink.closed != 1 || sink.finished != 0 {
				t.Errorf("first run closed=%d finished=%d, want 1 and 0", sink.closed, sink.finished)
			}
			if len(store.rows) != 20 {
				t.Fatalf("rows after failure = %d, want 20", len(store.rows))
			}
			if store.checkpoints["/dumps/heap.txt"].State() != StateInProgress {
				t.Fatal("checkpoint completed after a failed run")
			}

			store.failCommitAt = 0
			sink = &recordingSink{}
			res, err := runListing(t, store, opts, text, sink)
			if err != nil {
				t.Fatalf("second Run() error = %v", err)
			}
			if !res.Resumed || res.Rows != 5 {
				t.Errorf("second run resumed=%v rows=%d, want true and 5", res.Resumed, res.Rows)
			}
			if !slices.Equal(store.rows, want) {
				t.Errorf("rows after resume differ from the listing")
			}
			if sink.advances[0] != store.commits[1].ByteOffset {
				t.Errorf("first advance = %d, want resume offset %d", sink.advances[0], store.commits[1].ByteOffset)
			}
			if store.completes != 1 {
				t.Errorf("completes = %d, want 1", store.completes)
			}
		})
	}
}

func TestPipelineEmptyDataSection(t *testing.T) {
	text := testPreamble + DefaultHeaderLabel + "\n\nStatistics:\n"
	store := newFakeStore()
	sink := &recordingSink{}

	res, err := runListing(t, store, Options{}, text, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.commits) != 0 || res.Rows != 0 {
		t.Errorf("commits = %d rows = %d, want none", len(store.commits), res.Rows)
	}
	if store.completes != 1 || res.Checkpoint.PercentDone != 100 {
		t.Errorf("completes = %d percent = %v, want 1 and 100", store.completes, res.Checkpoint.PercentDone)
	}
	if sink.finished != 1 || sink.closed != 1 {
		t.Errorf("finished=%d closed=%d, want 1 and 1", sink.finished, sink.closed)
	}
}

type unreadable struct{}

func (unreadable) Read([]byte) (int, error) { return 0, errors.New("read on complete source") }

func TestPipelineAlreadyComplete(t *testing.T) {
	store := newFakeStore()
	store.checkpoints["done"] = Checkpoint{ID: 1, SourceKey: "done", LineOffset: 30, ByteOffset: 900, PercentDone: 100}
	sink := &recordingSink{}

	res, err := NewPipeline(store, Options{}).Run(context.Background(), Input{Key: "done", Reader: unreadable{}, Size: 1000}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.AlreadyComplete {
		t.Error("AlreadyComplete = false, want true")
	}
	if len(store.commits) != 0 || store.completes != 0 {
		t.Errorf("commits = %d completes = %d, want no writes", len(store.commits), store.completes)
	}
	if sink.closed != 1 {
		t.Errorf("closed = %d, want 1", sink.closed)
	}
}

func TestPipelineMalformedRow(t *testing.T) {
	text, _ := testListing(25)
	lines := strings.Split(text, "\n")
	// Line index 4 is the first row; corrupt the 15th row.
	lines[4+14] = "00000000deadbeef not-hex 24"
	text = strings.Join(lines, "\n")

	store := newFakeStore()
	sink := &recordingSink{}
	_, err := runListing(t, store, Options{BatchSize: 10}, text, sink)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Run() error = %v, want ErrMalformedRecord", err)
	}
	if !strings.Contains(err.Error(), "line 19") {
		t.Errorf("error %q does not name line 19", err)
	}
	if len(store.commits) != 1 || store.completes != 0 {
		t.Errorf("commits = %d completes = %d, want 1 and 0", len(store.commits), store.completes)
	}
	if store.checkpoints["/dumps/heap.txt"].ByteOffset != store.commits[0].ByteOffset {
		t.Error("checkpoint moved past the last committed batch")
	}
	if sink.closed != 1 {
		t.Errorf("closed = %d, want 1", sink.closed)
	}
}

func TestPipelineHeaderNotFound(t *testing.T) {
	store := newFakeStore()
	_, err := runListing(t, store, Options{}, "nothing\nto see\n", nil)
	if !errors.Is(err, ErrHeaderNotFound) {
		t.Fatalf("Run() error = %v, want ErrHeaderNotFound", err)
	}
	if store.completes != 0 {
		t.Error("checkpoint completed without a header")
	}
}

func TestPipelineCustomHeader(t *testing.T) {
	text := "preamble\n--objects--\n10 20 30\n\n"
	store := newFakeStore()
	res, err := runListing(t, store, Options{HeaderLabel: "--objects--"}, text, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Rows != 1 || store.rows[0] != (HeapObject{Address: 0x10, MethodTable: 0x20, Size: 30}) {
		t.Errorf("rows = %+v", store.rows)
	}
}

func TestPipelineCancelled(t *testing.T) {
	text, _ := testListing(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore()
	sink := &recordingSink{}
	_, err := NewPipeline(store, Options{}).Run(ctx, Input{Key: "k", Reader: strings.NewReader(text), Size: int64(len(text))}, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(store.commits) != 0 || sink.closed != 1 {
		t.Errorf("commits = %d closed = %d, want 0 and 1", len(store.commits), sink.closed)
	}
}

func TestPipelineResumeNeedsSeekableSource(t *testing.T) {
	store := newFakeStore()
	store.checkpoints["pipe"] = Checkpoint{ID: 1, SourceKey: "pipe", LineOffset: 10, ByteOffset: 300}

	r := io.MultiReader(strings.NewReader("data"))
	_, err := NewPipeline(store, Options{}).Run(context.Background(), Input{Key: "pipe", Reader: r}, nil)
	if !errors.Is(err, linescan.ErrNotSeekable) {
		t.Fatalf("Run() error = %v, want ErrNotSeekable", err)
	}
}

func TestPipelineSinkCloseErrorKeepsPrimary(t *testing.T) {
	closeErr := errors.New("terminal gone")
	sink := &recordingSink{closeErr: closeErr}

	_, err := runListing(t, newFakeStore(), Options{}, "no header\n", sink)
	if !errors.Is(err, ErrHeaderNotFound) {
		t.Errorf("error = %v, want ErrHeaderNotFound kept", err)
	}
	if !errors.Is(err, closeErr) {
		t.Errorf("error = %v, want close failure reported", err)
	}
}

func TestRunFile(t *testing.T) {
	text, want := testListing(12)
	path := filepath.Join(t.TempDir(), "heap.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	res, err := NewPipeline(store, Options{BatchSize: 5}).RunFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("RunFile() error = %v", err)
	}
	abs, _ := filepath.Abs(path)
	if res.SourceKey != abs {
		t.Errorf("SourceKey = %q, want %q", res.SourceKey, abs)
	}
	if !slices.Equal(store.rows, want) {
		t.Error("rows differ from the listing")
	}
	if res.Checkpoint.PercentDone != 100 {
		t.Errorf("PercentDone = %v, want 100", res.Checkpoint.PercentDone)
	}
}

func TestRunFileMissing(t *testing.T) {
	sink := &recordingSink{}
	_, err := NewPipeline(newFakeStore(), Options{}).RunFile(context.Background(), filepath.Join(t.TempDir(), "absent"), sink)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("RunFile() error = %v, want ErrNotExist", err)
	}
	if sink.closed != 1 {
		t.Errorf("closed = %d, want 1", sink.closed)
	}
}
