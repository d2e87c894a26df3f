// Package core ingests heap object listings into a checkpointed store.
//
// A listing is a text file whose data section starts after a fixed header
// label and ends at the first blank line. Each data row holds three
// whitespace separated fields: the object address and its method table in
// hexadecimal, and its size in decimal.
//
// # Checkpoints
//
// Every source has one [Checkpoint] in the [CheckpointStore], keyed by its
// absolute path. The [Pipeline] groups rows into batches and commits each
// batch together with the checkpoint position after its last row in a
// single transaction. A run that stops for any reason leaves the store at
// a batch boundary, and the next run hands the checkpoint to the scanner
// as a skip interval so the committed bytes are never read again.
//
// A checkpoint at 100 percent is complete; running the same source again
// does no work.
//
// # Progress
//
// Runs report byte offsets to a [ProgressSink]: once at start with the
// resume offset, after every commit, Finish on completion and Close on
// every exit path.
//
// # Error Handling
//
// Technical errors are mapped to coded messages using [MapError]:
//
//   - CFG001-CFG003: scanner configuration (seekability, intervals, encoding)
//   - SCN001-SCN002: read failures (position mismatch, no progress)
//   - REC001-REC002: listing format (malformed row, missing header)
//   - DB001-DB004: database failures
//   - RUN001: cancellation
package core
