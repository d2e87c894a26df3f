package linescan

// scanner.go implements the chunked, resumable line reader.
//
// The buffer holds bytes [offset, readPos) of the source in buf[start:end].
// Reads never cross the start of the next pending interval, so when the read
// cursor reaches that start everything buffered belongs before the interval.
// At that point any remaining bytes are flushed as a record, the source is
// seeked to the interval's end and line numbering resumes at its ToLine.

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"golang.org/x/text/encoding"
)

// DefaultChunkSize is the initial buffer size and the largest single read.
const DefaultChunkSize = 64 * 1024

// maxEmptyReads bounds how many (0, nil) reads are tolerated in a row.
const maxEmptyReads = 100

// Options configures a Scanner.
type Options struct {
	// ChunkSize is the initial buffer size. The buffer doubles whenever a
	// single line does not fit. Defaults to DefaultChunkSize.
	ChunkSize int

	// Encoding decodes line bytes into text. Nil passes bytes through as is.
	Encoding encoding.Encoding

	// Intervals lists already processed byte ranges, in increasing order.
	// They require a source that implements io.Seeker.
	Intervals []Interval
}

// Scanner reads records from a byte source. It is not safe for concurrent
// use; at most one read is outstanding at a time.
type Scanner struct {
	src     io.Reader
	seeker  io.Seeker // nil when the source cannot seek
	decoder *encoding.Decoder

	buf   []byte
	start int // first unconsumed byte
	end   int // one past the last buffered byte
	scan  int // first buffered byte not yet checked for a terminator

	offset int64 // source offset of buf[start]
	line   int64 // index of the next record

	intervals []Interval
	pending   int // index of the next interval to apply
	eof       bool
	err       error
}

// NewScanner validates opts and returns a scanner over r. No bytes are read
// until the first call to Next.
func NewScanner(r io.Reader, opts Options) (*Scanner, error) {
	s := &Scanner{src: r}

	// Pipes implement io.Seeker but fail to seek; treat them as streams.
	if sk, ok := r.(io.Seeker); ok {
		if _, err := sk.Seek(0, io.SeekCurrent); err == nil {
			s.seeker = sk
		}
	}

	if len(opts.Intervals) > 0 {
		if s.seeker == nil {
			return nil, ErrNotSeekable
		}
		if err := ValidateIntervals(opts.Intervals); err != nil {
			return nil, err
		}
		s.intervals = slices.Clone(opts.Intervals)
	}

	if opts.Encoding != nil {
		if err := checkTerminators(opts.Encoding); err != nil {
			return nil, err
		}
		s.decoder = opts.Encoding.NewDecoder()
	}

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	s.buf = make([]byte, size)

	return s, nil
}

// Next returns the next record, or io.EOF once the source is exhausted.
// Any other error is sticky and returned by every later call.
func (s *Scanner) Next() (Record, error) {
	if s.err != nil {
		return Record{}, s.err
	}
	rec, err := s.next()
	if err != nil {
		s.err = err
	}
	return rec, err
}

// Records returns the remaining records as a lazy sequence. A read failure
// is yielded once as the final element.
func (s *Scanner) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *Scanner) next() (Record, error) {
	for {
		boundary := s.atBoundary()

		if content, length, ok := s.terminated(boundary); ok {
			return s.emit(content, length)
		}

		if !boundary {
			if err := s.fill(); err != nil {
				return Record{}, err
			}
			continue
		}

		// No more bytes for this segment: flush the unterminated tail.
		if s.start < s.end {
			n := s.end - s.start
			return s.emit(n, n)
		}
		if s.eof {
			return Record{}, io.EOF
		}
		if err := s.jump(); err != nil {
			return Record{}, err
		}
	}
}

// readPos is the source offset of the next byte to read.
func (s *Scanner) readPos() int64 {
	return s.offset + int64(s.end-s.start)
}

// atBoundary reports whether no further bytes may be read before the
// buffered ones are consumed: end of input or the start of an interval.
func (s *Scanner) atBoundary() bool {
	if s.eof {
		return true
	}
	return s.pending < len(s.intervals) && s.readPos() == s.intervals[s.pending].FromOffset
}

// terminated looks for the first line terminator in the buffered bytes. It
// returns the content length and the length including the terminator. A CR
// in the last buffered byte is only accepted as a terminator when final is
// set; otherwise it is examined again after the next read.
func (s *Scanner) terminated(final bool) (content, length int, ok bool) {
	for i := s.scan; i < s.end; i++ {
		switch s.buf[i] {
		case '\n':
			return i - s.start, i + 1 - s.start, true
		case '\r':
			if i+1 < s.end {
				if s.buf[i+1] == '\n' {
					return i - s.start, i + 2 - s.start, true
				}
				return i - s.start, i + 1 - s.start, true
			}
			if final {
				return i - s.start, i + 1 - s.start, true
			}
			s.scan = i
			return 0, 0, false
		}
	}
	s.scan = s.end
	return 0, 0, false
}

func (s *Scanner) emit(content, length int) (Record, error) {
	text, err := s.decode(s.buf[s.start : s.start+content])
	if err != nil {
		return Record{}, fmt.Errorf("decode line %d at offset %d: %w", s.line, s.offset, err)
	}

	rec := Record{Text: text, Line: s.line, Offset: s.offset, Length: length}
	s.start += length
	s.scan = s.start
	s.offset += int64(length)
	s.line++
	return rec, nil
}

func (s *Scanner) decode(b []byte) (string, error) {
	if s.decoder == nil {
		return string(b), nil
	}
	out, err := s.decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// fill reads the next chunk, compacting or growing the buffer first.
func (s *Scanner) fill() error {
	if s.start == s.end {
		s.start, s.end, s.scan = 0, 0, 0
	}
	if s.end == len(s.buf) {
		if s.start > 0 {
			n := copy(s.buf, s.buf[s.start:s.end])
			s.scan -= s.start
			s.start, s.end = 0, n
		} else {
			grown := make([]byte, 2*len(s.buf))
			copy(grown, s.buf[:s.end])
			s.buf = grown
		}
	}

	pos := s.readPos()
	want := len(s.buf) - s.end
	if s.pending < len(s.intervals) {
		if limit := s.intervals[s.pending].FromOffset - pos; limit < int64(want) {
			want = int(limit)
		}
	}

	for empty := 0; ; empty++ {
		n, err := s.src.Read(s.buf[s.end : s.end+want])
		if n < 0 || n > want {
			return fmt.Errorf("read at offset %d: invalid byte count %d", pos, n)
		}
		s.end += n
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return fmt.Errorf("read at offset %d: %w", pos, err)
		}
		if n > 0 || s.eof {
			break
		}
		if empty >= maxEmptyReads {
			return io.ErrNoProgress
		}
	}

	return s.verify()
}

// verify checks the source cursor against the computed read position.
func (s *Scanner) verify() error {
	if s.seeker == nil {
		return nil
	}
	actual, err := s.seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("query source position: %w", err)
	}
	if expected := s.readPos(); actual != expected {
		return fmt.Errorf("%w: source at %d, expected %d", ErrPositionMismatch, actual, expected)
	}
	return nil
}

// jump applies the pending interval. The buffer is empty when it is called.
func (s *Scanner) jump() error {
	iv := s.intervals[s.pending]
	if _, err := s.seeker.Seek(iv.ToOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", iv.ToOffset, err)
	}
	s.start, s.end, s.scan = 0, 0, 0
	s.offset = iv.ToOffset
	s.line = iv.ToLine
	s.pending++
	return nil
}
