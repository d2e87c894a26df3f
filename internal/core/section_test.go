package core

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/JonMunkholm/heapload/internal/linescan"
)

func texts(t *testing.T, input, header string, inData bool) ([]string, bool) {
	t.Helper()
	sc, err := linescan.NewScanner(strings.NewReader(input), linescan.Options{ChunkSize: 4})
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	var got []string
	for rec, err := range dataRows(sc.Records(), header, &inData) {
		if err != nil {
			t.Fatalf("dataRows() error = %v", err)
		}
		got = append(got, rec.Text)
	}
	return got, inData
}

func TestDataRows(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		inData    bool
		want      []string
		wantFound bool
	}{
		{
			name:      "preamble header rows trailer",
			input:     "intro\nH\na\nb\n\ntrailer\n",
			want:      []string{"a", "b"},
			wantFound: true,
		},
		{
			name:      "no blank line",
			input:     "H\na\nb",
			want:      []string{"a", "b"},
			wantFound: true,
		},
		{
			name:      "header last line",
			input:     "x\nH",
			wantFound: true,
		},
		{
			name:      "empty section",
			input:     "H\n\na\n",
			wantFound: true,
		},
		{
			name:  "missing header",
			input: "x\ny\n",
		},
		{
			name:      "header match is exact",
			input:     " H\nH \nH\na\n",
			want:      []string{"a"},
			wantFound: true,
		},
		{
			name:      "second header is data",
			input:     "H\nH\n\n",
			want:      []string{"H"},
			wantFound: true,
		},
		{
			name:      "already in data",
			input:     "a\nb\n\nc\n",
			inData:    true,
			want:      []string{"a", "b"},
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := texts(t, tt.input, "H", tt.inData)
			if !slices.Equal(got, tt.want) {
				t.Errorf("rows = %q, want %q", got, tt.want)
			}
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
		})
	}
}

func TestDataRowsStopsReading(t *testing.T) {
	// Everything after the blank line must stay unread.
	r := &countingReader{r: strings.NewReader("H\na\n\n" + strings.Repeat("z", 1000))}
	sc, err := linescan.NewScanner(r, linescan.Options{ChunkSize: 8})
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	inData := false
	for _, err := range dataRows(sc.Records(), "H", &inData) {
		if err != nil {
			t.Fatal(err)
		}
	}
	if r.n > 16 {
		t.Errorf("read %d bytes, want at most 16", r.n)
	}
}

func TestDataRowsPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(linescan.Record, error) bool) {
		if !yield(linescan.Record{Text: "H"}, nil) {
			return
		}
		yield(linescan.Record{}, boom)
	}
	inData := false
	var gotErr error
	for _, err := range dataRows(seq, "H", &inData) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want boom", gotErr)
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
