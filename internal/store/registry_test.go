package store

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "postgres://u:p@localhost/db", want: "postgres"},
		{url: "PostgreSQL://localhost/db", want: "postgresql"},
		{url: "sqlite::memory:", want: "sqlite"},
		{url: "sqlite:///var/lib/heap.db", want: "sqlite"},
		{url: "memory:", want: "memory"},
		{url: "/just/a/path", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Scheme(tt.url); got != tt.want {
				t.Errorf("Scheme(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "sqlite::memory:", want: ":memory:"},
		{url: "sqlite:///var/lib/heap.db", want: "/var/lib/heap.db"},
		{url: "sqlite://heap.db", want: "heap.db"},
		{url: "sqlite:heap.db", want: "heap.db"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := SQLitePath(tt.url); got != tt.want {
				t.Errorf("SQLitePath(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSchemesRegistered(t *testing.T) {
	got := Schemes()
	for _, want := range []string{"memory", "postgres", "postgresql", "sqlite"} {
		if !slices.Contains(got, want) {
			t.Errorf("Schemes() = %v, missing %q", got, want)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, Options{URL: "mysql://localhost/db", Table: "t"}); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Open(mysql) error = %v, want ErrUnknownScheme", err)
	}
	if _, err := Open(ctx, Options{URL: "memory:"}); !errors.Is(err, ErrNoTable) {
		t.Errorf("Open(no table) error = %v, want ErrNoTable", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register() of an existing scheme did not panic")
		}
	}()
	Register("memory", nil)
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "normal identifier", input: "heap", want: `"heap"`},
		{name: "mixed case preserved", input: "HeapDump", want: `"HeapDump"`},
		{name: "reserved word still quoted", input: "select", want: `"select"`},
		{name: "contains double quote - escaped", input: `heap"dump`, want: `"heap""dump"`},
		{name: "sql injection attempt safely quoted", input: `heap"; DROP TABLE journal; --`, want: `"heap""; DROP TABLE journal; --"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteIdentifier(tt.input); got != tt.want {
				t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
