package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Opener connects a backend.
type Opener func(ctx context.Context, opts Options) (Store, error)

var (
	registry   = make(map[string]Opener)
	registryMu sync.RWMutex
)

// Register makes a backend available under a URL scheme.
// Panics if the scheme is already registered.
func Register(scheme string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	scheme = strings.ToLower(scheme)
	if _, exists := registry[scheme]; exists {
		panic(fmt.Sprintf("store scheme already registered: %s", scheme))
	}
	registry[scheme] = open
}

// Schemes returns the registered URL schemes, sorted.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schemes := make([]string, 0, len(registry))
	for s := range registry {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open connects the backend registered for the scheme of opts.URL.
func Open(ctx context.Context, opts Options) (Store, error) {
	opts = opts.withDefaults()
	if opts.Table == "" {
		return nil, ErrNoTable
	}

	scheme := Scheme(opts.URL)

	registryMu.RLock()
	open, ok := registry[scheme]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownScheme, scheme, strings.Join(Schemes(), ", "))
	}
	return open(ctx, opts)
}

// Scheme returns the lower-cased scheme of a database URL.
func Scheme(url string) string {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// quoteIdentifier safely quotes a SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
