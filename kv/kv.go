package kv

import (
	"context"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("github.com/aep/docsql/kv")

type KeyAndValue struct {
	K []byte
	V []byte
}

type KV interface {
	Close()
	Write() Write
	Read() Read
	Ping() error
}

// Read is a consistent snapshot. Get returns nil, nil for missing keys on
// every backend.
type Read interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error]
	Close()
}

type Write interface {
	Read
	Put(key []byte, value []byte) error
	Del(key []byte) error
	Commit(ctx context.Context) error
	Rollback() error
}

type Options struct {
	// Backend is one of "mem", "pebble" or "tikv".
	Backend string
	// Path is the pebble data directory.
	Path string
	// PDEndpoints are the tikv placement driver addresses.
	PDEndpoints []string
}

func Open(opts Options) (KV, error) {
	switch opts.Backend {
	case "", "mem":
		return NewMemPebble()
	case "pebble":
		path := opts.Path
		if path == "" {
			path = "docsql-data"
		}
		return NewPebble(path)
	case "tikv":
		return NewTikv(opts.PDEndpoints...)
	}
	return nil, fmt.Errorf("unknown kv backend %q", opts.Backend)
}
