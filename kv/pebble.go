package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type Pebbledb struct {
	db *pebble.DB

	// pebble has no optimistic transactions like tikv. writers are
	// serialized from their first operation until commit or rollback.
	writeLock sync.Mutex
}

type PebbleWrite struct {
	p      *Pebbledb
	batch  *pebble.Batch
	err    error
	done   bool
	locked bool
}

func (w *PebbleWrite) lock() {
	if !w.locked && !w.done {
		w.p.writeLock.Lock()
		w.locked = true
	}
}

func (w *PebbleWrite) unlock() {
	if w.locked {
		w.locked = false
		w.p.writeLock.Unlock()
	}
}

func (w *PebbleWrite) Commit(ctx context.Context) error {
	_, span := tracer.Start(ctx, "kv.PebbleWrite.Commit")
	defer span.End()

	defer w.unlock()
	if w.err != nil {
		return w.err
	}
	if w.done {
		return fmt.Errorf("already committed")
	}
	w.done = true
	if err := w.batch.Commit(pebble.Sync); err != nil {
		w.err = err
		w.batch.Close()
		return err
	}
	return w.batch.Close()
}

func (w *PebbleWrite) Rollback() error {
	defer w.unlock()
	if w.done {
		return nil
	}
	w.done = true
	return w.batch.Close()
}

func (w *PebbleWrite) Put(key []byte, value []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	if err := w.batch.Set(key, value, pebble.Sync); err != nil {
		w.err = err
	}
	slog.Debug("[pebble].Put:", "key", string(key), "err", w.err)
	return w.err
}

func (w *PebbleWrite) Del(key []byte) error {
	w.lock()
	if w.err != nil {
		return w.err
	}
	if err := w.batch.Delete(key, pebble.Sync); err != nil {
		w.err = err
	}
	slog.Debug("[pebble].Del:", "key", string(key), "err", w.err)
	return w.err
}

func (w *PebbleWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	w.lock()
	if w.err != nil {
		return nil, w.err
	}
	return pebbleGet(w.batch, key)
}

func (w *PebbleWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	w.lock()
	return pebbleIter(ctx, start, end, func(o *pebble.IterOptions) (*pebble.Iterator, error) {
		return w.batch.NewIter(o)
	})
}

func (w *PebbleWrite) Close() {
	w.Rollback()
}

type PebbleRead struct {
	snapshot *pebble.Snapshot
}

func (r *PebbleRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	return pebbleGet(r.snapshot, key)
}

func (r *PebbleRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return pebbleIter(ctx, start, end, r.snapshot.NewIter)
}

func (r *PebbleRead) Close() {
	r.snapshot.Close()
}

type pebbleGetter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func pebbleGet(g pebbleGetter, key []byte) ([]byte, error) {
	val, closer, err := g.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			slog.Debug("[pebble].Get:", "key", string(key), "err", "not found")
			return nil, nil
		}
		slog.Debug("[pebble].Get:", "key", string(key), "err", err)
		return nil, err
	}
	defer closer.Close()

	// the closer invalidates val
	result := make([]byte, len(val))
	copy(result, val)

	slog.Debug("[pebble].Get:", "key", string(key))
	return result, nil
}

func pebbleIter(ctx context.Context, start []byte, end []byte, open func(*pebble.IterOptions) (*pebble.Iterator, error)) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		_, span := tracer.Start(ctx, "kv.Pebble.Iter")
		defer span.End()

		it, err := open(&pebble.IterOptions{
			LowerBound: start,
			UpperBound: end,
		})
		if err != nil {
			yield(KeyAndValue{}, err)
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			// iterator movement invalidates key and value
			key := append([]byte(nil), it.Key()...)
			val := append([]byte(nil), it.Value()...)

			slog.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "at", string(key))
			if !yield(KeyAndValue{K: key, V: val}, nil) {
				return
			}
		}

		if err := it.Error(); err != nil {
			slog.Debug("[pebble].Iter:", "start", string(start), "end", string(end), "err", err)
			yield(KeyAndValue{}, err)
		}
	}
}

func (p *Pebbledb) Close() {
	p.db.Close()
}

func (p *Pebbledb) Write() Write {
	return &PebbleWrite{p: p, batch: p.db.NewIndexedBatch()}
}

func (p *Pebbledb) Read() Read {
	return &PebbleRead{snapshot: p.db.NewSnapshot()}
}

func (p *Pebbledb) Ping() error {
	return nil
}

func NewPebble(path string) (KV, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Pebbledb{db: db}, nil
}

// NewMemPebble creates an in-memory pebble database, used by tests and the
// default server backend.
func NewMemPebble() (KV, error) {
	db, err := pebble.Open("", &pebble.Options{
		FS: vfs.NewMem(),
	})
	if err != nil {
		return nil, err
	}
	return &Pebbledb{db: db}, nil
}
