package kv

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	pingcaplog "github.com/pingcap/log"
	tikverr "github.com/tikv/client-go/v2/error"
	"github.com/tikv/client-go/v2/txnkv"
	"github.com/tikv/client-go/v2/txnkv/txnsnapshot"
	"go.uber.org/zap"
)

var quietPingcap sync.Once

// the tikv client logs through pingcap/log at info level by default,
// which drowns out our own output.
func silencePingcapLog() {
	quietPingcap.Do(func() {
		_, p, err := pingcaplog.InitLogger(&pingcaplog.Config{})
		if err != nil {
			return
		}

		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
		l, err := config.Build()
		if err != nil {
			return
		}

		pingcaplog.ReplaceGlobals(l, p)
	})
}

type Tikv struct {
	k *txnkv.Client
}

type TikvWrite struct {
	txn      *txnkv.KVTxn
	err      error
	commited bool
}

func (w *TikvWrite) Commit(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if w.commited {
		return fmt.Errorf("already commited")
	}

	ctx, span := tracer.Start(ctx, "kv.TikvWrite.Commit")
	defer span.End()

	if err := w.txn.Commit(ctx); err != nil {
		w.err = err
		return err
	}
	w.commited = true
	return nil
}

func (w *TikvWrite) Rollback() error {
	if w.commited || w.err != nil {
		return w.err
	}
	return w.txn.Rollback()
}

func (w *TikvWrite) Put(key []byte, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.txn.Set(key, value); err != nil {
		w.Rollback()
		w.err = err
	}
	slog.Debug("[tikv].Put:", "key", string(key), "err", w.err)
	return w.err
}

func (w *TikvWrite) Del(key []byte) error {
	if w.err != nil {
		return w.err
	}
	if err := w.txn.Delete(key); err != nil {
		w.err = err
	}
	slog.Debug("[tikv].Del:", "key", string(key), "err", w.err)
	return w.err
}

func (w *TikvWrite) Get(ctx context.Context, key []byte) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}

	ctx, span := tracer.Start(ctx, "kv.TikvWrite.Get")
	defer span.End()

	return tikvGet(w.txn.Get(ctx, key))
}

func (w *TikvWrite) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	return tikvIter(ctx, "kv.TikvWrite.Iter", start, end, func() (tikvIterator, error) {
		return w.txn.Iter(start, end)
	})
}

func (w *TikvWrite) Close() {
	if !w.commited {
		w.Rollback()
	}
}

type TikvRead struct {
	txn *txnsnapshot.KVSnapshot
	err error
}

func (r *TikvRead) Get(ctx context.Context, key []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	ctx, span := tracer.Start(ctx, "kv.TikvRead.Get")
	defer span.End()

	return tikvGet(r.txn.Get(ctx, key))
}

func (r *TikvRead) Iter(ctx context.Context, start []byte, end []byte) iter.Seq2[KeyAndValue, error] {
	if r.err != nil {
		return func(yield func(KeyAndValue, error) bool) {
			yield(KeyAndValue{}, r.err)
		}
	}
	return tikvIter(ctx, "kv.TikvRead.Iter", start, end, func() (tikvIterator, error) {
		return r.txn.Iter(start, end)
	})
}

func (r *TikvRead) Close() {
}

func tikvGet(b []byte, err error) ([]byte, error) {
	if err != nil {
		if tikverr.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

type tikvIterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next() error
	Close()
}

func tikvIter(ctx context.Context, name string, start []byte, end []byte, open func() (tikvIterator, error)) iter.Seq2[KeyAndValue, error] {
	return func(yield func(KeyAndValue, error) bool) {
		_, span := tracer.Start(ctx, name)
		defer span.End()

		it, err := open()
		if err != nil {
			slog.Debug("[tikv].Iter:", "start", string(start), "end", string(end), "err", err)
			yield(KeyAndValue{}, err)
			return
		}
		defer it.Close()

		for it.Valid() {
			slog.Debug("[tikv].Iter:", "start", string(start), "end", string(end), "at", string(it.Key()))
			if !yield(KeyAndValue{K: it.Key(), V: it.Value()}, nil) {
				return
			}
			if err := it.Next(); err != nil {
				yield(KeyAndValue{}, err)
				return
			}
		}
	}
}

func (t *Tikv) Close() {
	t.k.Close()
}

func (t *Tikv) Write() Write {
	txn, err := t.k.Begin()
	return &TikvWrite{txn: txn, err: err}
}

func (t *Tikv) Read() Read {
	ts, err := t.k.CurrentTimestamp("global")
	if err != nil {
		return &TikvRead{nil, err}
	}
	return &TikvRead{t.k.GetSnapshot(ts), nil}
}

func (t *Tikv) Ping() error {
	_, err := t.k.CurrentTimestamp("global")
	return err
}

func NewTikv(pd ...string) (KV, error) {
	silencePingcapLog()

	if len(pd) == 0 {
		pd = []string{"127.0.0.1:2379"}
	}
	k, err := txnkv.NewClient(pd)
	if err != nil {
		return nil, fmt.Errorf("connect tikv %v: %w", pd, err)
	}
	return &Tikv{k}, nil
}
