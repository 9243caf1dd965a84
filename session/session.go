// Package session ties one user's store connection, current result and
// page position together.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/dsql"
	"github.com/aep/docsql/history"
	"github.com/aep/docsql/store"
	"github.com/panjf2000/ants/v2"
)

type Options struct {
	// DiscardStale drops a response when a response to a later request was
	// already applied. Without it the last response to arrive wins.
	DiscardStale bool
	// Workers bounds concurrent SubmitAsync calls.
	Workers int
}

// Session applies every response as one step: the cursor stack and the
// result never show state from two different responses.
type Session struct {
	conn    *store.Conn
	exec    *dsql.Executor
	rec     *dsql.Reconciler
	history *history.Log
	pool    *ants.Pool
	opts    Options

	mu        sync.Mutex
	cursors   *dsql.CursorStack
	result    *dsql.Result
	statement string
	// generation counts applied responses
	generation uint64
	issued     uint64
	applied    uint64
}

func New(conn *store.Conn, h *history.Log, opts Options) (*Session, error) {
	if h == nil {
		var err error
		if h, err = history.New(nil); err != nil {
			return nil, err
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(v any) {
		slog.Error("[session]: async statement panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	return &Session{
		conn:    conn,
		exec:    dsql.NewExecutor(conn),
		rec:     &dsql.Reconciler{Store: conn, History: h},
		history: h,
		pool:    pool,
		opts:    opts,
		cursors: dsql.NewCursorStack(),
	}, nil
}

func (s *Session) Close() {
	s.pool.Release()
}

func (s *Session) Conn() *store.Conn {
	return s.conn
}

func (s *Session) History() *history.Log {
	return s.history
}

func (s *Session) Result() *dsql.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) Statement() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statement
}

func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors.Page()
}

// issue must be called with mu held.
func (s *Session) issue() uint64 {
	s.issued++
	return s.issued
}

// stale must be called with mu held.
func (s *Session) stale(seq uint64) bool {
	return s.opts.DiscardStale && seq < s.applied
}

// commit must be called with mu held.
func (s *Session) commit(seq uint64, res *dsql.Result) {
	s.result = res
	s.generation++
	if seq > s.applied {
		s.applied = seq
	}
}

// Submit runs a new statement from the first page.
func (s *Session) Submit(ctx context.Context, statement string) *dsql.Result {
	s.mu.Lock()
	seq := s.issue()
	s.mu.Unlock()

	res := s.exec.Run(ctx, statement, api.StartCursor)
	s.history.Record(statement, res.Type != dsql.ResultError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale(seq) {
		slog.Debug("[session].Submit: dropping stale response", "statement", statement, "seq", seq, "applied", s.applied)
		return res
	}
	s.statement = statement
	s.cursors.Reset()
	s.commit(seq, res)
	return res
}

// SubmitAsync runs Submit on the worker pool. The channel receives exactly
// one result.
func (s *Session) SubmitAsync(ctx context.Context, statement string) <-chan *dsql.Result {
	ch := make(chan *dsql.Result, 1)
	err := s.pool.Submit(func() {
		ch <- s.Submit(ctx, statement)
	})
	if err != nil {
		ch <- dsql.ErrorResult(err.Error())
	}
	return ch
}

// Next fetches the page after the current one. It returns false when there
// is nothing to page through or the response was not applied.
func (s *Session) Next(ctx context.Context) (*dsql.Result, bool) {
	return s.page(ctx, func(c *dsql.CursorStack, returned api.Cursor) (api.Cursor, bool) {
		return c.Peek(returned)
	}, func(c *dsql.CursorStack, returned api.Cursor) {
		c.Advance(returned)
	})
}

// Prev fetches the page before the current one.
func (s *Session) Prev(ctx context.Context) (*dsql.Result, bool) {
	return s.page(ctx, func(c *dsql.CursorStack, _ api.Cursor) (api.Cursor, bool) {
		return c.PeekBack()
	}, func(c *dsql.CursorStack, _ api.Cursor) {
		c.Retreat()
	})
}

func (s *Session) page(
	ctx context.Context,
	peek func(*dsql.CursorStack, api.Cursor) (api.Cursor, bool),
	move func(*dsql.CursorStack, api.Cursor),
) (*dsql.Result, bool) {

	s.mu.Lock()
	if s.result == nil || s.result.Type != dsql.ResultRead {
		s.mu.Unlock()
		return nil, false
	}
	returned := s.result.PageCursor
	cursor, ok := peek(s.cursors, returned)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	gen := s.generation
	seq := s.issue()
	statement := s.statement
	columns := s.result.Columns
	s.mu.Unlock()

	res := s.exec.Run(ctx, statement, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Type != dsql.ResultRead {
		return res, false
	}
	if gen != s.generation {
		slog.Debug("[session].page: another response was applied meanwhile, dropping", "statement", statement)
		return res, false
	}

	res.Columns = columns
	move(s.cursors, returned)
	s.commit(seq, res)
	return res, true
}

// EditCell changes the held row right away and writes the change without
// holding the session, so paging and new statements proceed meanwhile.
func (s *Session) EditCell(ctx context.Context, id string, field string, value any) error {
	s.mu.Lock()
	err := s.rec.StageEdit(s.result, id, field, value)
	var collection string
	if err == nil {
		collection = s.result.Collection
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.rec.WriteEdit(ctx, collection, id, field, value)
}

// InsertRow creates the document and, once it has an id, prepends it to the
// result that was held when the insert started.
func (s *Session) InsertRow(ctx context.Context, fields map[string]any) (string, error) {
	s.mu.Lock()
	res := s.result
	s.mu.Unlock()
	if res == nil || res.Type != dsql.ResultRead || res.Collection == "" {
		return "", dsql.ErrNotReadResult
	}

	id, err := s.rec.CreateRow(ctx, res.Collection, fields)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	dsql.PrependRow(res, id, fields)
	s.mu.Unlock()
	return id, nil
}

// NewCellEditor returns an editor whose Save goes through EditCell. Begin
// it with Result().
func (s *Session) NewCellEditor() *dsql.CellEditor {
	return dsql.NewCellEditor(s.EditCell)
}
