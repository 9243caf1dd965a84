package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/docstore"
	"github.com/aep/docsql/dsql"
	"github.com/aep/docsql/history"
	"github.com/aep/docsql/kv"
	"github.com/aep/docsql/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newLocalSession(t *testing.T, opts Options) (*Session, *docstore.Store) {
	k, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(k.Close)

	db := docstore.New(k, docstore.Options{})
	s, err := New(store.NewConn(store.NewLocal(db, 2)), nil, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, db
}

func ids(res *dsql.Result) []string {
	var out []string
	for _, r := range res.Rows {
		out = append(out, r["id"].(string))
	}
	return out
}

func TestSubmitAndPage(t *testing.T) {
	s, db := newLocalSession(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := db.Create(ctx, "items", "", map[string]any{"n": float64(i)})
		require.NoError(t, err)
	}

	res := s.Submit(ctx, "SELECT * FROM items")
	require.Equal(t, dsql.ResultRead, res.Type, res.Message)
	require.Len(t, res.Rows, 2)
	require.Equal(t, 1, s.Page())
	first := ids(res)

	res, ok := s.Next(ctx)
	require.True(t, ok)
	require.Len(t, res.Rows, 2)
	second := ids(res)
	require.Equal(t, 2, s.Page())

	res, ok = s.Next(ctx)
	require.True(t, ok)
	require.Len(t, res.Rows, 1)
	third := ids(res)

	res, ok = s.Next(ctx)
	require.True(t, ok)
	require.Empty(t, res.Rows)
	require.Equal(t, 4, s.Page())

	_, ok = s.Next(ctx)
	require.False(t, ok, "no paging past an empty page")
	require.Equal(t, 4, s.Page())

	res, ok = s.Prev(ctx)
	require.True(t, ok)
	assert.Equal(t, third, ids(res))

	res, ok = s.Prev(ctx)
	require.True(t, ok)
	assert.Equal(t, second, ids(res))

	res, ok = s.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, third, ids(res), "replaying a page gives the same rows")

	s.Prev(ctx)
	s.Prev(ctx)
	require.Equal(t, 1, s.Page())
	assert.Equal(t, first, ids(s.Result()))

	_, ok = s.Prev(ctx)
	require.False(t, ok)
}

func TestColumnsFrozenAcrossPages(t *testing.T) {
	s, db := newLocalSession(t, Options{})
	ctx := context.Background()

	for i, d := range []map[string]any{{"a": 1.0}, {"a": 2.0}, {"a": 3.0, "b": 4.0}} {
		_, err := db.Create(ctx, "things", fmt.Sprintf("t%d", i), d)
		require.NoError(t, err)
	}

	res := s.Submit(ctx, "SELECT * FROM things WHERE a < 3")
	require.Equal(t, []string{"id", "a"}, res.Columns)

	res = s.Submit(ctx, "SELECT * FROM things")
	require.Len(t, res.Rows, 2)

	res, ok := s.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "a"}, res.Columns, "later pages keep the first page's columns")
	assert.Equal(t, 4.0, mustFloat(t, res.Rows[0]["b"]))
}

func mustFloat(t *testing.T, v any) float64 {
	n, ok := v.(interface{ Float64() (float64, error) })
	require.True(t, ok, "%T", v)
	f, err := n.Float64()
	require.NoError(t, err)
	return f
}

func TestEditAndInsert(t *testing.T) {
	s, db := newLocalSession(t, Options{})
	ctx := context.Background()

	created, err := db.Create(ctx, "users", "", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	id := created.Id

	_, err = s.InsertRow(ctx, map[string]any{"name": "x"})
	require.ErrorIs(t, err, dsql.ErrNotReadResult)

	s.Submit(ctx, "SELECT * FROM users")
	require.NoError(t, s.EditCell(ctx, id, "name", "Anna"))
	assert.Equal(t, "Anna", s.Result().Rows[0]["name"])

	doc, err := db.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Anna", doc.Val["name"])

	newID, err := s.InsertRow(ctx, map[string]any{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, newID, s.Result().Rows[0]["id"])

	ed := s.NewCellEditor()
	require.NoError(t, ed.Begin(s.Result(), id, "name"))
	ed.SetRaw("Annabel")
	require.NoError(t, ed.Save(ctx))
	doc, err = db.Get(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Annabel", doc.Val["name"])

	items := s.History().Items()
	require.Len(t, items, 4)
	assert.Equal(t, "SELECT * FROM users", items[0].Query)
	assert.Equal(t, history.StatusSuccess, items[3].Status)
}

func TestNotConnected(t *testing.T) {
	s, err := New(store.NewConn(nil), nil, Options{})
	require.NoError(t, err)
	defer s.Close()

	res := s.Submit(context.Background(), "SELECT * FROM users")
	require.Equal(t, dsql.ResultError, res.Type)
	assert.Equal(t, store.ErrNotConnected.Error(), res.Message)
	assert.Equal(t, history.StatusError, s.History().Items()[0].Status)
}

// gatedStore blocks List for selected collection/cursor pairs until the gate
// is closed.
type gatedStore struct {
	store.Store
	gates map[string]chan struct{}
	lists *atomic.Int32
}

func gateKey(collection string, cursor api.Cursor) string {
	return collection + "|" + string(cursor)
}

func (g *gatedStore) List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error) {
	g.lists.Inc()
	if gate, ok := g.gates[gateKey(collection, cursor)]; ok {
		<-gate
	}
	return g.Store.List(ctx, collection, filter, cursor)
}

func newGatedSession(t *testing.T, opts Options, gates map[string]chan struct{}) (*Session, *gatedStore) {
	k, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(k.Close)

	local := store.NewLocal(docstore.New(k, docstore.Options{}), 2)
	ctx := context.Background()
	for _, c := range []string{"slow", "fast"} {
		for i := 0; i < 3; i++ {
			_, err := local.Create(ctx, c, map[string]any{"i": float64(i)})
			require.NoError(t, err)
		}
	}

	g := &gatedStore{Store: local, gates: gates, lists: atomic.NewInt32(0)}
	s, err := New(store.NewConn(g), nil, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, g
}

func TestOverlappingSubmitsLastResolvedWins(t *testing.T) {
	gate := make(chan struct{})
	s, g := newGatedSession(t, Options{}, map[string]chan struct{}{
		gateKey("slow", api.StartCursor): gate,
	})
	ctx := context.Background()

	slow := s.SubmitAsync(ctx, "SELECT * FROM slow")
	require.Eventually(t, func() bool { return g.lists.Load() == 1 }, time.Second, time.Millisecond)

	fast := s.Submit(ctx, "SELECT * FROM fast")
	require.Equal(t, "fast", s.Result().Collection)
	require.Equal(t, "fast", fast.Collection)

	close(gate)
	res := <-slow
	require.Equal(t, "slow", res.Collection)

	assert.Equal(t, "slow", s.Result().Collection, "the response that resolved last is shown")
	assert.Equal(t, "SELECT * FROM slow", s.Statement())
	assert.Equal(t, 1, s.Page())
}

func TestOverlappingSubmitsDiscardStale(t *testing.T) {
	gate := make(chan struct{})
	s, g := newGatedSession(t, Options{DiscardStale: true}, map[string]chan struct{}{
		gateKey("slow", api.StartCursor): gate,
	})
	ctx := context.Background()

	slow := s.SubmitAsync(ctx, "SELECT * FROM slow")
	require.Eventually(t, func() bool { return g.lists.Load() == 1 }, time.Second, time.Millisecond)

	s.Submit(ctx, "SELECT * FROM fast")
	close(gate)
	<-slow

	assert.Equal(t, "fast", s.Result().Collection, "an older response must not replace a newer one")
	assert.Equal(t, "SELECT * FROM fast", s.Statement())
	assert.Len(t, s.History().Items(), 2, "both statements are in the history")
}

func TestPagingResponseDroppedAfterNewQuery(t *testing.T) {
	gates := map[string]chan struct{}{}
	s, g := newGatedSession(t, Options{}, gates)
	ctx := context.Background()

	first := s.Submit(ctx, "SELECT * FROM slow")
	require.Len(t, first.Rows, 2)
	gate := make(chan struct{})
	gates[gateKey("slow", first.PageCursor)] = gate

	type pageResult struct {
		res *dsql.Result
		ok  bool
	}
	done := make(chan pageResult, 1)
	before := g.lists.Load()
	go func() {
		res, ok := s.Next(ctx)
		done <- pageResult{res, ok}
	}()
	require.Eventually(t, func() bool { return g.lists.Load() == before+1 }, time.Second, time.Millisecond)

	s.Submit(ctx, "SELECT * FROM fast")
	close(gate)
	pr := <-done

	require.False(t, pr.ok, "a page that resolves after a new query is dropped")
	require.NotNil(t, pr.res)
	assert.Equal(t, "fast", s.Result().Collection)
	assert.Equal(t, 1, s.Page(), "the cursor stack of the new query is untouched")

	res, ok := s.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "fast", res.Collection)
	assert.Equal(t, 2, s.Page())
}

func TestSubmitAsyncMany(t *testing.T) {
	s, _ := newLocalSession(t, Options{Workers: 2})
	ctx := context.Background()

	var chans []<-chan *dsql.Result
	for i := 0; i < 10; i++ {
		chans = append(chans, s.SubmitAsync(ctx, fmt.Sprintf("INSERT INTO items JSON {\"i\": %d}", i)))
	}
	for _, ch := range chans {
		res := <-ch
		require.Equal(t, dsql.ResultWrite, res.Type, res.Message)
	}
	assert.Equal(t, 10, s.History().Len())

	res := s.Submit(ctx, "SELECT * FROM items")
	assert.Len(t, res.Rows, 2)
}

// slowWrites blocks Update and Create until release is closed.
type slowWrites struct {
	store.Store
	release chan struct{}
	writes  *atomic.Int32
}

func (w *slowWrites) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	w.writes.Inc()
	<-w.release
	return w.Store.Update(ctx, collection, id, fields)
}

func (w *slowWrites) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	w.writes.Inc()
	<-w.release
	return w.Store.Create(ctx, collection, fields)
}

func TestWritesDoNotHoldSession(t *testing.T) {
	k, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(k.Close)

	db := docstore.New(k, docstore.Options{})
	ctx := context.Background()
	created, err := db.Create(ctx, "users", "", map[string]any{"name": "Ann"})
	require.NoError(t, err)

	w := &slowWrites{Store: store.NewLocal(db, 2), release: make(chan struct{}), writes: atomic.NewInt32(0)}
	s, err := New(store.NewConn(w), nil, Options{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	s.Submit(ctx, "SELECT * FROM users")

	edited := make(chan error, 1)
	go func() { edited <- s.EditCell(ctx, created.Id, "name", "Anna") }()
	inserted := make(chan error, 1)
	go func() {
		_, err := s.InsertRow(ctx, map[string]any{"name": "Bob"})
		inserted <- err
	}()
	require.Eventually(t, func() bool { return w.writes.Load() == 2 }, time.Second, time.Millisecond)

	type observed struct {
		held any
		res  *dsql.Result
	}
	done := make(chan observed, 1)
	go func() {
		held := s.Result().Rows[0]["name"]
		done <- observed{held, s.Submit(ctx, "SELECT * FROM users")}
	}()

	select {
	case o := <-done:
		assert.Equal(t, "Anna", o.held, "the edit shows before the write finishes")
		res := o.res
		assert.Equal(t, dsql.ResultRead, res.Type)
		assert.Equal(t, "Ann", res.Rows[0]["name"], "the write has not landed yet")
	case <-time.After(2 * time.Second):
		t.Fatal("session blocked behind an in-flight write")
	}

	close(w.release)
	require.NoError(t, <-edited)
	require.NoError(t, <-inserted)

	doc, err := db.Get(ctx, "users", created.Id)
	require.NoError(t, err)
	assert.Equal(t, "Anna", doc.Val["name"])
}
