package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/docstore"
	"github.com/aep/docsql/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnNotConnected(t *testing.T) {
	c := NewConn(nil)
	ctx := context.Background()

	require.False(t, c.Connected())

	_, err := c.List(ctx, "users", nil, api.StartCursor)
	require.ErrorIs(t, err, ErrNotConnected)
	_, err = c.Create(ctx, "users", nil)
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, c.Update(ctx, "users", "a", nil), ErrNotConnected)
	require.ErrorIs(t, c.Delete(ctx, "users", "a"), ErrNotConnected)
	_, err = c.Read(ctx, "users", "a")
	require.ErrorIs(t, err, ErrNotConnected)
}

func newLocal(t *testing.T) *Local {
	k, err := kv.NewMemPebble()
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return NewLocal(docstore.New(k, docstore.Options{}), 2)
}

func TestConnDisconnect(t *testing.T) {
	c := NewConn(nil)
	c.Connect(newLocal(t))
	require.True(t, c.Connected())

	_, err := c.Create(context.Background(), "users", map[string]any{"a": 1.0})
	require.NoError(t, err)

	c.Disconnect()
	_, err = c.List(context.Background(), "users", nil, api.StartCursor)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestLocalRoundTrip(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	id, err := l.Create(ctx, "users", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	require.NoError(t, l.Update(ctx, "users", id, map[string]any{"age": 30.0}))

	doc, err := l.Read(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", doc.Val["name"])
	assert.Equal(t, json.Number("30"), doc.Val["age"])

	_, err = l.Create(ctx, "users", map[string]any{"name": "Bob"})
	require.NoError(t, err)
	_, err = l.Create(ctx, "users", map[string]any{"name": "Cid"})
	require.NoError(t, err)

	page, err := l.List(ctx, "users", nil, api.StartCursor)
	require.NoError(t, err)
	require.Len(t, page.Documents, 2, "page size comes from the adapter")

	require.NoError(t, l.Delete(ctx, "users", id))
	doc, err = l.Read(ctx, "users", id)
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestHTTPRequests(t *testing.T) {
	var gotList api.ListRequest
	var gotPatch map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotList)
		json.NewEncoder(w).Encode(api.Page{
			Documents: []api.Document{{Id: "a", Collection: "users", Val: map[string]any{"n": 1}}},
			Cursor:    "next",
		})
	})
	mux.HandleFunc("POST /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.CreateResponse{Id: "new-id"})
	})
	mux.HandleFunc("PATCH /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "users", r.URL.Query().Get("collection"))
		assert.Equal(t, "a/b", r.URL.Query().Get("id"))
		json.NewDecoder(r.Body).Decode(&gotPatch)
		json.NewEncoder(w).Encode(api.Document{Id: "a/b"})
	})
	mux.HandleFunc("GET /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"not found"}`)
	})
	mux.HandleFunc("DELETE /v1/documents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"permission-denied: Missing or insufficient permissions."}`)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHTTP(srv.URL+"/", 10)
	ctx := context.Background()

	filter := &api.Filter{Key: "age", Op: api.OpGreater, Value: 18.0}
	page, err := h.List(ctx, "users", filter, "prev")
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, api.Cursor("next"), page.Cursor)
	assert.Equal(t, json.Number("1"), page.Documents[0].Val["n"])
	assert.Equal(t, "users", gotList.Collection)
	assert.Equal(t, api.Cursor("prev"), gotList.Cursor)
	assert.Equal(t, 10, gotList.Limit)
	assert.Equal(t, api.OpGreater, gotList.Filter.Op)

	id, err := h.Create(ctx, "users", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)

	require.NoError(t, h.Update(ctx, "users", "a/b", map[string]any{"x": "y"}))
	assert.Equal(t, map[string]any{"x": "y"}, gotPatch)

	doc, err := h.Read(ctx, "users", "missing")
	require.NoError(t, err)
	require.Nil(t, doc)

	err = h.Delete(ctx, "users", "a")
	require.Error(t, err)
	var serr Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.Code)
	assert.Contains(t, err.Error(), "Missing or insufficient permissions")
}
