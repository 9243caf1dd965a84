package dsql

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aep/docsql/api"
)

type call struct {
	Op         string
	Collection string
	Id         string
	Fields     map[string]any
	Filter     *api.Filter
	Cursor     api.Cursor
}

// fakeStore records every call and answers from canned data.
type fakeStore struct {
	mu    sync.Mutex
	calls []call

	pages     map[api.Cursor]*api.Page
	nextID    string
	docs      map[string]*api.Document
	listErr   error
	createErr error
	updateErr error
	deleteErr error
	readErr   error
	panicOn   string
}

func (f *fakeStore) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.panicOn == c.Op {
		panic("boom")
	}
}

func (f *fakeStore) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeStore) List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error) {
	f.record(call{Op: "list", Collection: collection, Filter: filter, Cursor: cursor})
	if f.listErr != nil {
		return nil, f.listErr
	}
	if p, ok := f.pages[cursor]; ok {
		return p, nil
	}
	return &api.Page{}, nil
}

func (f *fakeStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	f.record(call{Op: "create", Collection: collection, Fields: fields})
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.nextID, nil
}

func (f *fakeStore) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	f.record(call{Op: "update", Collection: collection, Id: id, Fields: fields})
	return f.updateErr
}

func (f *fakeStore) Delete(ctx context.Context, collection string, id string) error {
	f.record(call{Op: "delete", Collection: collection, Id: id})
	return f.deleteErr
}

func (f *fakeStore) Read(ctx context.Context, collection string, id string) (*api.Document, error) {
	f.record(call{Op: "read", Collection: collection, Id: id})
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.docs[id], nil
}

var errDenied = errors.New("PERMISSION-DENIED: Missing or insufficient permissions.")

func docs(n int, offset int) []api.Document {
	var out []api.Document
	for i := 0; i < n; i++ {
		out = append(out, api.Document{
			Id:  fmt.Sprintf("d%d", offset+i),
			Val: map[string]any{"n": float64(offset + i)},
		})
	}
	return out
}
