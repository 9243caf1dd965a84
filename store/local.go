package store

import (
	"context"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/docstore"
)

// Local runs queries against a docstore in the same process.
type Local struct {
	db       *docstore.Store
	pageSize int
	close    func()
}

func NewLocal(db *docstore.Store, pageSize int) *Local {
	return &Local{db: db, pageSize: pageSize}
}

func (l *Local) List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error) {
	return l.db.Find(ctx, collection, filter, cursor, l.pageSize)
}

func (l *Local) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	doc, err := l.db.Create(ctx, collection, "", fields)
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (l *Local) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	_, err := l.db.Merge(ctx, collection, id, fields)
	return err
}

func (l *Local) Delete(ctx context.Context, collection string, id string) error {
	return l.db.Delete(ctx, collection, id)
}

func (l *Local) Read(ctx context.Context, collection string, id string) (*api.Document, error) {
	return l.db.Get(ctx, collection, id)
}

// Put creates or replaces a document with a caller chosen id.
func (l *Local) Put(ctx context.Context, doc api.Document) (string, error) {
	d, err := l.db.Put(ctx, doc.Collection, doc.Id, doc.Val)
	if err != nil {
		return "", err
	}
	return d.Id, nil
}

func (l *Local) Close() {
	if l.close != nil {
		l.close()
	}
}
