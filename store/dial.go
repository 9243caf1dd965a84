package store

import (
	"context"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/docstore"
	"github.com/aep/docsql/kv"
)

// LocalEndpoint opens the kv backend in process instead of talking to a
// server.
const LocalEndpoint = "local"

// Client is a Store owned by the caller, with whole-document writes.
type Client interface {
	Store
	Put(ctx context.Context, doc api.Document) (string, error)
	Close()
}

// Dial connects to a docsql server at endpoint, or opens kvOpts in process
// when endpoint is LocalEndpoint.
func Dial(endpoint string, kvOpts kv.Options, pageSize int) (Client, error) {
	if endpoint != LocalEndpoint {
		return NewHTTP(endpoint, pageSize), nil
	}

	k, err := kv.Open(kvOpts)
	if err != nil {
		return nil, err
	}
	l := NewLocal(docstore.New(k, docstore.Options{}), pageSize)
	l.close = k.Close
	return l, nil
}
