// Package store is the boundary between the query pipeline and a document
// store. Everything above it only sees the Store interface.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/aep/docsql/api"
)

type Store interface {
	List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error)
	// Create returns the id the store assigned to the new document.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection string, id string, fields map[string]any) error
	Delete(ctx context.Context, collection string, id string) error
	// Read returns nil, nil when the document does not exist.
	Read(ctx context.Context, collection string, id string) (*api.Document, error)
}

var ErrNotConnected = errors.New("not connected to a document store")

// Conn is the session handle for a store. Calls fail with ErrNotConnected
// until Connect was called and after Disconnect.
type Conn struct {
	mu sync.RWMutex
	s  Store
}

var _ Store = (*Conn)(nil)

func NewConn(s Store) *Conn {
	return &Conn{s: s}
}

func (c *Conn) Connect(s Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = s
}

func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = nil
}

func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s != nil
}

func (c *Conn) store() (Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.s == nil {
		return nil, ErrNotConnected
	}
	return c.s, nil
}

func (c *Conn) List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	return s.List(ctx, collection, filter, cursor)
}

func (c *Conn) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	s, err := c.store()
	if err != nil {
		return "", err
	}
	return s.Create(ctx, collection, fields)
}

func (c *Conn) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	return s.Update(ctx, collection, id, fields)
}

func (c *Conn) Delete(ctx context.Context, collection string, id string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, id)
}

func (c *Conn) Read(ctx context.Context, collection string, id string) (*api.Document, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, collection, id)
}
