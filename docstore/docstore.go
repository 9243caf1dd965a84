// Package docstore keeps schemaless JSON documents, grouped in collections,
// on top of a kv backend.
package docstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/kv"
	"github.com/google/uuid"
	tikverr "github.com/tikv/client-go/v2/error"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("github.com/aep/docsql/docstore")

var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrInvalid          = errors.New("invalid argument")
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrPermissionDenied = errors.New("permission-denied: Missing or insufficient permissions.")
)

const (
	DefaultLimit = 25
	MaxLimit     = 200
)

type Options struct {
	// ReadOnly collections reject every write.
	ReadOnly []string
	// MaxLimit caps the page size of Find. Zero means MaxLimit.
	MaxLimit int
}

type Store struct {
	kv       kv.KV
	readOnly map[string]bool
	maxLimit int
}

func New(k kv.KV, opts Options) *Store {
	s := &Store{
		kv:       k,
		readOnly: make(map[string]bool),
		maxLimit: opts.MaxLimit,
	}
	if s.maxLimit <= 0 {
		s.maxLimit = MaxLimit
	}
	for _, c := range opts.ReadOnly {
		s.readOnly[c] = true
	}
	return s
}

func (s *Store) Ping() error {
	return s.kv.Ping()
}

func (s *Store) writable(collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if s.readOnly[collection] {
		return ErrPermissionDenied
	}
	return nil
}

// Get returns nil, nil when the document does not exist.
func (s *Store) Get(ctx context.Context, collection string, id string) (*api.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkId(id); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "docstore.Get")
	defer span.End()

	r := s.kv.Read()
	defer r.Close()

	b, err := r.Get(ctx, documentKey(collection, id))
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if b == nil {
		return nil, nil
	}

	doc := new(api.Document)
	if err := decodeDocument(b, doc); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return doc, nil
}

// Find scans a collection in id order and returns up to limit documents
// that match filter. The returned cursor points at the last document of the
// page and is empty when the page is empty.
func (s *Store) Find(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor, limit int) (*api.Page, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	ctx, span := tracer.Start(ctx, "docstore.Find", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	))
	defer span.End()

	start, end := collectionRange(collection)

	if cursor != api.StartCursor {
		after, err := base64.StdEncoding.DecodeString(string(cursor))
		if err != nil || bytes.Compare(after, start) < 0 || bytes.Compare(after, end) >= 0 {
			return nil, ErrInvalidCursor
		}
		start = append(after, 0x00)
	}

	r := s.kv.Read()
	defer r.Close()

	page := &api.Page{Documents: []api.Document{}}
	var lastKey []byte

	for item, err := range r.Iter(ctx, start, end) {
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}

		var doc api.Document
		if err := decodeDocument(item.V, &doc); err != nil {
			slog.Warn("[docstore].Find: skipping undecodable document", "key", string(item.K), "err", err)
			continue
		}
		if !matches(doc.Val, filter) {
			continue
		}

		page.Documents = append(page.Documents, doc)
		lastKey = bytes.Clone(item.K)
		if len(page.Documents) >= limit {
			break
		}
	}

	if lastKey != nil {
		page.Cursor = api.Cursor(base64.StdEncoding.EncodeToString(lastKey))
	}

	slog.Debug("[docstore].Find:", "collection", collection, "filter", filter, "found", len(page.Documents))
	return page, nil
}

// Create stores a new document. An empty id gets a generated uuid.
func (s *Store) Create(ctx context.Context, collection string, id string, val map[string]any) (*api.Document, error) {
	if err := s.writable(collection); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := checkId(id); err != nil {
		return nil, err
	}
	if val == nil {
		val = map[string]any{}
	}

	ctx, span := tracer.Start(ctx, "docstore.Create")
	defer span.End()

	doc := &api.Document{Id: id, Collection: collection, Version: 1, Val: val}
	err := s.retry(ctx, func() error {
		w := s.kv.Write()
		defer w.Close()

		key := documentKey(collection, id)
		old, err := w.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if old != nil {
			return fmt.Errorf("document %s/%s: %w", collection, id, ErrExists)
		}

		b, err := encodeDocument(doc)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		if err := w.Put(key, b); err != nil {
			return err
		}
		return w.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("[docstore].Create:", "collection", collection, "id", id)
	return doc, nil
}

// Put creates the document or replaces its whole value.
func (s *Store) Put(ctx context.Context, collection string, id string, val map[string]any) (*api.Document, error) {
	if err := s.writable(collection); err != nil {
		return nil, err
	}
	if err := checkId(id); err != nil {
		return nil, err
	}
	if val == nil {
		val = map[string]any{}
	}

	ctx, span := tracer.Start(ctx, "docstore.Put")
	defer span.End()

	doc := &api.Document{Id: id, Collection: collection, Val: val}
	err := s.retry(ctx, func() error {
		w := s.kv.Write()
		defer w.Close()

		key := documentKey(collection, id)
		b, err := w.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		doc.Version = 1
		if b != nil {
			var old api.Document
			if err := decodeDocument(b, &old); err != nil {
				return fmt.Errorf("unmarshal error: %w", err)
			}
			doc.Version = old.Version + 1
		}

		nb, err := encodeDocument(doc)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		if err := w.Put(key, nb); err != nil {
			return err
		}
		return w.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("[docstore].Put:", "collection", collection, "id", id, "version", doc.Version)
	return doc, nil
}

// Merge sets the given top level fields on an existing document and keeps
// all others.
func (s *Store) Merge(ctx context.Context, collection string, id string, fields map[string]any) (*api.Document, error) {
	if err := s.writable(collection); err != nil {
		return nil, err
	}
	if err := checkId(id); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "docstore.Merge")
	defer span.End()

	var doc *api.Document
	err := s.retry(ctx, func() error {
		w := s.kv.Write()
		defer w.Close()

		key := documentKey(collection, id)
		b, err := w.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if b == nil {
			return fmt.Errorf("document %s/%s: %w", collection, id, ErrNotFound)
		}

		doc = new(api.Document)
		if err := decodeDocument(b, doc); err != nil {
			return fmt.Errorf("unmarshal error: %w", err)
		}
		if doc.Val == nil {
			doc.Val = map[string]any{}
		}
		maps.Copy(doc.Val, fields)
		doc.Version++

		nb, err := encodeDocument(doc)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		if err := w.Put(key, nb); err != nil {
			return err
		}
		return w.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("[docstore].Merge:", "collection", collection, "id", id, "version", doc.Version)
	return doc, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection string, id string) error {
	if err := s.writable(collection); err != nil {
		return err
	}
	if err := checkId(id); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "docstore.Delete")
	defer span.End()

	return s.retry(ctx, func() error {
		w := s.kv.Write()
		defer w.Close()

		if err := w.Del(documentKey(collection, id)); err != nil {
			return err
		}
		slog.Debug("[docstore].Delete:", "collection", collection, "id", id)
		return w.Commit(ctx)
	})
}

// retry repeats fn while the backend reports a write conflict.
func (s *Store) retry(ctx context.Context, fn func() error) error {
	for i := 0; ; i++ {
		err := fn()
		if err == nil || !tikverr.IsErrWriteConflict(err) || i >= 20 {
			return err
		}

		slog.Warn("[docstore]: write conflict, retrying", "attempt", i, "err", err)

		wait := 10 * time.Millisecond
		if i > 10 {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
