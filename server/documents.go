package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/docstore"
	"github.com/aep/docsql/events"
	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

func cacheKey(collection string, id string) string {
	return collection + "\xff" + id
}

// httpError maps docstore errors to status codes. The message of
// permission errors is passed through unchanged since clients match on it.
func httpError(err error) error {
	switch {
	case errors.Is(err, docstore.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, docstore.ErrPermissionDenied.Error())
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, docstore.ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, docstore.ErrInvalid), errors.Is(err, docstore.ErrInvalidCursor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slog.Error("[server]:", "err", err)
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func observe(operation string, start time.Time, err error) {
	docstoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "internal"
		switch {
		case errors.Is(err, docstore.ErrPermissionDenied):
			kind = "permission"
		case errors.Is(err, docstore.ErrNotFound):
			kind = "not_found"
		case errors.Is(err, docstore.ErrExists):
			kind = "exists"
		case errors.Is(err, docstore.ErrInvalid), errors.Is(err, docstore.ErrInvalidCursor):
			kind = "invalid"
		}
		docstoreFailures.WithLabelValues(operation, kind).Inc()
	}
}

// invalidate drops a cached document after a write and moves the epoch, so
// reads that started before the write do not cache what they saw.
func (s *server) invalidate(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheEpoch++
	s.cache.Delete(key)
}

func (s *server) readEpoch() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cacheEpoch
}

// remember caches doc unless a write was invalidated since epoch.
func (s *server) remember(key string, epoch uint64, doc api.Document) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.cacheEpoch != epoch {
		return
	}
	s.cache.Set(key, doc)
}

func (s *server) publish(kind events.Kind, doc *api.Document) {
	s.invalidate(cacheKey(doc.Collection, doc.Id))

	if s.bus == nil {
		return
	}
	err := s.bus.Publish(events.Event{
		Kind:       kind,
		Collection: doc.Collection,
		Id:         doc.Id,
		Version:    doc.Version,
	})
	if err != nil {
		slog.Warn("[server].publish:", "collection", doc.Collection, "id", doc.Id, "err", err)
	}
}

// documentParams reads the collection and id query parameters.
func documentParams(c echo.Context) (string, string, error) {
	var collection, id string
	err := runtime.BindQueryParameter("form", true, true, "collection", c.QueryParams(), &collection)
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err = runtime.BindQueryParameter("form", true, true, "id", c.QueryParams(), &id)
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return collection, id, nil
}

func (s *server) ListDocuments(c echo.Context) error {
	var req api.ListRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if req.Filter != nil {
		op, err := api.ParseOp(string(req.Filter.Op))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Filter.Op = op
	}

	start := time.Now()
	page, err := s.db.Find(c.Request().Context(), req.Collection, req.Filter, req.Cursor, req.Limit)
	observe("list", start, err)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, page)
}

func (s *server) CreateDocument(c echo.Context) error {
	var req api.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	start := time.Now()
	doc, err := s.db.Create(c.Request().Context(), req.Collection, req.Id, req.Val)
	observe("create", start, err)
	if err != nil {
		return httpError(err)
	}

	s.publish(events.Created, doc)
	return c.JSON(http.StatusCreated, api.CreateResponse{Id: doc.Id})
}

func (s *server) PutDocument(c echo.Context) error {
	var req api.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	start := time.Now()
	doc, err := s.db.Put(c.Request().Context(), req.Collection, req.Id, req.Val)
	observe("put", start, err)
	if err != nil {
		return httpError(err)
	}

	kind := events.Updated
	if doc.Version == 1 {
		kind = events.Created
	}
	s.publish(kind, doc)
	return c.JSON(http.StatusOK, api.CreateResponse{Id: doc.Id})
}

func (s *server) GetDocument(c echo.Context) error {
	collection, id, err := documentParams(c)
	if err != nil {
		return err
	}

	key := cacheKey(collection, id)
	if doc, ok := s.cache.Get(key); ok {
		return c.JSON(http.StatusOK, doc)
	}

	epoch := s.readEpoch()
	start := time.Now()
	doc, err := s.db.Get(c.Request().Context(), collection, id)
	observe("get", start, err)
	if err != nil {
		return httpError(err)
	}
	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}

	s.remember(key, epoch, *doc)
	return c.JSON(http.StatusOK, doc)
}

func (s *server) PatchDocument(c echo.Context) error {
	collection, id, err := documentParams(c)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	start := time.Now()
	doc, err := s.db.Merge(c.Request().Context(), collection, id, fields)
	observe("merge", start, err)
	if err != nil {
		return httpError(err)
	}

	s.publish(events.Updated, doc)
	return c.JSON(http.StatusOK, doc)
}

func (s *server) DeleteDocument(c echo.Context) error {
	collection, id, err := documentParams(c)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.db.Delete(c.Request().Context(), collection, id)
	observe("delete", start, err)
	if err != nil {
		return httpError(err)
	}

	s.publish(events.Deleted, &api.Document{Collection: collection, Id: id})
	return c.NoContent(http.StatusNoContent)
}
