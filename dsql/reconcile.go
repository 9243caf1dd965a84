package dsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/aep/docsql/history"
	"github.com/aep/docsql/store"
)

var (
	ErrNotReadResult = errors.New("current result is not a query result")
	ErrRowNotFound   = errors.New("row not found")
)

// Reconciler applies edits to a held read Result first and writes them to
// the store afterwards. A failed write is reported but the Result keeps the
// edit until the next query replaces it.
type Reconciler struct {
	Store   store.Store
	History *history.Log
}

func (r *Reconciler) record(statement string, err error) {
	if r.History != nil {
		r.History.Record(statement, err == nil)
	}
}

func findRow(res *Result, id string) Row {
	for _, row := range res.Rows {
		if rid, ok := row["id"].(string); ok && rid == id {
			return row
		}
	}
	return nil
}

func checkReadResult(res *Result) error {
	if res == nil || res.Type != ResultRead || res.Collection == "" {
		return ErrNotReadResult
	}
	return nil
}

// EditCell sets field on the row with the given document id and then
// updates the document.
func (r *Reconciler) EditCell(ctx context.Context, res *Result, id string, field string, value any) error {
	if err := r.StageEdit(res, id, field, value); err != nil {
		return err
	}
	return r.WriteEdit(ctx, res.Collection, id, field, value)
}

// StageEdit applies the edit to the held rows only.
func (r *Reconciler) StageEdit(res *Result, id string, field string, value any) error {
	if err := checkReadResult(res); err != nil {
		return err
	}
	row := findRow(res, id)
	if row == nil {
		return fmt.Errorf("%s: %w", id, ErrRowNotFound)
	}
	row[field] = value
	return nil
}

// WriteEdit sends a staged edit to the store and records it.
func (r *Reconciler) WriteEdit(ctx context.Context, collection string, id string, field string, value any) error {
	fields := map[string]any{field: value}
	err := r.Store.Update(ctx, collection, id, fields)
	r.record(fmt.Sprintf("UPDATE %s SET JSON %s WHERE id = '%s'", collection, toJSON(fields), id), err)
	if err != nil {
		slog.Error("[dsql].WriteEdit: update failed, table keeps the edit", "collection", collection, "id", id, "field", field, "err", err)
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// InsertRow creates a document and puts it on top of the held rows. The
// column set is left alone.
func (r *Reconciler) InsertRow(ctx context.Context, res *Result, fields map[string]any) (string, error) {
	if err := checkReadResult(res); err != nil {
		return "", err
	}
	id, err := r.CreateRow(ctx, res.Collection, fields)
	if err != nil {
		return "", err
	}
	PrependRow(res, id, fields)
	return id, nil
}

// CreateRow writes a new document and records it.
func (r *Reconciler) CreateRow(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id, err := r.Store.Create(ctx, collection, fields)
	r.record(fmt.Sprintf("INSERT INTO %s JSON %s", collection, toJSON(fields)), err)
	if err != nil {
		slog.Error("[dsql].CreateRow: create failed", "collection", collection, "err", err)
		return "", fmt.Errorf("create in %s: %w", collection, err)
	}
	return id, nil
}

func PrependRow(res *Result, id string, fields map[string]any) {
	row := make(Row, len(fields)+1)
	maps.Copy(row, fields)
	row["id"] = id
	res.Rows = append([]Row{row}, res.Rows...)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
