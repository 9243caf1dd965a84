package dsql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("github.com/aep/docsql/dsql")

type Executor struct {
	Store store.Store
}

func NewExecutor(s store.Store) *Executor {
	return &Executor{Store: s}
}

// Run parses and executes one statement. It never fails: every problem
// comes back as an error Result.
func (e *Executor) Run(ctx context.Context, statement string, cursor api.Cursor) *Result {
	cmd, err := Parse(statement)
	if err != nil {
		slog.Debug("[dsql].Run: parse failed", "statement", statement, "err", err)
		return ErrorResult(err.Error())
	}
	return e.Execute(ctx, cmd, cursor)
}

// Execute sends a parsed command to the store. The cursor is only used by
// SELECT.
func (e *Executor) Execute(ctx context.Context, cmd *Command, cursor api.Cursor) (res *Result) {
	ctx, span := tracer.Start(ctx, "dsql.Execute", trace.WithAttributes(
		attribute.String("kind", string(cmd.Kind)),
		attribute.String("collection", cmd.Collection),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[dsql].Execute: panic", "kind", cmd.Kind, "collection", cmd.Collection, "panic", r)
			res = ErrorResult(fmt.Sprintf("internal error: %v", r))
		}
		if res.Type == ResultError {
			span.SetStatus(codes.Error, res.Message)
		}
	}()

	switch cmd.Kind {
	case KindSelect:
		return e.read(ctx, cmd, cursor)
	case KindInsert:
		return e.insert(ctx, cmd)
	case KindUpdate:
		return e.update(ctx, cmd)
	case KindDelete:
		return e.delete(ctx, cmd)
	}
	return ErrorResult(fmt.Sprintf("unsupported command %q", cmd.Kind))
}

func (e *Executor) read(ctx context.Context, cmd *Command, cursor api.Cursor) *Result {
	page, err := e.Store.List(ctx, cmd.Collection, cmd.Filter, cursor)
	if err != nil {
		return ErrorResult(err.Error())
	}

	columns, rows := readRows(page.Documents)
	res := &Result{
		Type:       ResultRead,
		Columns:    columns,
		Rows:       rows,
		Message:    fmt.Sprintf("Fetched %d documents from '%s'", len(rows), cmd.Collection),
		Collection: cmd.Collection,
	}
	if len(rows) > 0 {
		res.PageCursor = page.Cursor
	}
	return res
}

func (e *Executor) insert(ctx context.Context, cmd *Command) *Result {
	id, err := e.Store.Create(ctx, cmd.Collection, cmd.Payload)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return writeResult(cmd.Collection, id, "Created",
		fmt.Sprintf("Document created in '%s' with ID: %s", cmd.Collection, id))
}

func (e *Executor) update(ctx context.Context, cmd *Command) *Result {
	if err := e.Store.Update(ctx, cmd.Collection, cmd.TargetID, cmd.Payload); err != nil {
		return ErrorResult(err.Error())
	}

	res := writeResult(cmd.Collection, cmd.TargetID, "Updated",
		fmt.Sprintf("Document '%s' updated in '%s'", cmd.TargetID, cmd.Collection))

	doc, err := e.Store.Read(ctx, cmd.Collection, cmd.TargetID)
	if err != nil {
		slog.Warn("[dsql].Execute: reading back updated document failed", "collection", cmd.Collection, "id", cmd.TargetID, "err", err)
	} else {
		res.Document = doc
	}
	return res
}

func (e *Executor) delete(ctx context.Context, cmd *Command) *Result {
	if err := e.Store.Delete(ctx, cmd.Collection, cmd.TargetID); err != nil {
		return ErrorResult(err.Error())
	}
	return writeResult(cmd.Collection, cmd.TargetID, "Deleted",
		fmt.Sprintf("Document '%s' deleted from '%s'", cmd.TargetID, cmd.Collection))
}
