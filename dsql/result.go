package dsql

import (
	"sort"
	"strings"

	"github.com/aep/docsql/api"
)

type ResultType string

const (
	ResultRead  ResultType = "read"
	ResultWrite ResultType = "write"
	ResultError ResultType = "error"
)

type Row map[string]any

// Result is what one statement produced. Reads carry one row per document,
// writes a single status row and errors only a message.
type Result struct {
	Type       ResultType
	Columns    []string
	Rows       []Row
	Message    string
	Collection string
	// PageCursor points at the last row of a read. Empty when there are no
	// rows.
	PageCursor api.Cursor
	// PermissionDenied is set on errors that look like an access problem.
	PermissionDenied bool
	// Document is the state after an UPDATE, when it could be read back.
	Document *api.Document
}

// ErrorResult wraps a failure message, flagging access problems.
func ErrorResult(msg string) *Result {
	return &Result{
		Type:             ResultError,
		Message:          msg,
		PermissionDenied: IsPermissionDenied(msg),
	}
}

func writeResult(collection string, id string, status string, msg string) *Result {
	return &Result{
		Type:       ResultWrite,
		Columns:    []string{"id", "status"},
		Rows:       []Row{{"id": id, "status": status}},
		Message:    msg,
		Collection: collection,
	}
}

var permissionPhrases = []string{
	"permission-denied",
	"missing or insufficient permissions",
}

func IsPermissionDenied(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range permissionPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// readRows flattens documents into rows. The id column comes first, the
// other columns follow in order of first appearance.
func readRows(docs []api.Document) ([]string, []Row) {
	columns := []string{"id"}
	seen := map[string]bool{"id": true}
	rows := make([]Row, 0, len(docs))

	for _, doc := range docs {
		keys := make([]string, 0, len(doc.Val))
		for k := range doc.Val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(Row, len(doc.Val)+1)
		for _, k := range keys {
			row[k] = doc.Val[k]
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		row["id"] = doc.Id
		rows = append(rows, row)
	}
	return columns, rows
}
