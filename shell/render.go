package shell

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/aep/docsql/api"
	"github.com/aep/docsql/dsql"
	"github.com/aep/docsql/history"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const PermissionHint = "Hint: the store refused this request. The collection may be read-only " +
	"on the server (see its --read-only flag), or the endpoint you are connected to " +
	"does not allow writes for you. Use .connect to switch endpoints."

var (
	colorError = lipgloss.Color("#EF4444")
	colorMuted = lipgloss.Color("#6B7280")
	colorOK    = lipgloss.Color("#10B981")

	errorStyle  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(colorOK)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// Render prints a result as a table followed by its message.
func Render(w io.Writer, res *dsql.Result, page int) {
	if res == nil {
		return
	}

	if res.Type == dsql.ResultError {
		fmt.Fprintln(w, errorStyle.Render("Error: "+res.Message))
		if res.PermissionDenied {
			fmt.Fprintln(w, hintStyle.Render(PermissionHint))
		}
		return
	}

	t := newTable(res.Columns...)
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			cells[i] = dsql.FormatCell(row[col])
		}
		t.Row(cells...)
	}
	fmt.Fprintln(w, t.String())

	if res.Document != nil {
		renderDocument(w, res.Document)
	}

	msg := res.Message
	if res.Type == dsql.ResultRead {
		msg += " (page " + strconv.Itoa(page) + ")"
	}
	fmt.Fprintln(w, statusStyle.Render(msg))
}

// renderDocument prints a document as field/value pairs, fields sorted.
func renderDocument(w io.Writer, doc *api.Document) {
	t := newTable("field", "value")
	t.Row("id", doc.Id)
	if doc.Version > 0 {
		t.Row("version", strconv.FormatUint(doc.Version, 10))
	}
	for _, k := range slices.Sorted(maps.Keys(doc.Val)) {
		t.Row(k, dsql.FormatCell(doc.Val[k]))
	}
	fmt.Fprintln(w, t.String())
}

func renderHistory(w io.Writer, items []history.Item) {
	t := newTable("#", "time", "status", "query")
	for i, item := range items {
		t.Row(
			strconv.Itoa(i+1),
			item.Timestamp.Format("2006-01-02 15:04:05"),
			string(item.Status),
			item.Query,
		)
	}
	fmt.Fprintln(w, t.String())
}
