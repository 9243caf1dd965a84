package shell

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aep/docsql/dsql"
	"sigs.k8s.io/yaml"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrNothingToExport = errors.New("nothing to export, run a query first")

// Export writes the rows of res. CSV follows the result's columns, so
// fields outside of them are left out; JSON and YAML keep whole rows.
func Export(w io.Writer, res *dsql.Result, format Format) error {
	if res == nil || res.Type == dsql.ResultError {
		return ErrNothingToExport
	}

	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(res.Columns); err != nil {
			return err
		}
		for _, row := range res.Rows {
			rec := make([]string, len(res.Columns))
			for i, col := range res.Columns {
				rec[i] = dsql.FormatCell(row[col])
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case FormatJSON:
		rows := res.Rows
		if rows == nil {
			rows = []dsql.Row{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)

	case FormatYAML:
		b, err := yaml.Marshal(res.Rows)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	return fmt.Errorf("unknown export format %q, use csv, json or yaml", format)
}
