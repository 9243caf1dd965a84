package dsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EditMode string

const (
	EditString  EditMode = "string"
	EditNumber  EditMode = "number"
	EditBoolean EditMode = "boolean"
	EditJSON    EditMode = "json"
	EditNull    EditMode = "null"
)

func ParseEditMode(s string) (EditMode, error) {
	switch m := EditMode(strings.ToLower(s)); m {
	case EditString, EditNumber, EditBoolean, EditJSON, EditNull:
		return m, nil
	}
	return "", fmt.Errorf("unknown edit mode %q", s)
}

// ModeOf picks the edit mode matching a cell's current value.
func ModeOf(v any) EditMode {
	switch v.(type) {
	case nil:
		return EditNull
	case bool:
		return EditBoolean
	case float64, float32, int, int64, json.Number:
		return EditNumber
	case string:
		return EditString
	}
	return EditJSON
}

// ParseCellValue converts what the user typed into a cell. In number mode
// an empty input means 0.
func ParseCellValue(mode EditMode, raw string) (any, error) {
	switch mode {
	case EditString:
		return raw, nil
	case EditNumber:
		if strings.TrimSpace(raw) == "" {
			return 0.0, nil
		}
		n, ok := parseNumber(raw)
		if !ok {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return n, nil
	case EditBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", raw)
	case EditJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return v, nil
	case EditNull:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown edit mode %q", mode)
}

// FormatCell renders a cell for display and as the starting text of an
// edit.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, float64:
		return FormatLiteral(t)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

type SaveFunc func(ctx context.Context, id string, field string, value any) error

// CellEditor holds one cell edit in progress. Save only closes the edit
// once the typed text parsed.
type CellEditor struct {
	save SaveFunc

	ID    string
	Field string
	Mode  EditMode
	Raw   string

	editing bool
}

func NewCellEditor(save SaveFunc) *CellEditor {
	return &CellEditor{save: save}
}

func (e *CellEditor) Begin(res *Result, id string, field string) error {
	if err := checkReadResult(res); err != nil {
		return err
	}
	row := findRow(res, id)
	if row == nil {
		return fmt.Errorf("%s: %w", id, ErrRowNotFound)
	}

	e.ID = id
	e.Field = field
	e.Mode = EditString
	e.Raw = ""
	if v, ok := row[field]; ok {
		e.Mode = ModeOf(v)
		e.Raw = FormatCell(v)
	}
	e.editing = true
	return nil
}

func (e *CellEditor) Editing() bool {
	return e.editing
}

func (e *CellEditor) SetMode(m EditMode) {
	e.Mode = m
}

func (e *CellEditor) SetRaw(raw string) {
	e.Raw = raw
}

func (e *CellEditor) Save(ctx context.Context) error {
	if !e.editing {
		return errors.New("no edit in progress")
	}
	v, err := ParseCellValue(e.Mode, e.Raw)
	if err != nil {
		return err
	}
	e.editing = false
	return e.save(ctx, e.ID, e.Field, v)
}

func (e *CellEditor) Cancel() {
	e.editing = false
}
