package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Op is a comparison operator in a single-condition filter.
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpGreater       Op = ">"
	OpLess          Op = "<"
	OpGreaterEqual  Op = ">="
	OpLessEqual     Op = "<="
	OpArrayContains Op = "array-contains"
)

// ParseOp maps the operator text of a WHERE clause to an Op.
// Both "=" and "==" are equality.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "=", "==":
		return OpEqual, nil
	case "!=":
		return OpNotEqual, nil
	case ">":
		return OpGreater, nil
	case "<":
		return OpLess, nil
	case ">=":
		return OpGreaterEqual, nil
	case "<=":
		return OpLessEqual, nil
	case "array-contains":
		return OpArrayContains, nil
	}
	return "", fmt.Errorf("unsupported operator %q", s)
}

type Filter struct {
	Key   string `json:"k"`
	Op    Op     `json:"op"`
	Value any    `json:"v"`
}

// filterWire carries infinite numbers, which JSON cannot, in "inf" as
// "Infinity" or "-Infinity" instead of in "v".
type filterWire struct {
	Key   string          `json:"k"`
	Op    Op              `json:"op"`
	Value json.RawMessage `json:"v,omitempty"`
	Inf   string          `json:"inf,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	w := filterWire{Key: f.Key, Op: f.Op}
	if n, ok := f.Value.(float64); ok && math.IsInf(n, 0) {
		w.Inf = "Infinity"
		if n < 0 {
			w.Inf = "-Infinity"
		}
		return json.Marshal(w)
	}
	v, err := json.Marshal(f.Value)
	if err != nil {
		return nil, err
	}
	w.Value = v
	return json.Marshal(w)
}

// UnmarshalJSON decodes the value with UseNumber, like request bodies.
func (f *Filter) UnmarshalJSON(b []byte) error {
	var w filterWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f.Key = w.Key
	f.Op = w.Op
	f.Value = nil

	switch w.Inf {
	case "":
	case "Infinity":
		f.Value = math.Inf(1)
		return nil
	case "-Infinity":
		f.Value = math.Inf(-1)
		return nil
	default:
		return fmt.Errorf("invalid filter inf %q", w.Inf)
	}

	if len(w.Value) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(w.Value))
	dec.UseNumber()
	return dec.Decode(&f.Value)
}

// Cursor is an opaque pagination token issued by a store. The empty cursor
// means "start of collection" when passed in and "no cursor" when returned.
type Cursor string

const StartCursor Cursor = ""

type Document struct {
	Id         string         `json:"id"`
	Collection string         `json:"collection"`
	Version    uint64         `json:"version,omitempty" yaml:"version,omitempty"`
	Val        map[string]any `json:"val,omitempty"`
}

type Page struct {
	Documents []Document `json:"documents"`
	Cursor    Cursor     `json:"cursor,omitempty"`
}

type ListRequest struct {
	Collection string  `json:"collection"`
	Filter     *Filter `json:"filter,omitempty"`
	Cursor     Cursor  `json:"cursor,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

type CreateRequest struct {
	Collection string         `json:"collection"`
	Id         string         `json:"id,omitempty"`
	Val        map[string]any `json:"val"`
}

type CreateResponse struct {
	Id string `json:"id"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
