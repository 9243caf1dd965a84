package docstore

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/aep/docsql/api"
)

// lookup resolves a dotted field path inside a document value.
func lookup(val map[string]any, path string) (any, bool) {
	var cur any = val
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matches(val map[string]any, f *api.Filter) bool {
	if f == nil {
		return true
	}
	v, ok := lookup(val, f.Key)
	if !ok {
		return false
	}

	switch f.Op {
	case api.OpEqual:
		return equal(v, f.Value)
	case api.OpNotEqual:
		return !equal(v, f.Value)
	case api.OpArrayContains:
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		for _, el := range arr {
			if equal(el, f.Value) {
				return true
			}
		}
		return false
	}

	c, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case api.OpGreater:
		return c > 0
	case api.OpLess:
		return c < 0
	case api.OpGreaterEqual:
		return c >= 0
	case api.OpLessEqual:
		return c <= 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalize turns every number into float64 so values decoded with
// UseNumber compare equal to values built in Go.
func normalize(v any) any {
	if n, ok := toNumber(v); ok {
		return n
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func equal(a any, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// compare orders numbers against numbers, strings against strings and
// booleans against booleans. Anything else is not comparable.
func compare(a any, b any) (int, bool) {
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case bb:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}
