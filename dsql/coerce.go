package dsql

import (
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	radixPattern   = regexp.MustCompile(`^0([xX][0-9a-fA-F]+|[oO][0-7]+|[bB][01]+)$`)
)

// Coerce turns a literal token from a statement into a typed value:
// true/false become bool, anything numeric becomes float64, one layer of
// matching quotes is stripped and everything else stays a string.
func Coerce(token string) any {
	switch token {
	case "true":
		return true
	case "false":
		return false
	}
	if n, ok := parseNumber(token); ok {
		return n
	}
	return stripQuotes(token)
}

// parseNumber accepts what a javascript Number() conversion accepts, except
// that blank input is not a number.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}

	if decimalPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			var ne *strconv.NumError
			if errors.As(err, &ne) && ne.Err == strconv.ErrRange {
				return f, true
			}
			return 0, false
		}
		return f, true
	}

	if radixPattern.MatchString(s) {
		base := 16
		switch s[1] {
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		i, ok := new(big.Int).SetString(s[2:], base)
		if !ok {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(i).Float64()
		return f, true
	}

	return 0, false
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		q := s[0]
		if (q == '\'' || q == '"') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// FormatLiteral renders a value so that Coerce gives it back.
func FormatLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case float64:
		switch {
		case math.IsInf(t, 1):
			return "Infinity"
		case math.IsInf(t, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		if c, ok := Coerce(t).(string); ok && c == t {
			return t
		}
		return "'" + t + "'"
	}
	return FormatCell(v)
}
