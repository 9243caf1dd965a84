package dsql

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"True", "True"},
		{"21", 21.0},
		{"-3.5", -3.5},
		{"+7", 7.0},
		{".5", 0.5},
		{"5.", 5.0},
		{"1e3", 1000.0},
		{"0x1F", 31.0},
		{"0b101", 5.0},
		{"0o17", 15.0},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"123abc", "123abc"},
		{"", ""},
		{"'abc'", "abc"},
		{`"abc"`, "abc"},
		{`'"x"'`, `"x"`},
		{`'abc"`, `'abc"`},
		{"'", "'"},
		{"'12'", "12"},
		{"John", "John"},
		{"-0x10", "-0x10"},
		{"1_000", "1_000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

func TestCoerceFormatRoundTrip(t *testing.T) {
	for _, tok := range []string{"true", "false", "21", "-3.5", "1e300", "0x1F", ".25", "Infinity", "-Infinity", "1e21", "123456789012345678"} {
		v := Coerce(tok)
		assert.Equal(t, v, Coerce(FormatLiteral(v)), tok)
	}
}

func TestFormatLiteralStrings(t *testing.T) {
	assert.Equal(t, "abc", FormatLiteral("abc"))
	assert.Equal(t, "'12'", FormatLiteral("12"))
	assert.Equal(t, "'true'", FormatLiteral("true"))
	assert.Equal(t, "12", Coerce(FormatLiteral("12")))
	assert.Equal(t, "null", FormatLiteral(nil))
}
