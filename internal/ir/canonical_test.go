package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
		{"go map", map[string]any{"b": "x", "a": int64(1)}, `{"a":1,"b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra": IRInt(1),
		"alpha": IRInt(2),
		"beta":  IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as surrogate 0xD800 in UTF-16, which sorts before 0xE000.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<a href='x'>&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href='x'>&</a>"`, string(result))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"unicode", "café", `"café"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	decomposed := IRString("cafe\u0301")
	composed := IRString("caf\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	require.Error(t, err)

	_, err = MarshalCanonical(IRObject{"a": IRNull{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "a"`)
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	obj := IRObject{
		"name":   IRString("Ann"),
		"age":    IRInt(30),
		"active": IRBool(true),
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	decoded, err := UnmarshalIRValue(first)
	require.NoError(t, err)

	second, err := MarshalCanonical(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
