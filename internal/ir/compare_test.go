package ir

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want int
	}{
		{"null equals null", IRNull{}, IRNull{}, 0},
		{"nil equals null", nil, IRNull{}, 0},
		{"null before int", IRNull{}, IRInt(-5), -1},
		{"int before string", IRInt(100), IRString(""), -1},
		{"string after bool", IRString("a"), IRBool(true), 1},
		{"ints ordered", IRInt(2), IRInt(10), -1},
		{"bool as int", IRBool(true), IRInt(1), 0},
		{"false before true", IRBool(false), IRBool(true), -1},
		{"binary collation uppercase first", IRString("Z"), IRString("a"), -1},
		{"prefix sorts first", IRString("ab"), IRString("abc"), -1},
		{"equal strings", IRString("x"), IRString("x"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestCompareSortsMixedValues(t *testing.T) {
	values := []IRValue{IRString("b"), IRInt(3), IRNull{}, IRString("B"), IRInt(-1)}
	slices.SortStableFunc(values, Compare)

	assert.Equal(t, []IRValue{IRNull{}, IRInt(-1), IRInt(3), IRString("B"), IRString("b")}, values)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IRString("a"), IRString("a")))
	assert.False(t, Equal(IRString("a"), IRNull{}))
	assert.True(t, Equal(nil, IRNull{}))
	assert.False(t, Equal(IRInt(1), IRString("1")))
}
