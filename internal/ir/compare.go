package ir

import "strings"

// Storage class ranks, mirroring SQLite's cross-type ordering:
// NULL < INTEGER < TEXT. Booleans are stored as 0/1 integers.
const (
	rankNull = iota
	rankNumeric
	rankText
	rankOther
)

func rank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return rankNull
	case IRInt, IRBool:
		return rankNumeric
	case IRString:
		return rankText
	default:
		return rankOther
	}
}

func numeric(v IRValue) int64 {
	switch val := v.(type) {
	case IRInt:
		return int64(val)
	case IRBool:
		if val {
			return 1
		}
	}
	return 0
}

// Compare orders two scalar values the way SQLite orders json_extract results
// under BINARY collation. It returns -1, 0 or 1.
//
// Arrays and objects sort after all scalars and compare by canonical encoding.
func Compare(a, b IRValue) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull:
		return 0
	case rankNumeric:
		na, nb := numeric(a), numeric(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case rankText:
		return strings.Compare(string(a.(IRString)), string(b.(IRString)))
	default:
		ca, _ := MarshalCanonical(a)
		cb, _ := MarshalCanonical(b)
		return strings.Compare(string(ca), string(cb))
	}
}

// Equal reports whether two values compare equal. Null equals only null.
func Equal(a, b IRValue) bool {
	return Compare(a, b) == 0
}
