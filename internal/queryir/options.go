package queryir

import (
	"fmt"
	"strings"
)

// StringOp is a string-matching operator.
type StringOp string

const (
	// Like matches the whole string; '*' matches any run of characters and
	// '?' matches exactly one.
	Like StringOp = "LIKE"
	// Contains matches a substring.
	Contains StringOp = "CONTAINS"
	// BeginsWith matches a prefix.
	BeginsWith StringOp = "BEGINSWITH"
	// EndsWith matches a suffix.
	EndsWith StringOp = "ENDSWITH"
	// Matches matches the whole string against a regular expression.
	Matches StringOp = "MATCHES"
)

// StringOps lists every operator in rendering order.
var StringOps = []StringOp{Like, Contains, BeginsWith, EndsWith, Matches}

// Valid reports whether op is a known operator.
func (op StringOp) Valid() bool {
	switch op {
	case Like, Contains, BeginsWith, EndsWith, Matches:
		return true
	}
	return false
}

// ParseStringOp parses an operator name, case-insensitively.
func ParseStringOp(s string) (StringOp, error) {
	for _, op := range StringOps {
		if strings.EqualFold(string(op), s) {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown string operator %q", s)
}

// StringOptions is a bit set of folding options for string operators.
type StringOptions uint8

const (
	// CaseInsensitive folds case before comparing.
	CaseInsensitive StringOptions = 1 << iota
	// DiacriticInsensitive strips combining marks before comparing.
	DiacriticInsensitive
)

// Combine merges option sets.
func Combine(opts ...StringOptions) StringOptions {
	var out StringOptions
	for _, o := range opts {
		out |= o
	}
	return out
}

// Has reports whether every bit of o is set.
func (s StringOptions) Has(o StringOptions) bool {
	return s&o == o
}

// String renders the modifier tag appended to an operator:
// "", "[c]", "[d]" or "[cd]".
func (s StringOptions) String() string {
	var tag []byte
	if s.Has(CaseInsensitive) {
		tag = append(tag, 'c')
	}
	if s.Has(DiacriticInsensitive) {
		tag = append(tag, 'd')
	}
	if len(tag) == 0 {
		return ""
	}
	return "[" + string(tag) + "]"
}

// ParseStringOptions parses a modifier tag such as "[cd]". The empty string
// yields no options.
func ParseStringOptions(tag string) (StringOptions, error) {
	if tag == "" {
		return 0, nil
	}
	if len(tag) < 3 || tag[0] != '[' || tag[len(tag)-1] != ']' {
		return 0, fmt.Errorf("invalid option tag %q", tag)
	}
	var out StringOptions
	for _, c := range tag[1 : len(tag)-1] {
		switch c {
		case 'c':
			out |= CaseInsensitive
		case 'd':
			out |= DiacriticInsensitive
		default:
			return 0, fmt.Errorf("invalid option %q in tag %q", c, tag)
		}
	}
	return out, nil
}
