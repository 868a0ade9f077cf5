package queryir

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchString applies op to value and pattern under opts.
//
// This is the only string-matching implementation in strata: Eval calls it
// directly and the SQLite backends register it as the strata_match SQL
// function, so both agree on every input.
//
// Both sides are NFC normalized first. An invalid MATCHES pattern returns
// false; use CompilePattern to surface the error.
func MatchString(op StringOp, opts StringOptions, value, pattern string) bool {
	value = norm.NFC.String(value)
	pattern = norm.NFC.String(pattern)

	if opts.Has(DiacriticInsensitive) {
		value = stripDiacritics(value)
		pattern = stripDiacritics(pattern)
	}

	if op == Matches {
		re, err := CompilePattern(pattern, opts)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}

	if opts.Has(CaseInsensitive) {
		value = foldCase(value)
		pattern = foldCase(pattern)
	}

	switch op {
	case Contains:
		return strings.Contains(value, pattern)
	case BeginsWith:
		return strings.HasPrefix(value, pattern)
	case EndsWith:
		return strings.HasSuffix(value, pattern)
	case Like:
		return likeRegexp(pattern).MatchString(value)
	default:
		return false
	}
}

// CompilePattern compiles a MATCHES pattern anchored to the whole string.
// Case-insensitive matching uses the (?i) flag instead of folding the
// pattern text, which would corrupt escapes such as \D.
func CompilePattern(pattern string, opts StringOptions) (*regexp.Regexp, error) {
	prefix := "(?s)"
	if opts.Has(CaseInsensitive) {
		prefix = "(?is)"
	}
	re, err := regexp.Compile(prefix + `^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// likeRegexp translates a LIKE pattern: '*' is any run, '?' is one rune,
// everything else is literal.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}

func foldCase(s string) string {
	return cases.Fold().String(s)
}

// stripDiacritics decomposes, drops nonspacing marks and recomposes.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
