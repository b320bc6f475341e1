// Package version parses and orders artifact versions and version constraints.
//
// Versions that are valid semantic versions (including Maven's common
// "1.0" and "31.0-jre" forms) are handled by github.com/Masterminds/semver/v3.
// Anything else, such as "2.0.0.RELEASE", falls back to a token-wise
// comparison where numeric runs compare numerically and other runs
// lexically.
//
// Constraints accept two syntaxes:
//   - Maven ranges: "[1.0,2.0)", "[1.5,)", "(,1.0]", "[1.2]" and unions
//     such as "[1,2),[3,4)".
//   - semver constraints: "^1.2", ">=1.0 <2.0", "~1.4".
//
// A bare version ("1.0") is a soft requirement: it names a preferred version
// but is not a range.
package version

import (
	"strconv"
	"strings"
	"unicode"

	mm "github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depot/pkg/errors"
)

// Version is a parsed artifact version. The zero value is invalid.
type Version struct {
	raw string
	sv  *mm.Version
}

// Parse parses raw. Only the empty string is rejected; versions that are not
// semver use the token-wise fallback ordering.
func Parse(raw string) (Version, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Version{}, errors.New(errors.ErrCodeInvalidVersion, "version cannot be empty")
	}
	v := Version{raw: raw}
	if sv, err := mm.NewVersion(raw); err == nil {
		v.sv = sv
	}
	return v, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version exactly as it was parsed.
func (v Version) String() string { return v.raw }

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool { return v.raw == "" }

// Compare returns -1, 0 or 1. The zero Version sorts first.
func (v Version) Compare(o Version) int {
	switch {
	case v.IsZero() && o.IsZero():
		return 0
	case v.IsZero():
		return -1
	case o.IsZero():
		return 1
	}
	if v.sv != nil && o.sv != nil {
		return v.sv.Compare(o.sv)
	}
	return compareTokens(tokenize(v.raw), tokenize(o.raw))
}

// Equal reports whether both versions order the same.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Max returns the greatest of vs, or the zero Version when vs is empty.
func Max(vs []Version) Version {
	var best Version
	for _, v := range vs {
		if v.Compare(best) > 0 {
			best = v
		}
	}
	return best
}

type token struct {
	num   int
	str   string
	isNum bool
}

func tokenize(s string) []token {
	var toks []token
	var cur strings.Builder
	numeric := false
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		t := token{str: strings.ToLower(cur.String()), isNum: numeric}
		if numeric {
			t.num, _ = strconv.Atoi(cur.String())
		}
		toks = append(toks, t)
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '.' || r == '-' || r == '_' || r == '+':
			flush()
		case unicode.IsDigit(r):
			if !numeric {
				flush()
			}
			numeric = true
			cur.WriteRune(r)
		default:
			if numeric {
				flush()
			}
			numeric = false
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func compareTokens(a, b []token) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var c int
		switch {
		case i >= len(a):
			c = -compareMissing(b[i])
		case i >= len(b):
			c = compareMissing(a[i])
		default:
			c = compareToken(a[i], b[i])
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareToken(x, y token) int {
	switch {
	case x.isNum && y.isNum:
		return sign(x.num - y.num)
	case x.isNum:
		return 1 // 1.0.1 > 1.0.beta
	case y.isNum:
		return -1
	}
	return strings.Compare(x.str, y.str)
}

// compareMissing orders t against an absent token: trailing zeros are
// neutral, trailing numbers are newer, trailing qualifiers are older
// (1.0-beta < 1.0).
func compareMissing(t token) int {
	if t.isNum {
		return sign(t.num)
	}
	return -1
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
