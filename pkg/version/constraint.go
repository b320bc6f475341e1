package version

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depot/pkg/errors"
)

// Range is one Maven-style interval. A nil bound is unbounded.
type Range struct {
	Lower          *Version
	LowerInclusive bool
	Upper          *Version
	UpperInclusive bool
}

// Contains reports whether v lies within the interval.
func (r Range) Contains(v Version) bool {
	if r.Lower != nil {
		c := v.Compare(*r.Lower)
		if c < 0 || (c == 0 && !r.LowerInclusive) {
			return false
		}
	}
	if r.Upper != nil {
		c := v.Compare(*r.Upper)
		if c > 0 || (c == 0 && !r.UpperInclusive) {
			return false
		}
	}
	return true
}

func (r Range) String() string {
	var b strings.Builder
	b.WriteByte("(["[boolIndex(r.LowerInclusive)])
	if r.Lower != nil && r.Upper != nil && r.Lower.Equal(*r.Upper) && r.LowerInclusive && r.UpperInclusive {
		b.WriteString(r.Lower.String())
		b.WriteByte(']')
		return b.String()
	}
	if r.Lower != nil {
		b.WriteString(r.Lower.String())
	}
	b.WriteByte(',')
	if r.Upper != nil {
		b.WriteString(r.Upper.String())
	}
	b.WriteByte(")]"[boolIndex(r.UpperInclusive)])
	return b.String()
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Constraint is either a soft version requirement or a set of acceptable
// versions (Maven ranges or a semver constraint).
type Constraint struct {
	raw    string
	soft   Version
	ranges []Range
	sem    *mm.Constraints
}

// ParseConstraint parses a version string found in a descriptor.
func ParseConstraint(raw string) (Constraint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Constraint{}, errors.New(errors.ErrCodeInvalidVersion, "version constraint cannot be empty")
	}
	c := Constraint{raw: raw}
	switch {
	case raw[0] == '[' || raw[0] == '(':
		ranges, err := parseRanges(raw)
		if err != nil {
			return Constraint{}, err
		}
		c.ranges = ranges
	case strings.ContainsAny(raw, "<>=^~*| "):
		sem, err := mm.NewConstraint(raw)
		if err != nil {
			return Constraint{}, errors.Wrap(errors.ErrCodeInvalidVersion, err, "parse constraint %q", raw)
		}
		c.sem = sem
	default:
		v, err := Parse(raw)
		if err != nil {
			return Constraint{}, err
		}
		c.soft = v
	}
	return c, nil
}

// MustParseConstraint is like [ParseConstraint] but panics on error.
func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// Exact returns a soft constraint for v.
func Exact(v Version) Constraint {
	return Constraint{raw: v.String(), soft: v}
}

// String returns the constraint as parsed.
func (c Constraint) String() string { return c.raw }

// IsZero reports whether c is the zero value.
func (c Constraint) IsZero() bool { return c.raw == "" }

// IsRange reports whether c admits a set of versions rather than naming one.
func (c Constraint) IsRange() bool { return len(c.ranges) > 0 || c.sem != nil }

// Version returns the soft version for non-range constraints.
func (c Constraint) Version() (Version, bool) {
	return c.soft, !c.IsRange() && !c.soft.IsZero()
}

// Ranges returns the Maven ranges, if any.
func (c Constraint) Ranges() []Range { return c.ranges }

// Contains reports whether v satisfies c. A soft constraint only contains
// its own version.
func (c Constraint) Contains(v Version) bool {
	switch {
	case len(c.ranges) > 0:
		for _, r := range c.ranges {
			if r.Contains(v) {
				return true
			}
		}
		return false
	case c.sem != nil:
		return v.sv != nil && c.sem.Check(v.sv)
	case !c.soft.IsZero():
		return c.soft.Equal(v)
	}
	return true
}

// Select returns the highest of available that c contains. Soft constraints
// return their own version without consulting available.
func (c Constraint) Select(available []Version) (Version, bool) {
	if v, ok := c.Version(); ok {
		return v, true
	}
	var matches []Version
	for _, v := range available {
		if c.Contains(v) {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return Version{}, false
	}
	return Max(matches), true
}

func parseRanges(raw string) ([]Range, error) {
	var ranges []Range
	rest := raw
	for rest != "" {
		rest = strings.TrimLeft(rest, ", ")
		if rest == "" {
			break
		}
		if rest[0] != '[' && rest[0] != '(' {
			return nil, invalidRange(raw, "expected '[' or '('")
		}
		end := strings.IndexAny(rest, "])")
		if end < 0 {
			return nil, invalidRange(raw, "unterminated range")
		}
		r, err := parseRange(rest[:end+1])
		if err != nil {
			return nil, invalidRange(raw, err.Error())
		}
		ranges = append(ranges, r)
		rest = rest[end+1:]
	}
	if len(ranges) == 0 {
		return nil, invalidRange(raw, "no ranges")
	}
	return ranges, nil
}

func parseRange(s string) (Range, error) {
	r := Range{LowerInclusive: s[0] == '[', UpperInclusive: s[len(s)-1] == ']'}
	body := strings.TrimSpace(s[1 : len(s)-1])

	lo, hi, hasComma := strings.Cut(body, ",")
	if !hasComma {
		if !r.LowerInclusive || !r.UpperInclusive {
			return Range{}, fmt.Errorf("single version %q must use []", body)
		}
		v, err := Parse(body)
		if err != nil {
			return Range{}, err
		}
		r.Lower, r.Upper = &v, &v
		return r, nil
	}
	if lo = strings.TrimSpace(lo); lo != "" {
		v, err := Parse(lo)
		if err != nil {
			return Range{}, err
		}
		r.Lower = &v
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v, err := Parse(hi)
		if err != nil {
			return Range{}, err
		}
		r.Upper = &v
	}
	if r.Lower != nil && r.Upper != nil && r.Lower.Compare(*r.Upper) > 0 {
		return Range{}, fmt.Errorf("lower bound %s above upper bound %s", r.Lower, r.Upper)
	}
	return r, nil
}

func invalidRange(raw, why string) error {
	return errors.New(errors.ErrCodeInvalidVersion, "invalid version range %q: %s", raw, why)
}
