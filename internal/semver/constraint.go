package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the textual form a Constraint was declared in.
type Kind string

const (
	KindExact Kind = "exact"
	KindCaret Kind = "caret"
	KindTilde Kind = "tilde"
	KindRange Kind = "range"
)

// Op is a range comparator.
type Op string

const (
	OpGreaterEqual Op = ">="
	OpGreater      Op = ">"
	OpLessEqual    Op = "<="
	OpLess         Op = "<"
)

// Bound is one side of a range.
type Bound struct {
	Op      Op
	Version Version
}

// Inclusive reports whether the bound's own version is allowed.
func (b Bound) Inclusive() bool {
	return b.Op == OpGreaterEqual || b.Op == OpLessEqual
}

func (b Bound) String() string {
	return string(b.Op) + b.Version.String()
}

// Constraint is a parsed version requirement.
//
// Supported forms:
// - "1.2.3" or "=1.2.3" (exact)
// - "^1.2.3" (caret)
// - "~1.2.3" (tilde)
// - ">=1.2.0 <2.0.0", ">1.0.0", "*" (range)
//
// A Constraint is immutable once parsed.
type Constraint struct {
	raw     string
	kind    Kind
	version Version
	lower   *Bound
	upper   *Bound
}

// ParseError reports a constraint string that matches none of the supported forms.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("semver: parse constraint %q: %s", e.Raw, e.Reason)
}

var (
	reTriple     = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)
	reComparator = regexp.MustCompile(`(>=|<=|>|<)\s*([^\s,<>=]+)`)
)

func ParseConstraint(raw string) (Constraint, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return Constraint{}, &ParseError{Raw: raw, Reason: "empty constraint"}
	case s == "*":
		return Constraint{raw: raw, kind: KindRange}, nil
	case strings.HasPrefix(s, "^"):
		return parseAnchored(raw, s[1:], KindCaret)
	case strings.HasPrefix(s, "~"):
		return parseAnchored(raw, s[1:], KindTilde)
	case strings.HasPrefix(s, "="):
		return parseAnchored(raw, s[1:], KindExact)
	case strings.ContainsAny(s, "<>"):
		return parseRange(raw, s)
	default:
		return parseAnchored(raw, s, KindExact)
	}
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func parseAnchored(raw, s string, kind Kind) (Constraint, error) {
	v, err := parseTriple(s)
	if err != nil {
		return Constraint{}, &ParseError{Raw: raw, Reason: err.Error()}
	}
	return Constraint{raw: raw, kind: kind, version: v}, nil
}

func parseRange(raw, s string) (Constraint, error) {
	matches := reComparator.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return Constraint{}, &ParseError{Raw: raw, Reason: "no comparator found"}
	}
	c := Constraint{raw: raw, kind: KindRange}
	prev := 0
	for _, m := range matches {
		if gap := strings.Trim(s[prev:m[0]], " \t,"); gap != "" {
			return Constraint{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("unexpected %q", gap)}
		}
		prev = m[1]

		v, err := parseTriple(s[m[4]:m[5]])
		if err != nil {
			return Constraint{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		b := &Bound{Op: Op(s[m[2]:m[3]]), Version: v}
		switch b.Op {
		case OpGreaterEqual, OpGreater:
			if c.lower != nil {
				return Constraint{}, &ParseError{Raw: raw, Reason: "more than one lower bound"}
			}
			c.lower = b
		default:
			if c.upper != nil {
				return Constraint{}, &ParseError{Raw: raw, Reason: "more than one upper bound"}
			}
			c.upper = b
		}
	}
	if rest := strings.Trim(s[prev:], " \t,"); rest != "" {
		return Constraint{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("unexpected %q", rest)}
	}
	return c, nil
}

func parseTriple(s string) (Version, error) {
	m := reTriple.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%q is not a major.minor.patch version", s)
	}
	var parts [3]uint64
	for i := range parts {
		n, err := strconv.ParseUint(m[i+1], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version component %q: %w", m[i+1], err)
		}
		parts[i] = n
	}
	return NewVersion(parts[0], parts[1], parts[2]), nil
}

// Raw returns the constraint exactly as declared.
func (c Constraint) Raw() string { return c.raw }

func (c Constraint) Kind() Kind { return c.kind }

// Version returns the declared triple of an exact, caret or tilde constraint.
func (c Constraint) Version() Version { return c.version }

// Lower returns the lower bound of a range constraint.
func (c Constraint) Lower() (Bound, bool) {
	if c.lower == nil {
		return Bound{}, false
	}
	return *c.lower, true
}

// Upper returns the upper bound of a range constraint.
func (c Constraint) Upper() (Bound, bool) {
	if c.upper == nil {
		return Bound{}, false
	}
	return *c.upper, true
}

func (c Constraint) String() string {
	return c.raw
}

// Interval returns the set of versions c admits.
func (c Constraint) Interval() Interval {
	switch c.kind {
	case KindExact:
		return Interval{
			Lower: &Bound{Op: OpGreaterEqual, Version: c.version},
			Upper: &Bound{Op: OpLessEqual, Version: c.version},
		}
	case KindCaret:
		return Interval{
			Lower: &Bound{Op: OpGreaterEqual, Version: c.version},
			Upper: &Bound{Op: OpLess, Version: caretCeiling(c.version)},
		}
	case KindTilde:
		return Interval{
			Lower: &Bound{Op: OpGreaterEqual, Version: c.version},
			Upper: &Bound{Op: OpLess, Version: NewVersion(c.version.Major(), c.version.Minor()+1, 0)},
		}
	case KindRange:
		return Interval{Lower: c.lower, Upper: c.upper}
	}
	return emptyInterval()
}

// caretCeiling is the first version a caret constraint no longer admits.
// A zero major narrows the range to the minor, and a zero minor to the patch.
func caretCeiling(v Version) Version {
	switch {
	case v.Major() > 0:
		return NewVersion(v.Major()+1, 0, 0)
	case v.Minor() > 0:
		return NewVersion(0, v.Minor()+1, 0)
	default:
		return NewVersion(0, 0, v.Patch()+1)
	}
}

// Satisfies reports whether v is admitted by c.
//
// Constraints name release triples only, so a pre-release never satisfies
// one, even below a caret or tilde ceiling: 2.0.0-rc.1 is not ^1.0.0.
func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || v.Prerelease() != "" {
		return false
	}
	return c.Interval().Contains(v)
}

// IsCompatible reports whether the version string satisfies c.
// Versions that cannot be parsed are never compatible.
func IsCompatible(version string, c Constraint) bool {
	v, err := ParseVersion(strings.TrimSpace(version))
	if err != nil {
		return false
	}
	return Satisfies(v, c)
}
