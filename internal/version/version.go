// Package version implements parsing and ordering of Python package version
// literals and the single-operator constraints pipwright supports.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op is a version comparison operator.
type Op string

// Supported comparison operators. OpCompatible is accepted on input but is
// normalized to OpGreaterEqual before any comparison takes place.
const (
	OpEqual        Op = "=="
	OpGreaterEqual Op = ">="
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpLess         Op = "<"
	OpCompatible   Op = "~="
)

// Ops lists the supported operators, longest first so that parsers trying
// them in order never mistake ">=" for ">".
var Ops = []Op{OpEqual, OpCompatible, OpGreaterEqual, OpLessEqual, OpGreater, OpLess}

// Ordering is the result of comparing two versions.
type Ordering int

// Ordering values.
const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// ErrUnsupportedConstraint is returned when a constraint uses an operator
// outside the supported set, or carries more than one comma-separated clause.
var ErrUnsupportedConstraint = errors.New("unsupported version constraint")

// ErrUnparsable is returned for version literals that are not dotted-numeric.
// Satisfaction checks fail closed on this error: an unorderable version is
// never assumed to satisfy a constraint.
var ErrUnparsable = errors.New("unparsable version")

// Version is a parsed dotted-numeric version with an optional trailing
// pre-release/suffix segment (e.g. "2.0rc1" or "1.0.post1").
type Version struct {
	Release []int
	Suffix  string
	raw     string
}

// String returns the original literal the version was parsed from.
func (v Version) String() string {
	return v.raw
}

// ParseOp validates a comparison operator.
func ParseOp(s string) (Op, error) {
	for _, op := range Ops {
		if Op(s) == op {
			return op, nil
		}
	}
	return "", fmt.Errorf("operator %q: %w", s, ErrUnsupportedConstraint)
}

// NormalizeOp maps compatible-release constraints to their lower bound:
// "~=" becomes ">=". All other operators pass through unchanged.
func NormalizeOp(op Op) Op {
	if op == OpCompatible {
		return OpGreaterEqual
	}
	return op
}

// Parse parses a dotted-numeric version literal. Each dot-separated segment
// must start with a digit; the first segment with trailing non-digit
// characters begins the suffix, which swallows the remainder of the literal.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("empty version literal: %w", ErrUnparsable)
	}

	v := Version{raw: trimmed}
	segments := strings.Split(trimmed, ".")
	for i, segment := range segments {
		digits := leadingDigits(segment)
		if digits == "" {
			return Version{}, fmt.Errorf("version %q: segment %q is not numeric: %w", trimmed, segment, ErrUnparsable)
		}

		n, err := strconv.Atoi(digits)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: segment %q: %w", trimmed, segment, ErrUnparsable)
		}
		v.Release = append(v.Release, n)

		if rest := segment[len(digits):]; rest != "" {
			// Suffix starts mid-segment, e.g. the "rc1" in "2.0rc1".
			// Everything after it belongs to the suffix as well.
			v.Suffix = strings.Join(append([]string{rest}, segments[i+1:]...), ".")
			break
		}
	}

	return v, nil
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// Compare orders two versions. Numeric release segments compare numerically
// ("1.10.0" > "1.9.0"); missing trailing segments count as zero. A version
// with a suffix sorts before the same release without one (pre-release
// semantics); two suffixes compare lexically.
func Compare(a, b Version) Ordering {
	longest := max(len(a.Release), len(b.Release))
	for i := 0; i < longest; i++ {
		av, bv := 0, 0
		if i < len(a.Release) {
			av = a.Release[i]
		}
		if i < len(b.Release) {
			bv = b.Release[i]
		}
		if av != bv {
			if av < bv {
				return Less
			}
			return Greater
		}
	}

	switch {
	case a.Suffix == b.Suffix:
		return Equal
	case a.Suffix == "":
		return Greater
	case b.Suffix == "":
		return Less
	case a.Suffix < b.Suffix:
		return Less
	default:
		return Greater
	}
}

// CompareLiterals parses both literals and compares them.
func CompareLiterals(installed, required string) (Ordering, error) {
	iv, errParseInstalled := Parse(installed)
	if errParseInstalled != nil {
		return Equal, fmt.Errorf("installed version: %w", errParseInstalled)
	}

	rv, errParseRequired := Parse(required)
	if errParseRequired != nil {
		return Equal, fmt.Errorf("required version: %w", errParseRequired)
	}

	return Compare(iv, rv), nil
}

// Satisfies reports whether an installed version satisfies "op required".
// The operator is normalized first, so "~=" behaves as ">=". Unparsable
// literals fail closed: the result is false alongside the parse error.
func Satisfies(installed string, op Op, required string) (bool, error) {
	normalized := NormalizeOp(op)
	if _, err := ParseOp(string(normalized)); err != nil {
		return false, err
	}

	ordering, err := CompareLiterals(installed, required)
	if err != nil {
		return false, err
	}

	switch normalized {
	case OpEqual:
		return ordering == Equal, nil
	case OpGreaterEqual:
		return ordering != Less, nil
	case OpLessEqual:
		return ordering != Greater, nil
	case OpGreater:
		return ordering == Greater, nil
	case OpLess:
		return ordering == Less, nil
	default:
		return false, fmt.Errorf("operator %q: %w", op, ErrUnsupportedConstraint)
	}
}
