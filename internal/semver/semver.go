package semver

import (
	"fmt"
	"sort"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3.
type Version struct {
	v *mm.Version
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// NewVersion builds a release version from its numeric components.
func NewVersion(major, minor, patch uint64) Version {
	return Version{v: mm.New(major, minor, patch, "", "")}
}

func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

// Prerelease returns the pre-release part of v, empty for a release.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.v == nil
}

// String returns the version as it was written when parsed.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// MaxSatisfying returns the highest version in candidates that satisfies every constraint in cs.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(candidates []Version, cs ...Constraint) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !satisfiesAll(candidate, cs) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}

// ParseVersions parses every entry of raw, skipping the ones that are not valid versions.
func ParseVersions(raw []string) []Version {
	out := make([]Version, 0, len(raw))
	for _, r := range raw {
		v, err := ParseVersion(r)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SortDescending returns the parsed versions of vs ordered newest first.
func SortDescending(vs []Version) []Version {
	coll := make(mm.Collection, 0, len(vs))
	for _, v := range vs {
		if v.v != nil {
			coll = append(coll, v.v)
		}
	}
	sort.Stable(sort.Reverse(coll))
	out := make([]Version, 0, len(coll))
	for _, v := range coll {
		out = append(out, Version{v: v})
	}
	return out
}

func satisfiesAll(v Version, cs []Constraint) bool {
	for _, c := range cs {
		if !Satisfies(v, c) {
			return false
		}
	}
	return true
}
