// Package semverx wraps github.com/Masterminds/semver/v3 with the release
// arithmetic the scope engine needs: bump-by-kind and "next exact version
// must be greater than every existing version".
package semverx

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a parsed semantic version.
type Version struct {
	v *mm.Version
}

// ReleaseType selects which component of a version putMany bumps.
type ReleaseType string

const (
	Major ReleaseType = "major"
	Minor ReleaseType = "minor"
	Patch ReleaseType = "patch"
)

// Zero is the version a component starts at when it has no prior versions
// and the caller supplied no exactVersion: spec.md "putMany on a component
// with no dependencies assigns version 0.0.1 when no prior versions exist".
var Zero = MustParse("0.0.1")

func Parse(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semverx: parse %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

func (v Version) IsZero() bool { return v.v == nil }

// Compare returns -1, 0, or 1 the way sort.Interface comparators do.
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

// Greater reports whether a > b.
func Greater(a, b Version) bool { return Compare(a, b) > 0 }

// GreaterOrEqual reports whether a >= b.
func GreaterOrEqual(a, b Version) bool { return Compare(a, b) >= 0 }

// Bump returns the next version after current according to releaseType.
func Bump(current Version, releaseType ReleaseType) (Version, error) {
	if current.v == nil {
		return Zero, nil
	}
	var next mm.Version
	switch releaseType {
	case Major:
		next = current.v.IncMajor()
	case Minor:
		next = current.v.IncMinor()
	case Patch:
		next = current.v.IncPatch()
	default:
		return Version{}, fmt.Errorf("semverx: unknown release type %q", releaseType)
	}
	return Version{v: &next}, nil
}

// Latest returns the greatest version among candidates, and false if
// candidates is empty.
func Latest(candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, c := range candidates {
		if !found || Greater(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}
