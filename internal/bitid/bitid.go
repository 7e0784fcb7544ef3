// Package bitid implements BitId, the (scope?, box, name[, version]) identity
// triple addressed at components throughout the scope engine. Parsing and
// formatting are lossless: Parse(id.String()) == id for every id this package
// constructs.
//
// The on-disk ref-filename scheme used by the teacher (colons replaced with
// double underscores so an id-with-scope-and-colons is a legal filename) is
// generalized here into the canonical string form: "scope/box/name@version".
package bitid

import (
	"fmt"
	"strings"
)

// BitId identifies a logical component, optionally pinned to a version.
// Scope is empty for a locally-created, unexported component.
type BitId struct {
	Scope   string
	Box     string
	Name    string
	Version string // empty when unversioned
}

// New constructs a BitId directly from its parts.
func New(scope, box, name, version string) BitId {
	return BitId{Scope: scope, Box: box, Name: name, Version: version}
}

// Parse decodes the canonical string form "[scope/]box/name[@version]".
// A leading "scope/" segment is only recognized when the string has three
// slash-separated segments before the optional "@version" suffix; two
// segments mean (box, name) with no scope.
func Parse(s string) (BitId, error) {
	version := ""
	rest := s
	if at := strings.LastIndex(s, "@"); at >= 0 {
		version = s[at+1:]
		rest = s[:at]
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 2:
		return BitId{Box: parts[0], Name: parts[1], Version: version}, nil
	case 3:
		return BitId{Scope: parts[0], Box: parts[1], Name: parts[2], Version: version}, nil
	default:
		return BitId{}, fmt.Errorf("bitid: cannot parse %q: expected box/name or scope/box/name", s)
	}
}

// MustParse panics on a parse error; intended for tests and literals.
func MustParse(s string) BitId {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String formats the canonical form, including version when set.
func (id BitId) String() string {
	var b strings.Builder
	if id.Scope != "" {
		b.WriteString(id.Scope)
		b.WriteByte('/')
	}
	b.WriteString(id.Box)
	b.WriteByte('/')
	b.WriteString(id.Name)
	if id.Version != "" {
		b.WriteByte('@')
		b.WriteString(id.Version)
	}
	return b.String()
}

// WithoutVersion returns a copy of id with Version cleared, the form used
// for equality and map-keying everywhere except "equality with version".
func (id BitId) WithoutVersion() BitId {
	id.Version = ""
	return id
}

// WithVersion returns a copy of id pinned to the given version.
func (id BitId) WithVersion(version string) BitId {
	id.Version = version
	return id
}

// Key is the (box,name) pair used for dependency-graph nodes and for
// detecting the "at most one Component or Symlink" invariant — scope is
// deliberately excluded, since that invariant is about local identity.
func (id BitId) Key() string {
	return id.Box + "/" + id.Name
}

// FullKey includes scope, distinguishing a locally-created (box,name) from
// the same (box,name) materialized under a remote scope after import. Used
// as the on-disk name-index key.
func (id BitId) FullKey() string {
	return id.Scope + "/" + id.Box + "/" + id.Name
}

// Equal compares ignoring version, per spec: "equality ignores version
// unless explicitly compared with version".
func (id BitId) Equal(other BitId) bool {
	return id.Scope == other.Scope && id.Box == other.Box && id.Name == other.Name
}

// EqualWithVersion compares every field including version.
func (id BitId) EqualWithVersion(other BitId) bool {
	return id.Equal(other) && id.Version == other.Version
}

// IsLocal reports whether id was created under the given local scope name:
// either it has no scope recorded (a not-yet-exported local component) or
// its scope matches scopeName exactly.
func (id BitId) IsLocal(scopeName string) bool {
	return id.Scope == "" || id.Scope == scopeName
}

// HasVersion reports whether a version is pinned.
func (id BitId) HasVersion() bool {
	return id.Version != ""
}
