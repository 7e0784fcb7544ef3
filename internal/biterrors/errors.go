// Package biterrors declares the sentinel error taxonomy shared by every
// layer of the scope engine. Callers match with errors.Is/errors.As rather
// than type-switching on concrete error structs.
package biterrors

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeNotFound means no scope root was found walking ancestor directories.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrComponentNotFound means a local lookup missed.
	ErrComponentNotFound = errors.New("component not found")

	// ErrDependencyNotFound means a transitive dependency could not be
	// resolved even after a remote re-fetch round.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrResolutionException means an environment module could not be
	// located or loaded by the configured component resolver.
	ErrResolutionException = errors.New("resolution exception")

	// ErrRemoteScopeNotFound means the named remote has no registered adapter.
	ErrRemoteScopeNotFound = errors.New("remote scope not found")

	// ErrPermissionDenied is propagated unmodified from a remote.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMergeConflict means two components disagree on the ref for the
	// same version during a sources merge.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrCorruptedObject means a stored object's bytes do not decode, or
	// its digest does not match its Ref.
	ErrCorruptedObject = errors.New("corrupted object")

	// ErrUnknownObjectType means a decoded tag does not match any
	// registered variant constructor.
	ErrUnknownObjectType = errors.New("unknown object type")

	// ErrSpecsFailed means ingest was aborted because a component's
	// specs failed and force was not set.
	ErrSpecsFailed = errors.New("specs failed")

	// ErrObjectNotFound means a Ref has no corresponding object on disk.
	ErrObjectNotFound = errors.New("object not found")
)

// ComponentError identifies the BitId whose component lookup failed.
type ComponentError struct {
	ID  string
	Err error
}

func (e *ComponentError) Error() string { return fmt.Sprintf("%s: %s", e.Err, e.ID) }
func (e *ComponentError) Unwrap() error { return e.Err }

// NewComponentNotFound wraps ErrComponentNotFound with the offending id.
func NewComponentNotFound(id string) error {
	return &ComponentError{ID: id, Err: ErrComponentNotFound}
}

// NewDependencyNotFound wraps ErrDependencyNotFound with the offending id.
func NewDependencyNotFound(id string) error {
	return &ComponentError{ID: id, Err: ErrDependencyNotFound}
}

// NewSpecsFailed wraps ErrSpecsFailed with the offending id.
func NewSpecsFailed(id string) error {
	return &ComponentError{ID: id, Err: ErrSpecsFailed}
}

// RefError identifies the Ref whose object failed to load or decode.
type RefError struct {
	Ref string
	Err error
}

func (e *RefError) Error() string { return fmt.Sprintf("%s: %s", e.Err, e.Ref) }
func (e *RefError) Unwrap() error { return e.Err }

// NewCorruptedObject wraps ErrCorruptedObject with the offending ref.
func NewCorruptedObject(ref string) error {
	return &RefError{Ref: ref, Err: ErrCorruptedObject}
}

// NewObjectNotFound wraps ErrObjectNotFound with the offending ref.
func NewObjectNotFound(ref string) error {
	return &RefError{Ref: ref, Err: ErrObjectNotFound}
}

// TagError identifies the unknown type tag read off a decoded object.
type TagError struct {
	Tag string
	Err error
}

func (e *TagError) Error() string { return fmt.Sprintf("%s: %q", e.Err, e.Tag) }
func (e *TagError) Unwrap() error { return e.Err }

// NewUnknownObjectType wraps ErrUnknownObjectType with the offending tag.
func NewUnknownObjectType(tag string) error {
	return &TagError{Tag: tag, Err: ErrUnknownObjectType}
}

// RemoteError identifies the remote name behind a remote-layer failure.
type RemoteError struct {
	Name string
	Err  error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("remote %q: %s", e.Name, e.Err) }
func (e *RemoteError) Unwrap() error { return e.Err }

// NewRemoteScopeNotFound wraps ErrRemoteScopeNotFound with the remote name.
func NewRemoteScopeNotFound(name string) error {
	return &RemoteError{Name: name, Err: ErrRemoteScopeNotFound}
}

// NewPermissionDenied wraps ErrPermissionDenied with the remote name.
func NewPermissionDenied(name string) error {
	return &RemoteError{Name: name, Err: ErrPermissionDenied}
}
