package scope

import (
	"context"
	"fmt"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/sources"
)

// ConsumerComponent is the capability boundary spec.md §6 describes: the
// Scope invokes build/runSpecs/pack/write but does not implement them — the
// external "consumer" layer (file-system checkout, package installer) does.
// This is the working-copy shape putMany accepts, not a stored object.
type ConsumerComponent interface {
	// ID identifies the component, unversioned (putMany assigns the
	// version).
	ID() bitid.BitId

	// Dependencies lists the (possibly unversioned) ids this component
	// depends on, some of which may be other components in the same batch.
	Dependencies() []bitid.BitId

	// Files returns the component's source files as they stand right now,
	// to be content-addressed during persist.
	Files() []sources.FileContent

	// Lang and MainFile describe the component for the stored Component/
	// Version objects.
	Lang() string
	MainFile() string

	// Build runs the component's build step, with scopeRoot as isolation
	// context, returning the produced distributable files.
	Build(ctx context.Context, scopeRoot string) ([]sources.FileContent, error)

	// RunSpecs runs the component's tests, returning the outcome. It must
	// not return an error for "tests failed" — that is reported in the
	// result's Success field; Go errors here mean the test runner itself
	// could not execute.
	RunSpecs(ctx context.Context, scopeRoot string) (*objtypes.SpecsResults, error)
}

// Hooks are the capability boundary's notification side: postExport,
// postImport, postDeprecate, postRemove (spec.md §6). Each receives the
// affected id-strings. A nil field is simply not invoked. Failures are
// logged, never surfaced — spec.md §7: "Hook failures are logged, never
// surfaced."
type Hooks struct {
	PostExport    func(ids []string)
	PostImport    func(ids []string)
	PostDeprecate func(ids []string)
	PostRemove    func(ids []string)

	// PostReset notifies the consumer to remove a component version's
	// working copy after reset (spec.md §4.4.4); not named in spec.md §6's
	// hook list but required by the reset operation's contract in S5.
	PostReset func(id string)
}

func (h Hooks) runPostExport(ids []string)    { h.run("postExport", h.PostExport, ids) }
func (h Hooks) runPostImport(ids []string)    { h.run("postImport", h.PostImport, ids) }
func (h Hooks) runPostDeprecate(ids []string) { h.run("postDeprecate", h.PostDeprecate, ids) }
func (h Hooks) runPostRemove(ids []string)    { h.run("postRemove", h.PostRemove, ids) }

func (h Hooks) run(name string, fn func(ids []string), ids []string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("bit: %s hook panicked: %v\n", name, r)
		}
	}()
	fn(ids)
}

func (h Hooks) runPostReset(id string) {
	if h.PostReset == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("bit: postReset hook panicked: %v\n", r)
		}
	}()
	h.PostReset(id)
}
