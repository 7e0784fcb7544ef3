// Package remotes is the abstract adapter over zero-or-more remote scopes
// that the core Scope façade consults when a dependency cannot be satisfied
// locally. The core only ever calls Fetch and PushMany (spec.md §4.5); how a
// remote is actually reached (HTTP, a circuit breaker wrapping it, or both)
// is this package's concern, not the façade's.
package remotes

import (
	"context"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/sources"
)

// Remote is one named remote scope's capability surface.
type Remote interface {
	// Fetch returns the requested components, either with just their head
	// version (onlyHead) or their full transitive objects closure.
	Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error)

	// PushMany publishes bundles atomically on the remote side, returning
	// the id-strings accepted.
	PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error)
}

// Resolver composes process-wide global remotes with scope-local overrides,
// local winning on a name collision, and looks remotes up by name.
// Grounded on the teacher's FeedManager key/peer registry pattern
// (internal/dagit's followed-peers map), generalized from a single flat map
// to the two-tier global/local composition spec.md §4.5 calls for.
type Resolver struct {
	remotes map[string]Remote
}

// NewResolver merges global and local, with local entries taking precedence
// over a global entry of the same name.
func NewResolver(global, local map[string]Remote) *Resolver {
	merged := make(map[string]Remote, len(global)+len(local))
	for name, r := range global {
		merged[name] = r
	}
	for name, r := range local {
		merged[name] = r
	}
	return &Resolver{remotes: merged}
}

// Get looks up a remote by name, failing with RemoteScopeNotFound if no
// adapter is registered under it.
func (r *Resolver) Get(name string) (Remote, error) {
	remote, ok := r.remotes[name]
	if !ok {
		return nil, biterrors.NewRemoteScopeNotFound(name)
	}
	return remote, nil
}

// Names returns every remote name the resolver knows about.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.remotes))
	for name := range r.remotes {
		names = append(names, name)
	}
	return names
}
