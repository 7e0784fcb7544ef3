package scope

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
)

// ImportOptions configures one importMany call (spec.md §4.4.2).
type ImportOptions struct {
	// WithEnvironments is accepted but not read: ImportMany resolves no
	// component-resolver modules whatever its value.
	WithEnvironments bool

	// Cache, when true, answers from the local store first
	// and only contacts a remote when the id is entirely absent locally.
	// When false, every external id is re-fetched regardless.
	Cache bool

	// Persist flushes the store after a successful import. putMany's
	// internal dependency resolution passes false — the batch flushes once
	// at the very end instead.
	Persist bool
}

// VersionDependencies pairs a resolved id with its Version object, the
// shape importMany returns (spec.md §4.4.2).
type VersionDependencies struct {
	ID      bitid.BitId
	Version *objtypes.Version
}

// depMemo caches resolveVersion results across one batch (a putMany or
// importMany call) by id string, so a dependency shared by several
// components in the same batch is fetched or decoded only once. Safe for
// concurrent use by importMany's errgroup fan-out.
type depMemo struct {
	mu    sync.Mutex
	cache map[string]VersionDependencies
}

func newDepMemo() *depMemo {
	return &depMemo{cache: make(map[string]VersionDependencies)}
}

func (m *depMemo) get(key string) (VersionDependencies, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache[key]
	return v, ok
}

func (m *depMemo) put(key string, v VersionDependencies) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = v
}

// ImportMany resolves every id to its Version, consulting the local store
// first and falling back to the id's remote scope when it's not a local id
// (spec.md §4.4.2). An empty ids never contacts a remote. Local and
// external resolution proceed concurrently (spec.md §5), joined with
// errgroup so the first hard failure cancels the rest of the batch.
func (s *Scope) ImportMany(ctx context.Context, ids []bitid.BitId, opts ImportOptions) ([]VersionDependencies, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	memo := newDepMemo()
	results := make([]VersionDependencies, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			v, resolved, err := s.resolveVersion(ctx, id, opts, memo)
			if err != nil {
				return err
			}
			results[i] = VersionDependencies{ID: resolved, Version: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Persist {
		if err := s.Persist(); err != nil {
			return nil, err
		}
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	s.Hooks.runPostImport(idStrings)

	return results, nil
}

// resolveVersion resolves one id to its Version, memoized within memo.
// A local id (empty scope, or scope == this scope's name) is answered
// purely from Sources. An external id is answered from the local store
// when opts.Cache and present; otherwise its remote (named by id.Scope) is
// fetched once, merged into Sources, and resolution is retried exactly
// once — spec.md §4.4.2's "one re-fetch round" before giving up with
// DependencyNotFound.
func (s *Scope) resolveVersion(ctx context.Context, id bitid.BitId, opts ImportOptions, memo *depMemo) (*objtypes.Version, bitid.BitId, error) {
	key := id.String()
	if cached, ok := memo.get(key); ok {
		return cached.Version, cached.ID, nil
	}

	local := id.IsLocal(s.Meta.Name)

	if local || opts.Cache {
		v, resolved, err := s.Sources.GetVersion(id)
		if err == nil {
			memo.put(key, VersionDependencies{ID: resolved, Version: v})
			return v, resolved, nil
		}
		if local {
			return nil, id, err
		}
	}

	remote, err := s.Remotes.Get(id.Scope)
	if err != nil {
		return nil, id, err
	}

	bundles, err := remote.Fetch(ctx, []bitid.BitId{id}, id.Scope, false)
	if err != nil {
		return nil, id, fmt.Errorf("scope: fetch %s from %s: %w", id, id.Scope, err)
	}
	for _, bundle := range bundles {
		if err := s.Sources.Merge(bundle, false); err != nil {
			return nil, id, err
		}
	}

	v, resolved, err := s.Sources.GetVersion(id)
	if err != nil {
		return nil, id, biterrors.NewDependencyNotFound(id.String())
	}

	memo.put(key, VersionDependencies{ID: resolved, Version: v})
	return v, resolved, nil
}
