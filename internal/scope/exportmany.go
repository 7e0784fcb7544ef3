package scope

import (
	"context"
	"fmt"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/sources"
)

// ExportMany publishes ids to remoteName (spec.md §4.4.3): gather each
// id's objects, rewrite any locally-scoped dependency edge to either a
// matching Symlink's realScope or remoteName, push the rewritten bundles,
// and only on success swap each local Component for a Symlink pointing at
// remoteName. A push failure leaves every local object untouched.
func (s *Scope) ExportMany(ctx context.Context, ids []bitid.BitId, remoteName string) ([]bitid.BitId, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	remote, err := s.Remotes.Get(remoteName)
	if err != nil {
		return nil, err
	}

	bundles := make([]*sources.ComponentObjects, 0, len(ids))
	for _, id := range ids {
		objects, err := s.Sources.GetObjects(id)
		if err != nil {
			return nil, fmt.Errorf("scope: export %s: %w", id, err)
		}
		if err := s.rewriteLocalDependencies(objects, remoteName); err != nil {
			return nil, fmt.Errorf("scope: export %s: %w", id, err)
		}
		// The pushed Component is keyed under the remote it's being
		// published to, so merging it back afterward lands at
		// "remoteName/box/name" rather than colliding with the local
		// (box,name) key the Symlink below takes over.
		objects.Component.Scope = remoteName
		bundles = append(bundles, objects)
	}

	accepted, err := remote.PushMany(ctx, bundles)
	if err != nil {
		return nil, fmt.Errorf("scope: pushMany to %s: %w", remoteName, err)
	}

	exported := make([]bitid.BitId, 0, len(ids))
	for _, id := range ids {
		if err := s.Sources.Clean(id.WithoutVersion(), true); err != nil {
			return nil, fmt.Errorf("scope: export %s: clean local copy: %w", id, err)
		}
		if err := s.Sources.SetSymlink(id.Box, id.Name, remoteName); err != nil {
			return nil, fmt.Errorf("scope: export %s: set symlink: %w", id, err)
		}
		exported = append(exported, bitid.New(remoteName, id.Box, id.Name, id.Version))
	}

	for _, bundle := range bundles {
		if err := s.Sources.Merge(bundle, false); err != nil {
			return nil, fmt.Errorf("scope: export: merge back authoritative objects: %w", err)
		}
	}

	if err := s.Persist(); err != nil {
		return nil, err
	}

	idStrings := make([]string, len(accepted))
	copy(idStrings, accepted)
	s.Hooks.runPostExport(idStrings)

	return exported, nil
}

// rewriteLocalDependencies rewrites every scope-null dependency edge found
// across objects.Versions to either the realScope of a matching local
// Symlink or fallbackScope, re-encoding and re-keying any Version whose
// bytes changed, and updating the parent Component's versions map to the
// new ref (spec.md §4.4.3 step 2).
func (s *Scope) rewriteLocalDependencies(objects *sources.ComponentObjects, fallbackScope string) error {
	for semver, version := range objects.Versions {
		changed := false
		for i, dep := range version.Dependencies {
			depID, err := bitid.Parse(dep.ID)
			if err != nil {
				return fmt.Errorf("rewrite dependency %q: %w", dep.ID, err)
			}
			if depID.Scope != "" {
				continue
			}

			newScope := fallbackScope
			if symlinked, err := s.Sources.Get(depID); err == nil && symlinked != nil && symlinked.Scope != "" {
				newScope = symlinked.Scope
			}
			depID.Scope = newScope
			version.Dependencies[i].ID = depID.String()
			for j, flat := range version.FlattenedDependencies {
				if flatID, err := bitid.Parse(flat); err == nil && flatID.Box == depID.Box && flatID.Name == depID.Name && flatID.Scope == "" {
					flatID.Scope = newScope
					version.FlattenedDependencies[j] = flatID.String()
				}
			}
			changed = true
		}
		if !changed {
			continue
		}

		raw, err := version.Encode()
		if err != nil {
			return err
		}
		newRef, err := objectstore.ComputeRef(raw)
		if err != nil {
			return err
		}
		if _, err := s.Store.Add(raw); err != nil {
			return err
		}
		objects.Component.Versions[semver] = string(newRef)
	}
	return nil
}
