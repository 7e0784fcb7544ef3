package scope

import (
	"fmt"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/semverx"
)

// DeprecateMany sets deprecated=true on each named Component and persists
// once, then notifies the consumer layer (spec.md §4.4.4).
func (s *Scope) DeprecateMany(ids []bitid.BitId) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		component, err := s.Sources.Get(id)
		if err != nil {
			return fmt.Errorf("scope: deprecate %s: %w", id, err)
		}
		component.Deprecated = true
		if err := s.Sources.Save(component); err != nil {
			return fmt.Errorf("scope: deprecate %s: %w", id, err)
		}
	}
	if err := s.Persist(); err != nil {
		return err
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	s.Hooks.runPostDeprecate(idStrings)
	return nil
}

// RemoveResult reports removeMany's outcome.
type RemoveResult struct {
	Removed      []bitid.BitId
	Missing      []bitid.BitId
	DependentBits map[string][]string // dependency key -> dependent id-strings
}

// RemoveMany partitions ids into found/missing, and unless force is set or
// no local component depends on any of them, refuses to mutate state and
// instead reports the dependents (spec.md §4.4.4).
func (s *Scope) RemoveMany(ids []bitid.BitId, force bool) (RemoveResult, error) {
	if len(ids) == 0 {
		return RemoveResult{}, nil
	}

	result := RemoveResult{}
	found := make([]bitid.BitId, 0, len(ids))
	for _, id := range ids {
		if _, err := s.Sources.Get(id); err != nil {
			result.Missing = append(result.Missing, id)
			continue
		}
		found = append(found, id)
	}

	if !force && len(found) > 0 {
		dependents, err := s.findDependents(found)
		if err != nil {
			return RemoveResult{}, err
		}
		if len(dependents) > 0 {
			result.DependentBits = dependents
			return result, nil
		}
	}

	for _, id := range found {
		if err := s.Sources.Clean(id.WithoutVersion(), true); err != nil {
			return RemoveResult{}, fmt.Errorf("scope: remove %s: %w", id, err)
		}
		result.Removed = append(result.Removed, id)
	}
	if err := s.Persist(); err != nil {
		return RemoveResult{}, err
	}

	idStrings := make([]string, len(result.Removed))
	for i, id := range result.Removed {
		idStrings[i] = id.String()
	}
	s.Hooks.runPostRemove(idStrings)
	return result, nil
}

// findDependents scans every locally indexed component's flattened
// dependencies for a reference to any of candidates, keyed by the
// candidate's (box,name).
func (s *Scope) findDependents(candidates []bitid.BitId) (map[string][]string, error) {
	candidateKeys := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateKeys[c.Key()] = true
	}

	keys, err := s.Sources.ListComponentKeys()
	if err != nil {
		return nil, err
	}

	dependents := make(map[string][]string)
	for _, key := range keys {
		id, err := bitid.Parse(key)
		if err != nil {
			continue
		}
		objects, err := s.Sources.GetObjects(id)
		if err != nil {
			continue
		}
		for _, version := range objects.Versions {
			for _, flat := range version.FlattenedDependencies {
				depID, err := bitid.Parse(flat)
				if err != nil {
					continue
				}
				if candidateKeys[depID.Key()] {
					dependents[depID.Key()] = append(dependents[depID.Key()], id.String())
				}
			}
		}
	}
	return dependents, nil
}

// Reset drops a local component's latest version, or the whole component
// if only one version remains (spec.md §4.4.4).
func (s *Scope) Reset(id bitid.BitId) error {
	if !id.IsLocal(s.Meta.Name) {
		return fmt.Errorf("scope: reset %s: not a local component", id)
	}

	component, err := s.Sources.Get(id)
	if err != nil {
		return fmt.Errorf("scope: reset %s: %w", id, err)
	}

	if len(component.Versions) <= 1 {
		if err := s.Sources.Clean(id.WithoutVersion(), true); err != nil {
			return fmt.Errorf("scope: reset %s: %w", id, err)
		}
		if err := s.Persist(); err != nil {
			return err
		}
		s.Hooks.runPostReset(id.String())
		return nil
	}

	latest, ok := latestSemverKey(component)
	if !ok {
		return fmt.Errorf("scope: reset %s: no valid stored versions", id)
	}
	if err := s.Sources.Clean(id.WithVersion(latest), false); err != nil {
		return fmt.Errorf("scope: reset %s: %w", id, err)
	}
	if err := s.Persist(); err != nil {
		return err
	}
	s.Hooks.runPostReset(id.WithVersion(latest).String())
	return nil
}

func latestSemverKey(c *objtypes.Component) (string, bool) {
	versions := make([]semverx.Version, 0, len(c.Versions))
	bySemver := make(map[string]string, len(c.Versions))
	for sv := range c.Versions {
		v, err := semverx.Parse(sv)
		if err != nil {
			continue
		}
		versions = append(versions, v)
		bySemver[v.String()] = sv
	}
	latest, ok := semverx.Latest(versions)
	if !ok {
		return "", false
	}
	return bySemver[latest.String()], true
}
