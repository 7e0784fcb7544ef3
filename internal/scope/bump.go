package scope

import (
	"fmt"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/semverx"
)

// BumpCandidate is one component considered for an auto-bump pass.
type BumpCandidate struct {
	ID      bitid.BitId
	Pending bool // true when this is a dry-run report rather than an applied bump
}

// BumpDependenciesVersions implements spec.md §4.4.5: for every candidate,
// load its latest Version, and for each dependency edge whose id-without-
// version matches one of justCommitted, compare versions. When persist is
// true and the committed version is strictly greater than the candidate's
// recorded dependency version, a new patch version of the candidate is
// staged with the dependency edge (and its flattened entry) updated. When
// persist is false, a committed version greater-or-equal is reported as
// pending with no mutation — used to warn that a future commit will
// cascade.
func (s *Scope) BumpDependenciesVersions(candidates []bitid.BitId, justCommitted []bitid.BitId, persist bool) ([]BumpCandidate, error) {
	if len(candidates) == 0 || len(justCommitted) == 0 {
		return nil, nil
	}

	committedByKey := make(map[string]bitid.BitId, len(justCommitted))
	for _, c := range justCommitted {
		committedByKey[c.Key()] = c
	}

	var reports []BumpCandidate
	anyApplied := false

	for _, candidateID := range candidates {
		component, err := s.Sources.Get(candidateID)
		if err != nil {
			return nil, fmt.Errorf("scope: bump %s: %w", candidateID, err)
		}
		latestSemver, ok := latestSemverKey(component)
		if !ok {
			continue
		}
		version, _, err := s.Sources.GetVersion(candidateID.WithVersion(latestSemver))
		if err != nil {
			return nil, fmt.Errorf("scope: bump %s: %w", candidateID, err)
		}

		changed := false
		for i, dep := range version.Dependencies {
			depID, err := bitid.Parse(dep.ID)
			if err != nil {
				continue
			}
			committed, ok := committedByKey[depID.Key()]
			if !ok {
				continue
			}
			currentDepVersion, err := semverx.Parse(depID.Version)
			if err != nil {
				continue
			}
			committedVersion, err := semverx.Parse(committed.Version)
			if err != nil {
				continue
			}

			if persist && semverx.Greater(committedVersion, currentDepVersion) {
				version.Dependencies[i].ID = depID.WithVersion(committed.Version).String()
				replaceFlattened(version.FlattenedDependencies, depID, committed.Version)
				changed = true
			} else if !persist && semverx.GreaterOrEqual(committedVersion, currentDepVersion) {
				reports = append(reports, BumpCandidate{ID: candidateID, Pending: true})
			}
		}

		if changed {
			if _, err := s.Sources.PutAdditionalVersion(component, version, "bump dependencies versions"); err != nil {
				return nil, fmt.Errorf("scope: bump %s: %w", candidateID, err)
			}
			reports = append(reports, BumpCandidate{ID: candidateID, Pending: false})
			anyApplied = true
		}
	}

	if persist && anyApplied {
		if err := s.Persist(); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func replaceFlattened(flattened []string, depID bitid.BitId, newVersion string) {
	for i, flat := range flattened {
		flatID, err := bitid.Parse(flat)
		if err != nil {
			continue
		}
		if flatID.Box == depID.Box && flatID.Name == depID.Name && flatID.Scope == depID.Scope {
			flattened[i] = flatID.WithVersion(newVersion).String()
		}
	}
}
