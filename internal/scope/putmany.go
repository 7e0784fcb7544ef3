package scope

import (
	"context"
	"fmt"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/semverx"
	"github.com/stephensong/bit/internal/sources"
)

// PutManyOptions configures one ingest batch.
type PutManyOptions struct {
	Message      string
	ExactVersion string
	ReleaseType  semverx.ReleaseType
	Force        bool
	Verbose      bool
}

// PutMany persists a new version of every component in components,
// following spec.md §4.4.1's four-phase pipeline: topological sort, build,
// test, then sequential persist with a single final flush. Grounded on the
// teacher's sequential-with-logged-side-effects style in repo.go's commit
// helper, generalized from "one mutation, one commit" to "N components, one
// persist".
func (s *Scope) PutMany(ctx context.Context, components []ConsumerComponent, opts PutManyOptions) ([]*objtypes.Component, error) {
	if len(components) == 0 {
		return nil, nil
	}

	ordered, err := topoSortLeavesFirst(components)
	if err != nil {
		return nil, err
	}

	for _, c := range ordered {
		dists, err := c.Build(ctx, s.root)
		if err != nil {
			return nil, fmt.Errorf("scope: build %s: %w", c.ID(), err)
		}
		if builder, ok := c.(buildResultSetter); ok {
			builder.setDists(dists)
		}
		if opts.Verbose {
			fmt.Printf("bit: built %s\n", c.ID())
		}
	}

	for _, c := range ordered {
		results, err := c.RunSpecs(ctx, s.root)
		if err != nil {
			return nil, fmt.Errorf("scope: run specs %s: %w", c.ID(), err)
		}
		if results != nil && !results.Success && !opts.Force {
			return nil, biterrors.NewSpecsFailed(c.ID().String())
		}
		if setter, ok := c.(buildResultSetter); ok {
			setter.setSpecsResults(results)
		}
	}

	memo := newDepMemo()
	assigned := make(map[string]bitid.BitId, len(ordered)) // unversioned key -> assigned versioned id
	persisted := make([]*objtypes.Component, 0, len(ordered))

	for _, c := range ordered {
		deps, flattened, err := s.resolveComponentDependencies(ctx, c, assigned, memo)
		if err != nil {
			return nil, err
		}

		files := c.Files()
		staged := make([]sources.FileContent, len(files))
		copy(staged, files)

		var dists []sources.FileContent
		var specsResults *objtypes.SpecsResults
		if getter, ok := c.(buildResultGetter); ok {
			dists = getter.dists()
			specsResults = getter.specsResults()
		}

		component, err := s.Sources.AddSource(sources.AddSourceRequest{
			ID:                    c.ID(),
			Lang:                  c.Lang(),
			MainFile:              c.MainFile(),
			Files:                 staged,
			Dists:                 dists,
			Dependencies:          deps,
			FlattenedDependencies: flattened,
			Message:               opts.Message,
			Author:                s.Identity.Author,
			ExactVersion:          opts.ExactVersion,
			ReleaseType:           opts.ReleaseType,
			SpecsResults:          specsResults,
		})
		if err != nil {
			return nil, fmt.Errorf("scope: addSource %s: %w", c.ID(), err)
		}

		latest, _ := latestVersion(component)
		assigned[c.ID().Key()] = bitid.New(c.ID().Scope, c.ID().Box, c.ID().Name, latest)
		persisted = append(persisted, component)
	}

	return persisted, s.Persist()
}

// buildResultSetter/buildResultGetter let a ConsumerComponent optionally
// round-trip its build/test output back through the pipeline without
// widening the interface every implementation must satisfy; components
// that don't care about dists/specsResults can skip implementing them.
type buildResultSetter interface {
	setDists(dists []sources.FileContent)
	setSpecsResults(results *objtypes.SpecsResults)
}
type buildResultGetter interface {
	dists() []sources.FileContent
	specsResults() *objtypes.SpecsResults
}

// resolveComponentDependencies resolves c's declared dependencies to
// fully-versioned BitIds (preferring an in-batch component's just-assigned
// version over a store lookup) and computes the flattened closure.
func (s *Scope) resolveComponentDependencies(ctx context.Context, c ConsumerComponent, assigned map[string]bitid.BitId, memo *depMemo) ([]objtypes.Dependency, []string, error) {
	deps := make([]objtypes.Dependency, 0, len(c.Dependencies()))
	flattenedSet := make(map[string]struct{})
	flattened := make([]string, 0)

	for _, depID := range c.Dependencies() {
		resolvedDepID := depID
		if v, ok := assigned[depID.Key()]; ok {
			resolvedDepID = v
		} else if !depID.HasVersion() {
			_, latestID, err := s.Sources.GetVersion(depID)
			if err != nil {
				return nil, nil, err
			}
			resolvedDepID = latestID
		}

		deps = append(deps, objtypes.Dependency{ID: resolvedDepID.String()})
		if _, seen := flattenedSet[resolvedDepID.String()]; !seen {
			flattenedSet[resolvedDepID.String()] = struct{}{}
			flattened = append(flattened, resolvedDepID.String())
		}

		depVersion, _, err := s.resolveVersion(ctx, resolvedDepID, ImportOptions{Cache: true, Persist: false}, memo)
		if err != nil {
			return nil, nil, err
		}
		for _, transitive := range depVersion.FlattenedDependencies {
			if _, seen := flattenedSet[transitive]; !seen {
				flattenedSet[transitive] = struct{}{}
				flattened = append(flattened, transitive)
			}
		}
	}

	return deps, flattened, nil
}

func latestVersion(c *objtypes.Component) (string, bool) {
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

// topoSortLeavesFirst orders components so that a component with no
// in-batch dependency always precedes every component that depends on it
// (Kahn's algorithm over (box,name) edges, spec.md §4.4.1 step 1).
func topoSortLeavesFirst(components []ConsumerComponent) ([]ConsumerComponent, error) {
	byKey := make(map[string]ConsumerComponent, len(components))
	for _, c := range components {
		byKey[c.ID().Key()] = c
	}

	inDegree := make(map[string]int, len(components))
	dependents := make(map[string][]string, len(components))
	for _, c := range components {
		key := c.ID().Key()
		if _, ok := inDegree[key]; !ok {
			inDegree[key] = 0
		}
		for _, dep := range c.Dependencies() {
			depKey := dep.Key()
			if _, inBatch := byKey[depKey]; !inBatch || depKey == key {
				continue
			}
			inDegree[key]++
			dependents[depKey] = append(dependents[depKey], key)
		}
	}

	queue := make([]string, 0, len(components))
	for _, c := range components {
		key := c.ID().Key()
		if inDegree[key] == 0 {
			queue = append(queue, key)
		}
	}

	ordered := make([]ConsumerComponent, 0, len(components))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byKey[key])

		for _, dependentKey := range dependents[key] {
			inDegree[dependentKey]--
			if inDegree[dependentKey] == 0 {
				queue = append(queue, dependentKey)
			}
		}
	}

	if len(ordered) != len(components) {
		return nil, fmt.Errorf("scope: putMany: cycle detected in the batch's dependency graph")
	}
	return ordered, nil
}
