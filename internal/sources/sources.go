// Package sources is the higher-level CRUD layer over logical components:
// add new source revisions, merge incoming object bundles, clean, and fetch
// many components by identity. Grounded on the teacher's Repository
// (repo.go): CreateNode/UpdateNode/GetNode/DeleteNode over an ObjectStore
// plus a name index, generalized from single mutable nodes to the
// Component/Version/Source/Symlink variant set and its version-catalog
// semantics.
package sources

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/semverx"
)

// ComponentObjects is a component plus every Version it catalogs plus every
// Source those versions reference — the transitive closure restricted to
// blobs; BitId dependencies are not inlined (spec.md §4.3).
type ComponentObjects struct {
	Component *objtypes.Component
	Versions  map[string]*objtypes.Version            // semver -> Version
	Sources   map[objectstore.Ref]*objtypes.Source     // Ref -> Source
}

// Repository is the Sources Repository façade over one Store.
type Repository struct {
	store *objectstore.Store
	index *nameIndex
}

// Open creates a Repository backed by store, with its name index rooted at
// <scopeDir>/refs (sibling of <scopeDir>/objects, matching the teacher's
// refs/ directory next to objects/).
func Open(store *objectstore.Store, scopeDir string) (*Repository, error) {
	idx, err := newNameIndex(filepath.Join(scopeDir, "refs"))
	if err != nil {
		return nil, err
	}
	return &Repository{store: store, index: idx}, nil
}

// resolve follows Symlink indirection until it lands on a Component (or
// fails to find one at all). It bounds the chase to avoid a cycle of
// symlinks looping forever, though spec.md's invariants forbid that state
// from ever arising.
func (r *Repository) resolve(id bitid.BitId) (*objtypes.Component, bitid.BitId, error) {
	current := id
	for hops := 0; hops < 8; hops++ {
		ref, ok := r.index.get(current.FullKey())
		if !ok {
			return nil, current, biterrors.NewComponentNotFound(id.String())
		}
		raw, err := r.store.Load(ref)
		if err != nil {
			return nil, current, fmt.Errorf("sources: load %s: %w", ref, err)
		}
		obj, err := objtypes.Decode(raw)
		if err != nil {
			return nil, current, err
		}
		switch v := obj.(type) {
		case *objtypes.Component:
			return v, current, nil
		case *objtypes.Symlink:
			current = bitid.New(v.RealScope, v.Box, v.Name, current.Version)
		default:
			return nil, current, biterrors.NewUnknownObjectType(string(obj.Tag()))
		}
	}
	return nil, current, biterrors.NewComponentNotFound(id.String())
}

// Get resolves id to its current Component, following Symlink indirection.
func (r *Repository) Get(id bitid.BitId) (*objtypes.Component, error) {
	c, _, err := r.resolve(id)
	return c, err
}

// GetResult pairs a requested id with what was found for it, preserving
// input order for GetMany.
type GetResult struct {
	ID        bitid.BitId
	Component *objtypes.Component
}

// GetMany resolves every id, preserving input order. A miss leaves
// Component nil rather than aborting the whole batch.
func (r *Repository) GetMany(ids []bitid.BitId) []GetResult {
	out := make([]GetResult, len(ids))
	for i, id := range ids {
		c, err := r.Get(id)
		if err != nil {
			out[i] = GetResult{ID: id}
			continue
		}
		out[i] = GetResult{ID: id, Component: c}
	}
	return out
}

// GetObjects returns the Component plus every Version it lists plus every
// Source those versions reference.
func (r *Repository) GetObjects(id bitid.BitId) (*ComponentObjects, error) {
	c, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return r.objectsFor(c)
}

func (r *Repository) objectsFor(c *objtypes.Component) (*ComponentObjects, error) {
	out := &ComponentObjects{
		Component: c,
		Versions:  make(map[string]*objtypes.Version, len(c.Versions)),
		Sources:   make(map[objectstore.Ref]*objtypes.Source),
	}
	for semver, refStr := range c.Versions {
		ref := objectstore.Ref(refStr)
		raw, err := r.store.Load(ref)
		if err != nil {
			return nil, fmt.Errorf("sources: load version %s@%s: %w", c.Name, semver, err)
		}
		v, err := objtypes.DecodeVersion(raw)
		if err != nil {
			return nil, err
		}
		out.Versions[semver] = v

		for _, f := range v.Files {
			if err := r.loadSourceInto(out, objectstore.Ref(f.File)); err != nil {
				return nil, err
			}
		}
		for _, f := range v.Dists {
			if err := r.loadSourceInto(out, objectstore.Ref(f.File)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *Repository) loadSourceInto(out *ComponentObjects, ref objectstore.Ref) error {
	if _, ok := out.Sources[ref]; ok {
		return nil
	}
	raw, err := r.store.Load(ref)
	if err != nil {
		return fmt.Errorf("sources: load source %s: %w", ref, err)
	}
	s, err := objtypes.DecodeSource(raw)
	if err != nil {
		return err
	}
	out.Sources[ref] = s
	return nil
}

// AddSourceRequest is the write primitive's input: a new revision of one
// component.
type AddSourceRequest struct {
	ID                    bitid.BitId // unversioned; scope may be empty (local)
	Lang                  string
	BindingPrefix         string
	MainFile              string
	Files                 []FileContent
	Dists                 []FileContent
	Dependencies          []objtypes.Dependency
	FlattenedDependencies []string
	PackageDependencies   map[string]string
	Compiler              string
	Tester                string
	Message               string
	Author                string
	ExactVersion          string
	ReleaseType           semverx.ReleaseType
	SpecsResults          *objtypes.SpecsResults
}

// FileContent is a file to be content-addressed and attached to the new
// Version.
type FileContent struct {
	Name         string
	RelativePath string
	Content      []byte
}

// AddSource is the write primitive (spec.md §4.3):
//  1. load or create the Component for req.ID
//  2. compute the next version
//  3. build a new Version referencing freshly staged Source blobs
//  4. stage the Sources, the Version, and the updated Component
//
// Nothing is durable until the caller calls Repository.Persist.
func (r *Repository) AddSource(req AddSourceRequest) (*objtypes.Component, error) {
	component, _, err := r.resolve(req.ID)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		component = &objtypes.Component{
			Scope:         req.ID.Scope,
			Box:           req.ID.Box,
			Name:          req.ID.Name,
			Versions:      map[string]string{},
			Lang:          req.Lang,
			BindingPrefix: req.BindingPrefix,
		}
	}

	next, err := r.nextVersion(component, req.ExactVersion, req.ReleaseType)
	if err != nil {
		return nil, err
	}

	files, err := r.stageFiles(req.Files)
	if err != nil {
		return nil, err
	}
	dists, err := r.stageFiles(req.Dists)
	if err != nil {
		return nil, err
	}

	version := &objtypes.Version{
		MainFile:              req.MainFile,
		Files:                 files,
		Dists:                 dists,
		Dependencies:          dedupDependencies(req.Dependencies),
		FlattenedDependencies: dedupStrings(req.FlattenedDependencies),
		PackageDependencies:   req.PackageDependencies,
		Compiler:              req.Compiler,
		Tester:                req.Tester,
		Log: objtypes.LogEntry{
			Message: req.Message,
			Date:    time.Now().UTC(),
			Author:  req.Author,
		},
		SpecsResults: req.SpecsResults,
	}

	versionBytes, err := version.Encode()
	if err != nil {
		return nil, err
	}
	versionRef, err := r.store.Add(versionBytes)
	if err != nil {
		return nil, err
	}

	component.Versions[next.String()] = string(versionRef)

	return component, r.stageComponent(component)
}

// PutAdditionalVersion stages an already-built Version under the next
// version number for component, used by the auto-bump pipeline (spec.md
// §4.4.5) which constructs the Version itself (with the bumped dependency
// edge already applied) rather than going through AddSource's file-staging
// path.
func (r *Repository) PutAdditionalVersion(component *objtypes.Component, version *objtypes.Version, message string) (*objtypes.Component, error) {
	next, err := r.nextVersion(component, "", semverx.Patch)
	if err != nil {
		return nil, err
	}
	version.Log = objtypes.LogEntry{Message: message, Date: time.Now().UTC()}

	raw, err := version.Encode()
	if err != nil {
		return nil, err
	}
	ref, err := r.store.Add(raw)
	if err != nil {
		return nil, err
	}
	if component.Versions == nil {
		component.Versions = map[string]string{}
	}
	component.Versions[next.String()] = string(ref)
	return component, r.stageComponent(component)
}

func (r *Repository) nextVersion(component *objtypes.Component, exactVersion string, releaseType semverx.ReleaseType) (semverx.Version, error) {
	existing := make([]semverx.Version, 0, len(component.Versions))
	for semver := range component.Versions {
		v, err := semverx.Parse(semver)
		if err != nil {
			return semverx.Version{}, fmt.Errorf("sources: stored version %q is not valid semver: %w", semver, err)
		}
		existing = append(existing, v)
	}
	latest, hasLatest := semverx.Latest(existing)

	if exactVersion != "" {
		exact, err := semverx.Parse(exactVersion)
		if err != nil {
			return semverx.Version{}, err
		}
		if hasLatest && !semverx.Greater(exact, latest) {
			return semverx.Version{}, fmt.Errorf("sources: exact version %s must be greater than existing latest %s", exactVersion, latest)
		}
		return exact, nil
	}

	if !hasLatest {
		return semverx.Zero, nil
	}
	return semverx.Bump(latest, releaseType)
}

func (r *Repository) stageFiles(files []FileContent) ([]objtypes.VersionFile, error) {
	out := make([]objtypes.VersionFile, 0, len(files))
	for _, f := range files {
		src := &objtypes.Source{Content: f.Content}
		raw, err := src.Encode()
		if err != nil {
			return nil, err
		}
		ref, err := r.store.Add(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, objtypes.VersionFile{
			Name:         f.Name,
			RelativePath: f.RelativePath,
			File:         string(ref),
		})
	}
	return out, nil
}

func (r *Repository) stageComponent(component *objtypes.Component) error {
	raw, err := component.Encode()
	if err != nil {
		return err
	}
	ref, err := r.store.Add(raw)
	if err != nil {
		return err
	}
	key := bitid.New(component.Scope, component.Box, component.Name, "").FullKey()
	return r.index.set(key, ref)
}

// Merge merges an incoming bundle into the local store: for each object, if
// absent, add; if present with the same ref, skip; if a Component with the
// same id, union the versions maps, failing with ErrMergeConflict if a
// version key present on both sides maps to a different ref.
func (r *Repository) Merge(incoming *ComponentObjects, ignoreMissingObjects bool) error {
	for ref, src := range incoming.Sources {
		if r.store.Has(ref) {
			continue
		}
		raw, err := src.Encode()
		if err != nil {
			return err
		}
		if _, err := r.store.Add(raw); err != nil {
			return err
		}
	}
	for semver, v := range incoming.Versions {
		raw, err := v.Encode()
		if err != nil {
			return err
		}
		ref, err := objectstore.ComputeRef(raw)
		if err != nil {
			return err
		}
		if !r.store.Has(ref) {
			for _, f := range v.Files {
				if _, ok := incoming.Sources[objectstore.Ref(f.File)]; !ok && !ignoreMissingObjects && !r.store.Has(objectstore.Ref(f.File)) {
					return fmt.Errorf("sources: merge %s@%s: missing source %s", incoming.Component.Name, semver, f.File)
				}
			}
			if _, err := r.store.Add(raw); err != nil {
				return err
			}
		}
	}

	incomingID := bitid.New(incoming.Component.Scope, incoming.Component.Box, incoming.Component.Name, "")
	existing, _, err := r.resolve(incomingID)
	if err != nil && !isNotFound(err) {
		return err
	}

	merged := incoming.Component
	if existing != nil {
		merged = existing
		if merged.Versions == nil {
			merged.Versions = map[string]string{}
		}
		for semver, ref := range incoming.Component.Versions {
			if existingRef, ok := merged.Versions[semver]; ok && existingRef != ref {
				return fmt.Errorf("sources: merge %s: %w: version %s has ref %s locally, %s incoming",
					incomingID.String(), biterrors.ErrMergeConflict, semver, existingRef, ref)
			}
			merged.Versions[semver] = ref
		}
		merged.Deprecated = merged.Deprecated || incoming.Component.Deprecated
	}

	return r.stageComponent(merged)
}

// Clean removes either one version (deleteAllVersions=false) or the whole
// entry (deleteAllVersions=true) from the catalog. It operates directly on
// whatever object id's own (scope,box,name) key names — a Component or a
// dangling Symlink — without following Symlink indirection the way Get
// does: removing a local redirect is itself a legitimate clean, distinct
// from resolving through it. The caller is responsible for calling
// Repository.Persist afterward.
func (r *Repository) Clean(id bitid.BitId, deleteAllVersions bool) error {
	key := id.WithoutVersion().FullKey()
	ref, ok := r.index.get(key)
	if !ok {
		return biterrors.NewComponentNotFound(id.String())
	}
	raw, err := r.store.Load(ref)
	if err != nil {
		return fmt.Errorf("sources: clean: load %s: %w", ref, err)
	}
	obj, err := objtypes.Decode(raw)
	if err != nil {
		return err
	}

	component, ok := obj.(*objtypes.Component)
	if !ok {
		r.store.Remove(ref)
		return r.index.delete(key)
	}

	if deleteAllVersions || len(component.Versions) <= 1 {
		for _, vref := range component.Versions {
			r.store.Remove(objectstore.Ref(vref))
		}
		r.store.Remove(ref)
		return r.index.delete(key)
	}

	if !id.HasVersion() {
		return fmt.Errorf("sources: clean: a specific version is required unless deleteAllVersions is set")
	}
	vref, ok := component.Versions[id.Version]
	if !ok {
		return biterrors.NewComponentNotFound(id.String())
	}
	delete(component.Versions, id.Version)
	r.store.Remove(objectstore.Ref(vref))
	return r.stageComponent(component)
}

// Save stages an already-modified Component, for callers (deprecateMany)
// that mutate a field directly rather than going through AddSource.
func (r *Repository) Save(component *objtypes.Component) error {
	return r.stageComponent(component)
}

// SetSymlink stages a Symlink redirecting the local (box,name) to realScope,
// replacing whatever (Component or prior Symlink) previously occupied that
// key — the export pipeline's "swap Component for Symlink" step (spec.md §3).
func (r *Repository) SetSymlink(box, name, realScope string) error {
	symlink := &objtypes.Symlink{Box: box, Name: name, RealScope: realScope}
	raw, err := symlink.Encode()
	if err != nil {
		return err
	}
	ref, err := r.store.Add(raw)
	if err != nil {
		return err
	}
	key := bitid.New("", box, name, "").FullKey()
	return r.index.set(key, ref)
}

// GetVersion resolves id to its Component (following Symlink indirection),
// picks the requested version (or the latest, when id carries none), and
// loads that Version object. It returns id re-keyed to the component's
// resolved scope and pinned to the version actually selected, rather than
// mutating the caller's id in place (spec.md §9's guidance against mutable
// BitId.version assignment during resolution).
func (r *Repository) GetVersion(id bitid.BitId) (*objtypes.Version, bitid.BitId, error) {
	component, resolvedID, err := r.resolve(id)
	if err != nil {
		return nil, id, err
	}

	version := id.Version
	if version == "" {
		parsed := make([]semverx.Version, 0, len(component.Versions))
		bySemver := make(map[string]string, len(component.Versions))
		for sv := range component.Versions {
			v, err := semverx.Parse(sv)
			if err != nil {
				return nil, id, fmt.Errorf("sources: stored version %q is not valid semver: %w", sv, err)
			}
			parsed = append(parsed, v)
			bySemver[v.String()] = sv
		}
		latest, ok := semverx.Latest(parsed)
		if !ok {
			return nil, id, biterrors.NewComponentNotFound(id.String())
		}
		version = bySemver[latest.String()]
	}

	ref, ok := component.Versions[version]
	if !ok {
		return nil, id, biterrors.NewComponentNotFound(id.WithVersion(version).String())
	}
	raw, err := r.store.Load(objectstore.Ref(ref))
	if err != nil {
		return nil, id, fmt.Errorf("sources: load version %s: %w", ref, err)
	}
	v, err := objtypes.DecodeVersion(raw)
	if err != nil {
		return nil, id, err
	}

	resolved := bitid.New(resolvedID.Scope, component.Box, component.Name, version)
	return v, resolved, nil
}

// Persist flushes every staged object first, then the name index's staged
// pointer mutations — in that order, so a pointer file is never written
// durably before the object it points at (spec.md §5's crash-atomicity
// guarantee). Callers must go through this instead of calling Store.Persist
// directly, or index mutations staged by AddSource/Merge/Clean/SetSymlink
// never become durable.
func (r *Repository) Persist() error {
	if err := r.store.Persist(); err != nil {
		return err
	}
	return r.index.flush()
}

// ListComponentKeys returns every (scope/box/name) key currently indexed,
// including symlinks, matching spec.md §4.1's
// listComponents(includeSymlinks=true).
func (r *Repository) ListComponentKeys() ([]string, error) {
	keys, err := r.index.list()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, biterrors.ErrComponentNotFound)
}

func dedupDependencies(deps []objtypes.Dependency) []objtypes.Dependency {
	seen := make(map[string]bool, len(deps))
	out := make([]objtypes.Dependency, 0, len(deps))
	for _, d := range deps {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

func dedupStrings(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
