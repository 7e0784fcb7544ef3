package scope

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/remotes"
	"github.com/stephensong/bit/internal/semverx"
	"github.com/stephensong/bit/internal/sources"
)

// memoryRemote is a fake remotes.Remote that keeps pushed bundles in
// memory and serves them back on Fetch, standing in for an actual network
// remote across the scenario tests.
type memoryRemote struct {
	bundles map[string]*sources.ComponentObjects // (box,name) key -> bundle
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{bundles: make(map[string]*sources.ComponentObjects)}
}

func (m *memoryRemote) Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error) {
	out := make([]*sources.ComponentObjects, 0, len(ids))
	for _, id := range ids {
		if bundle, ok := m.bundles[id.Key()]; ok {
			out = append(out, bundle)
		}
	}
	return out, nil
}

func (m *memoryRemote) PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error) {
	ids := make([]string, 0, len(bundles))
	for _, b := range bundles {
		key := b.Component.Box + "/" + b.Component.Name
		m.bundles[key] = b
		ids = append(ids, key)
	}
	return ids, nil
}

func newTestScope(t *testing.T, name string, global map[string]remotes.Remote) *Scope {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	s, err := Open(dir, global, Hooks{})
	if err != nil {
		t.Fatalf("open scope %s: %v", name, err)
	}
	s.Meta.Name = name
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestS1IngestExportReimport exercises spec.md §8's S1 scenario end to end:
// put a dependency-free component, export it to a named remote, and import
// it by its remote-qualified id into a fresh scope.
func TestS1IngestExportReimport(t *testing.T) {
	remote := newMemoryRemote()
	global := map[string]remotes.Remote{"remote1": remote}

	scopeA := newTestScope(t, "scopeA", global)

	srcDir := t.TempDir()
	writeFile(t, srcDir, "index.js", "hello")

	button, err := NewFSComponent(bitid.New("", "ui", "button", ""), nil, "js", "index.js", srcDir)
	if err != nil {
		t.Fatalf("NewFSComponent: %v", err)
	}

	components, err := scopeA.PutMany(context.Background(), []ConsumerComponent{button}, PutManyOptions{
		Message:     "initial",
		ReleaseType: semverx.Patch,
	})
	if err != nil {
		t.Fatalf("PutMany: %v", err)
	}
	if len(components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(components))
	}
	if _, ok := components[0].Versions["0.0.1"]; !ok {
		t.Fatalf("expected version 0.0.1, got %+v", components[0].Versions)
	}

	exported, err := scopeA.ExportMany(context.Background(), []bitid.BitId{bitid.New("", "ui", "button", "")}, "remote1")
	if err != nil {
		t.Fatalf("ExportMany: %v", err)
	}
	if len(exported) != 1 || exported[0].Scope != "remote1" {
		t.Fatalf("expected exported id scoped to remote1, got %+v", exported)
	}

	local, err := scopeA.Sources.Get(bitid.New("", "ui", "button", ""))
	if err != nil {
		t.Fatalf("Get after export: %v", err)
	}
	_ = local // resolve follows the symlink; the assertion below checks the symlink itself

	symlinked, resolvedID, err := scopeA.Sources.GetVersion(bitid.New("", "ui", "button", "0.0.1"))
	if err != nil {
		t.Fatalf("GetVersion after export: %v", err)
	}
	if resolvedID.Scope != "remote1" {
		t.Fatalf("expected resolution through the symlink to land on scope remote1, got %+v", resolvedID)
	}
	if symlinked.MainFile != "index.js" {
		t.Fatalf("expected mainFile preserved across export, got %q", symlinked.MainFile)
	}

	scopeB := newTestScope(t, "scopeB", global)
	results, err := scopeB.ImportMany(context.Background(), []bitid.BitId{bitid.New("remote1", "ui", "button", "0.0.1")}, ImportOptions{Cache: true, Persist: true})
	if err != nil {
		t.Fatalf("ImportMany: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 import result, got %d", len(results))
	}
	if len(results[0].Version.FlattenedDependencies) != 0 {
		t.Fatalf("expected no flattened deps, got %v", results[0].Version.FlattenedDependencies)
	}

	materialized, err := scopeB.Sources.Get(bitid.New("remote1", "ui", "button", ""))
	if err != nil {
		t.Fatalf("expected button materialized locally in scope B: %v", err)
	}
	if materialized.Box != "ui" || materialized.Name != "button" {
		t.Fatalf("unexpected materialized component: %+v", materialized)
	}
}

// TestS2DependencyCascade exercises S2: bumping a dependency's version and
// propagating it into a dependent via bumpDependenciesVersions.
func TestS2DependencyCascade(t *testing.T) {
	s := newTestScope(t, "scopeA", nil)

	bDir := t.TempDir()
	writeFile(t, bDir, "b.js", "b v1")
	bComponent, err := NewFSComponent(bitid.New("", "ui", "b", ""), nil, "js", "b.js", bDir)
	if err != nil {
		t.Fatalf("NewFSComponent b: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{bComponent}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany b: %v", err)
	}

	aDir := t.TempDir()
	writeFile(t, aDir, "a.js", "a v1")
	aComponent, err := NewFSComponent(bitid.New("", "ui", "a", ""), []bitid.BitId{bitid.New("", "ui", "b", "0.0.1")}, "js", "a.js", aDir)
	if err != nil {
		t.Fatalf("NewFSComponent a: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{aComponent}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany a: %v", err)
	}

	bDir2 := t.TempDir()
	writeFile(t, bDir2, "b.js", "b v2")
	bComponentV2, err := NewFSComponent(bitid.New("", "ui", "b", ""), nil, "js", "b.js", bDir2)
	if err != nil {
		t.Fatalf("NewFSComponent b v2: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{bComponentV2}, PutManyOptions{ReleaseType: semverx.Minor}); err != nil {
		t.Fatalf("PutMany b v2: %v", err)
	}

	reports, err := s.BumpDependenciesVersions(
		[]bitid.BitId{bitid.New("", "ui", "a", "")},
		[]bitid.BitId{bitid.New("", "ui", "b", "0.1.0")},
		true,
	)
	if err != nil {
		t.Fatalf("BumpDependenciesVersions: %v", err)
	}
	if len(reports) != 1 || reports[0].Pending {
		t.Fatalf("expected one applied bump report, got %+v", reports)
	}

	updated, err := s.Sources.Get(bitid.New("", "ui", "a", ""))
	if err != nil {
		t.Fatalf("Get a after bump: %v", err)
	}
	if _, ok := updated.Versions["0.0.2"]; !ok {
		t.Fatalf("expected a new version 0.0.2 for a, got %+v", updated.Versions)
	}

	version, _, err := s.Sources.GetVersion(bitid.New("", "ui", "a", "0.0.2"))
	if err != nil {
		t.Fatalf("GetVersion a@0.0.2: %v", err)
	}
	if version.Dependencies[0].ID != bitid.New("", "ui", "b", "0.1.0").String() {
		t.Fatalf("expected dependency pinned to 0.1.0, got %s", version.Dependencies[0].ID)
	}
}

// TestS3ForceRemoveWithDependents exercises S3: removeMany refuses without
// force when a dependent exists, and succeeds with force, notifying the
// postRemove hook.
func TestS3ForceRemoveWithDependents(t *testing.T) {
	var hookIDs []string
	s := newTestScope(t, "scopeA", nil)
	s.Hooks.PostRemove = func(ids []string) { hookIDs = ids }

	bDir := t.TempDir()
	writeFile(t, bDir, "b.js", "b")
	bComponent, err := NewFSComponent(bitid.New("", "ui", "b", ""), nil, "js", "b.js", bDir)
	if err != nil {
		t.Fatalf("NewFSComponent b: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{bComponent}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany b: %v", err)
	}

	aDir := t.TempDir()
	writeFile(t, aDir, "a.js", "a")
	aComponent, err := NewFSComponent(bitid.New("", "ui", "a", ""), []bitid.BitId{bitid.New("", "ui", "b", "0.0.1")}, "js", "a.js", aDir)
	if err != nil {
		t.Fatalf("NewFSComponent a: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{aComponent}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany a: %v", err)
	}

	result, err := s.RemoveMany([]bitid.BitId{bitid.New("", "ui", "b", "")}, false)
	if err != nil {
		t.Fatalf("RemoveMany without force: %v", err)
	}
	if len(result.DependentBits) == 0 {
		t.Fatal("expected dependents to block the removal")
	}
	if _, err := s.Sources.Get(bitid.New("", "ui", "b", "")); err != nil {
		t.Fatal("expected b to remain after a blocked removal")
	}

	result, err = s.RemoveMany([]bitid.BitId{bitid.New("", "ui", "b", "")}, true)
	if err != nil {
		t.Fatalf("RemoveMany with force: %v", err)
	}
	if len(result.Removed) != 1 {
		t.Fatalf("expected b removed, got %+v", result)
	}
	if _, err := s.Sources.Get(bitid.New("", "ui", "b", "")); err == nil {
		t.Fatal("expected b to be gone after forced removal")
	}
	if len(hookIDs) != 1 || hookIDs[0] != "ui/b" {
		t.Fatalf("expected postRemove hook invoked with [ui/b], got %v", hookIDs)
	}
}

// failingSpecsComponent always reports a failed test run, for S4.
type failingSpecsComponent struct {
	*FSComponent
}

func (c *failingSpecsComponent) RunSpecs(ctx context.Context, scopeRoot string) (*objtypes.SpecsResults, error) {
	return &objtypes.SpecsResults{Success: false, Output: "1 failing"}, nil
}

// TestS4SpecsFailureAbortsIngest exercises S4: a failing specs run with
// force=false aborts before any persistence.
func TestS4SpecsFailureAbortsIngest(t *testing.T) {
	s := newTestScope(t, "scopeA", nil)

	dir := t.TempDir()
	writeFile(t, dir, "c.js", "c")
	base, err := NewFSComponent(bitid.New("", "ui", "c", ""), nil, "js", "c.js", dir)
	if err != nil {
		t.Fatalf("NewFSComponent: %v", err)
	}
	component := &failingSpecsComponent{FSComponent: base}

	_, err = s.PutMany(context.Background(), []ConsumerComponent{component}, PutManyOptions{ReleaseType: semverx.Patch, Force: false})
	if err == nil {
		t.Fatal("expected PutMany to fail when specs fail and force is false")
	}

	if _, getErr := s.Sources.Get(bitid.New("", "ui", "c", "")); getErr == nil {
		t.Fatal("expected no component persisted after a specs failure")
	}
}

// TestS5ResetDropsLatestVersion exercises S5: reset on a two-version
// component drops only the latest version and notifies postReset.
func TestS5ResetDropsLatestVersion(t *testing.T) {
	var resetID string
	s := newTestScope(t, "scopeA", nil)
	s.Hooks.PostReset = func(id string) { resetID = id }

	dir := t.TempDir()
	writeFile(t, dir, "c.js", "v1")
	v1, err := NewFSComponent(bitid.New("", "ui", "c", ""), nil, "js", "c.js", dir)
	if err != nil {
		t.Fatalf("NewFSComponent v1: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{v1}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany v1: %v", err)
	}

	dir2 := t.TempDir()
	writeFile(t, dir2, "c.js", "v2")
	v2, err := NewFSComponent(bitid.New("", "ui", "c", ""), nil, "js", "c.js", dir2)
	if err != nil {
		t.Fatalf("NewFSComponent v2: %v", err)
	}
	if _, err := s.PutMany(context.Background(), []ConsumerComponent{v2}, PutManyOptions{ReleaseType: semverx.Patch}); err != nil {
		t.Fatalf("PutMany v2: %v", err)
	}

	component, err := s.Sources.Get(bitid.New("", "ui", "c", ""))
	if err != nil {
		t.Fatalf("Get before reset: %v", err)
	}
	if len(component.Versions) != 2 {
		t.Fatalf("expected 2 versions before reset, got %+v", component.Versions)
	}

	if err := s.Reset(bitid.New("", "ui", "c", "")); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	component, err = s.Sources.Get(bitid.New("", "ui", "c", ""))
	if err != nil {
		t.Fatalf("Get after reset: %v", err)
	}
	if len(component.Versions) != 1 {
		t.Fatalf("expected 1 version after reset, got %+v", component.Versions)
	}
	if _, ok := component.Versions["0.0.1"]; !ok {
		t.Fatalf("expected 0.0.1 to survive reset, got %+v", component.Versions)
	}
	if resetID == "" {
		t.Fatal("expected postReset hook to fire")
	}
}
