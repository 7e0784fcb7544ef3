package migrate

import (
	"path/filepath"
	"testing"

	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/objtypes"
)

func newTestStore(t *testing.T) *objectstore.Store {
	t.Helper()
	store, err := objectstore.Open(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestRunRewritesObjectsFromOlderVersion(t *testing.T) {
	store := newTestStore(t)

	v := &objtypes.Version{MainFile: "index.ts"}
	raw, err := v.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, body, err := objtypes.PeekTag(raw)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	// An explicit null packageDependencies is a shape this binary never
	// writes itself, so the 0.10.9 step has something to normalize.
	body = append(body[:len(body)-1:len(body)-1], []byte(`,"packageDependencies":null}`)...)
	oldRef, err := store.Add(objtypes.EncodeRaw(objtypes.TagVersion, body))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	result, err := Run(store, "0.10.9", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Ran || !result.Success {
		t.Fatalf("expected a successful migration run, got %+v", result)
	}
	if result.ToVersion != CurrentVersion {
		t.Fatalf("expected ToVersion %s, got %s", CurrentVersion, result.ToVersion)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("persist after migrate: %v", err)
	}

	if store.Has(oldRef) {
		t.Fatal("expected the pre-migration ref to be removed")
	}
}

func TestRunIsNoOpWhenAlreadyCurrent(t *testing.T) {
	store := newTestStore(t)

	result, err := Run(store, CurrentVersion, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Ran {
		t.Fatal("expected no-op when recorded version is already current")
	}
}

func TestRunIsNoOpOnSecondCall(t *testing.T) {
	store := newTestStore(t)

	v := &objtypes.Version{MainFile: "index.ts"}
	raw, err := v.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := store.Add(raw); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	first, err := Run(store, "0.10.9", false)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	second, err := Run(store, first.ToVersion, false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Ran {
		t.Fatal("expected the second call to be a no-op (run=false)")
	}
}
