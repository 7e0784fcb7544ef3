package objectstore

import (
	"path/filepath"
	"testing"
)

func TestAddLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}

	ref, err := store.Add([]byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatal(err)
	}

	// Staged read-through, before Persist.
	got, err := store.Load(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"hello":"world"}` {
		t.Fatalf("staged load mismatch: %s", got)
	}

	if err := store.Persist(); err != nil {
		t.Fatal(err)
	}

	// Re-open to force a disk read, not staged memory.
	store2, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	got2, err := store2.Load(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(got2) != `{"hello":"world"}` {
		t.Fatalf("disk load mismatch: %s", got2)
	}
	if !store2.Has(ref) {
		t.Fatal("expected Has to report true after persist")
	}
}

func TestAddIsIdempotentByDigest(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	r1, err := store.Add([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := store.Add([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatalf("expected identical refs for identical bytes, got %s vs %s", r1, r2)
	}
}

func TestLoadMissingFails(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(Ref("deadbeef")); err == nil {
		t.Fatal("expected error for missing ref")
	}
}

func TestRemoveThenPersistDeletes(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := store.Add([]byte("gone soon"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Persist(); err != nil {
		t.Fatal(err)
	}
	store.Remove(ref)
	if err := store.Persist(); err != nil {
		t.Fatal(err)
	}
	if store.Has(ref) {
		t.Fatal("expected ref to be gone after remove+persist")
	}
}

func TestPersistIsAtomicAcrossRestart(t *testing.T) {
	// A crash before Persist returns must leave disk state equal to the
	// prior successful persist: staged-but-unpersisted adds are lost.
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := store.Add([]byte("never persisted"))
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a crash: open a fresh Store over the same directory without
	// calling Persist on the first one.
	store2, err := Open(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatal(err)
	}
	if store2.Has(ref) {
		t.Fatal("unpersisted object must not be visible to a fresh Store")
	}
}
