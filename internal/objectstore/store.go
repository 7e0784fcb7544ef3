// Package objectstore is the content-addressed object repository: a flat,
// append-mostly store of immutable blobs keyed by Ref, with a write-back
// buffer of staged mutations that only become durable when Persist is
// called. Grounded on the teacher's dag.ObjectStore (Put/Get/Has over a
// flat directory with atomic file writes), extended with the staged-buffer
// and compression discipline spec.md §4.1/§5 require.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/objtypes"
)

// Store manages Ref-addressed immutable objects under <scopeDir>/objects.
// It is not safe for concurrent Persist calls; concurrent Add/Load calls
// are safe.
type Store struct {
	dir string

	mu      sync.Mutex
	staged  map[Ref][]byte    // pending adds: ref -> canonical (uncompressed) bytes
	removed map[Ref]struct{}  // pending removes
	cmp     compressor
}

// Open creates a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create dir: %w", err)
	}
	return &Store{
		dir:     dir,
		staged:  make(map[Ref][]byte),
		removed: make(map[Ref]struct{}),
	}, nil
}

// pathFor splits ref into a 2-char prefix subdirectory plus remainder, per
// spec.md §6's on-disk layout.
func (s *Store) pathFor(ref Ref) string {
	str := string(ref)
	if len(str) <= 2 {
		return filepath.Join(s.dir, str)
	}
	return filepath.Join(s.dir, str[:2], str[2:])
}

// Add stages an object for the next Persist, computing its Ref from the
// canonical (uncompressed) bytes. Idempotent by digest: re-adding identical
// bytes is a no-op beyond recomputing the same Ref.
func (s *Store) Add(canonical []byte) (Ref, error) {
	ref, err := ComputeRef(canonical)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	delete(s.removed, ref)
	s.staged[ref] = canonical
	s.mu.Unlock()
	return ref, nil
}

// AddMany stages every object, returning refs in input order.
func (s *Store) AddMany(items [][]byte) ([]Ref, error) {
	refs := make([]Ref, len(items))
	for i, item := range items {
		ref, err := s.Add(item)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	return refs, nil
}

// Remove stages ref for deletion on the next Persist.
func (s *Store) Remove(ref Ref) {
	s.mu.Lock()
	delete(s.staged, ref)
	s.removed[ref] = struct{}{}
	s.mu.Unlock()
}

// RemoveMany stages every ref for deletion.
func (s *Store) RemoveMany(refs []Ref) {
	for _, ref := range refs {
		s.Remove(ref)
	}
}

// Has reports whether ref is staged or already durable.
func (s *Store) Has(ref Ref) bool {
	s.mu.Lock()
	_, staged := s.staged[ref]
	_, gone := s.removed[ref]
	s.mu.Unlock()
	if gone {
		return false
	}
	if staged {
		return true
	}
	_, err := os.Stat(s.pathFor(ref))
	return err == nil
}

// Load is a read-through get: staged bytes first, then disk. Misses return
// ErrObjectNotFound.
func (s *Store) Load(ref Ref) ([]byte, error) {
	s.mu.Lock()
	if _, gone := s.removed[ref]; gone {
		s.mu.Unlock()
		return nil, biterrors.NewObjectNotFound(string(ref))
	}
	if data, ok := s.staged[ref]; ok {
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	compressed, err := os.ReadFile(s.pathFor(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, biterrors.NewObjectNotFound(string(ref))
		}
		return nil, fmt.Errorf("objectstore: read %s: %w", ref, err)
	}
	data, err := s.cmp.decompress(compressed)
	if err != nil {
		return nil, biterrors.NewCorruptedObject(string(ref))
	}
	got, err := ComputeRef(data)
	if err != nil || got != ref {
		return nil, biterrors.NewCorruptedObject(string(ref))
	}
	return data, nil
}

// LoadRawObject is Load plus a peek at the envelope's type tag, without
// constructing the full typed object — the form the migration runner needs
// since it transforms raw per-type bytes rather than decoded Go values.
func (s *Store) LoadRawObject(ref Ref) (objtypes.Tag, []byte, error) {
	raw, err := s.Load(ref)
	if err != nil {
		return "", nil, err
	}
	return objtypes.PeekTag(raw)
}

// ListRawObjects scans the on-disk directory tree and returns every
// persisted Ref (staged-only objects are not yet "raw objects" until
// Persist makes them durable).
func (s *Store) ListRawObjects() ([]Ref, error) {
	var refs []Ref
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("objectstore: list: %w", err)
	}
	for _, prefixEntry := range entries {
		if !prefixEntry.IsDir() {
			continue
		}
		prefix := prefixEntry.Name()
		sub := filepath.Join(s.dir, prefix)
		subEntries, err := os.ReadDir(sub)
		if err != nil {
			return nil, fmt.Errorf("objectstore: list %s: %w", sub, err)
		}
		for _, e := range subEntries {
			if e.IsDir() {
				continue
			}
			refs = append(refs, Ref(prefix+e.Name()))
		}
	}
	return refs, nil
}

// Persist flushes staged additions and removals to disk. The first write
// failure aborts with no further mutation attempted and returns a wrapped
// error, so a failed Persist call never reports success while leaving an
// add un-written. Additions written before the failure stay on disk, and
// the staged buffer is cleared whether or not Persist succeeds.
// Removals are best-effort cleanup performed after every addition has
// landed; a removal failure is not fatal since the object being removed is
// already unreferenced by definition of the caller invoking Remove.
func (s *Store) Persist() error {
	s.mu.Lock()
	staged := s.staged
	removed := s.removed
	s.staged = make(map[Ref][]byte)
	s.removed = make(map[Ref]struct{})
	s.mu.Unlock()

	for ref, data := range staged {
		path := s.pathFor(ref)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("objectstore: persist %s: create dir: %w", ref, err)
		}
		compressed, err := s.cmp.compress(data)
		if err != nil {
			return fmt.Errorf("objectstore: persist %s: %w", ref, err)
		}
		if err := safeWrite(path, compressed, 0o644); err != nil {
			return fmt.Errorf("objectstore: persist %s: %w", ref, err)
		}
	}

	for ref := range removed {
		if err := os.Remove(s.pathFor(ref)); err != nil && !os.IsNotExist(err) {
			fmt.Printf("bit: warning: cleanup of %s failed: %v\n", ref, err)
		}
	}

	return nil
}

// Dir returns the objects directory root, for callers (migration) that need
// to reason about layout directly.
func (s *Store) Dir() string { return s.dir }
