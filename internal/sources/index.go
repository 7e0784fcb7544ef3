package sources

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/multiformats/go-multibase"

	"github.com/stephensong/bit/internal/objectstore"
)

// nameIndex maps a BitId's (scope,box,name) key (BitId.FullKey) to the Ref
// of the Component (or Symlink) object currently published under that name. Grounded on the
// teacher's RefStore: one small file per id under a flat directory, with an
// escaping scheme so the logical key is safe as a filename.
//
// Like objectstore.Store, nameIndex buffers its mutations in memory and only
// writes them to disk when flush is called: set/delete must not touch disk
// synchronously, since a pointer file landing durably before the Ref it
// names does would let a crash leave the index pointing at an object that
// doesn't exist on restart (spec.md §5's crash-atomicity guarantee, §8
// invariant 6). Repository.Persist flushes the Store first and this index
// second, so a pointer is never written before its target object.
//
// spec.md §3 calls this "the named index" that Component persistence
// rewrites atomically alongside the object itself.
type nameIndex struct {
	dir string

	mu      sync.Mutex
	staged  map[string]objectstore.Ref
	removed map[string]struct{}
}

func newNameIndex(dir string) (*nameIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sources: create index dir: %w", err)
	}
	return &nameIndex{
		dir:     dir,
		staged:  make(map[string]objectstore.Ref),
		removed: make(map[string]struct{}),
	}, nil
}

func indexFilename(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func indexKeyFromFilename(name string) string {
	return strings.ReplaceAll(name, "__", "/")
}

func (idx *nameIndex) path(key string) string {
	return filepath.Join(idx.dir, indexFilename(key))
}

// set stages key -> ref in memory; it becomes durable on the next flush.
func (idx *nameIndex) set(key string, ref objectstore.Ref) error {
	idx.mu.Lock()
	delete(idx.removed, key)
	idx.staged[key] = ref
	idx.mu.Unlock()
	return nil
}

// get resolves key to its current ref, consulting staged mutations before
// disk, or ("", false) if unset.
func (idx *nameIndex) get(key string) (objectstore.Ref, bool) {
	idx.mu.Lock()
	if _, gone := idx.removed[key]; gone {
		idx.mu.Unlock()
		return "", false
	}
	if ref, ok := idx.staged[key]; ok {
		idx.mu.Unlock()
		return ref, true
	}
	idx.mu.Unlock()

	data, err := os.ReadFile(idx.path(key))
	if err != nil {
		return "", false
	}
	ref, err := decodeRefPointer(strings.TrimSpace(string(data)))
	if err != nil {
		return "", false
	}
	return ref, true
}

func encodeRefPointer(ref objectstore.Ref) (string, error) {
	digest, err := hex.DecodeString(string(ref))
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base32, digest)
}

func decodeRefPointer(encoded string) (objectstore.Ref, error) {
	_, digest, err := multibase.Decode(encoded)
	if err != nil {
		return "", err
	}
	return objectstore.Ref(hex.EncodeToString(digest)), nil
}

// delete stages key's mapping for removal; it becomes durable on the next
// flush.
func (idx *nameIndex) delete(key string) error {
	idx.mu.Lock()
	delete(idx.staged, key)
	idx.removed[key] = struct{}{}
	idx.mu.Unlock()
	return nil
}

// list returns every key currently mapped, folding in not-yet-flushed
// staged entries and excluding not-yet-flushed removals.
func (idx *nameIndex) list() ([]string, error) {
	entries, err := os.ReadDir(idx.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("sources: list index: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	keys := make(map[string]struct{}, len(entries)+len(idx.staged))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys[indexKeyFromFilename(e.Name())] = struct{}{}
	}
	for key := range idx.staged {
		keys[key] = struct{}{}
	}
	for key := range idx.removed {
		delete(keys, key)
	}

	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	return out, nil
}

// flush writes every staged pointer file and deletes every removed one,
// making the index's buffered mutations durable. Called from
// Repository.Persist only after the underlying Store has made every new Ref
// durable, so a pointer file is never written before the object it names.
func (idx *nameIndex) flush() error {
	idx.mu.Lock()
	staged := idx.staged
	removed := idx.removed
	idx.staged = make(map[string]objectstore.Ref)
	idx.removed = make(map[string]struct{})
	idx.mu.Unlock()

	for key, ref := range staged {
		encoded, err := encodeRefPointer(ref)
		if err != nil {
			return fmt.Errorf("sources: encode index pointer %s: %w", key, err)
		}
		if err := objectstore.WriteFileAtomic(idx.path(key), []byte(encoded), 0o644); err != nil {
			return fmt.Errorf("sources: flush index pointer %s: %w", key, err)
		}
	}
	for key := range removed {
		if err := os.Remove(idx.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sources: delete index entry %s: %w", key, err)
		}
	}
	return nil
}
