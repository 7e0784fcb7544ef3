// Package scope is the Scope façade (spec.md §4.4): the top-level
// orchestrator over putMany (ingest), importMany (resolve), exportMany
// (publish), deprecate/remove/reset, auto-bump, and migration. Grounded on
// the teacher's Repository/OpenRepository (internal/dag/repo.go):
// directory-ensure-then-wire-subsystems on Open, one owning facade type per
// process, advisory (non-fatal) background setup.
package scope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stephensong/bit/internal/biterrors"
	"github.com/stephensong/bit/internal/migrate"
	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/remotes"
	"github.com/stephensong/bit/internal/sources"
)

// Meta is the on-disk scope.json (spec.md §6).
type Meta struct {
	Name         string            `json:"name"`
	GroupName    string            `json:"groupName,omitempty"`
	Version      string            `json:"version"`
	Remotes      map[string]string `json:"remotes,omitempty"`
	ResolverPath string            `json:"resolverPath,omitempty"`
}

// Scope owns one object store, its sources catalog, identity, and resolved
// remotes, for the lifetime of one process (spec.md §5: "the Object
// Repository is owned exclusively by one Scope instance").
type Scope struct {
	root     string
	Meta     Meta
	Store    *objectstore.Store
	Sources  *sources.Repository
	Remotes  *remotes.Resolver
	Identity *Identity
	Hooks    Hooks
}

const metaFilename = "scope.json"

// Open creates or opens a scope rooted at dir, ensuring objects/, refs/,
// and tmp/ exist, loading (or initializing) scope.json, and wiring a
// Sources repository over the object store. global is the process-wide
// remote set; scope-local overrides are built here from Meta.Remotes, one
// HTTP remote per name/url pair, each wrapped in a circuit breaker (see
// internal/remotes).
func Open(dir string, global map[string]remotes.Remote, hooks Hooks) (*Scope, error) {
	for _, sub := range []string{"objects", "refs", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("scope: create %s: %w", sub, err)
		}
	}

	meta, err := loadOrInitMeta(dir)
	if err != nil {
		return nil, err
	}

	store, err := objectstore.Open(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}

	repo, err := sources.Open(store, dir)
	if err != nil {
		return nil, err
	}

	identity, err := LoadOrCreateIdentity(dir)
	if err != nil {
		fmt.Printf("bit: identity warning: %v\n", err)
		identity = &Identity{}
	}

	local := make(map[string]remotes.Remote, len(meta.Remotes))
	for name, url := range meta.Remotes {
		local[name] = remotes.NewBreakerRemote(name, remotes.NewHTTPRemote(url))
	}

	return &Scope{
		root:     dir,
		Meta:     meta,
		Store:    store,
		Sources:  repo,
		Remotes:  remotes.NewResolver(global, local),
		Identity: identity,
		Hooks:    hooks,
	}, nil
}

func loadOrInitMeta(dir string) (Meta, error) {
	path := filepath.Join(dir, metaFilename)
	data, err := os.ReadFile(path)
	if err == nil {
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			return Meta{}, fmt.Errorf("scope: parse %s: %w", metaFilename, err)
		}
		return meta, nil
	}
	if !os.IsNotExist(err) {
		return Meta{}, fmt.Errorf("scope: read %s: %w", metaFilename, err)
	}

	meta := Meta{Name: filepath.Base(dir), Version: migrate.CurrentVersion}
	if err := writeMeta(dir, meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func writeMeta(dir string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("scope: encode %s: %w", metaFilename, err)
	}
	return objectstore.WriteFileAtomic(filepath.Join(dir, metaFilename), data, 0o644)
}

// SaveMeta persists a change to scope.json (used by migrate after a
// successful schema upgrade).
func (s *Scope) SaveMeta() error {
	return writeMeta(s.root, s.Meta)
}

// Root returns the scope's root directory.
func (s *Scope) Root() string { return s.root }

// Persist flushes every staged object-store mutation and, only once those
// objects are durable, the name index's staged pointer updates (see
// sources.Repository.Persist). Ingest, export, deprecate, remove, reset, and
// bump each stage their mutations and call this once at the end of the
// operation (spec.md §4.4.1 step 5, §5's "persist is the last step").
func (s *Scope) Persist() error {
	return s.Sources.Persist()
}

// Locate walks ancestor directories from path looking for either a .bit
// subdirectory or a directory containing both objects/ and scope.json,
// returning the first match (spec.md §6's scope detection algorithm).
func Locate(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("scope: resolve %s: %w", path, err)
	}

	for {
		if bitDir := filepath.Join(dir, ".bit"); isDir(bitDir) {
			return bitDir, nil
		}
		if isDir(filepath.Join(dir, "objects")) && isFile(filepath.Join(dir, metaFilename)) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", biterrors.ErrScopeNotFound
		}
		dir = parent
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
