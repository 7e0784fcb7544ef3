package scope

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/sources"
)

// FSComponent is the default ConsumerComponent: a component whose files are
// read straight off disk, with no build or test step of its own. It is the
// CLI's stand-in for the "external consumer" layer spec.md §6 describes as
// outside the core's contract — a real consumer (a language-specific
// packager) would implement Build and RunSpecs against its own toolchain;
// this one simply passes files through and reports specs as vacuously
// successful.
type FSComponent struct {
	id       bitid.BitId
	deps     []bitid.BitId
	lang     string
	mainFile string
	files    []sources.FileContent
}

// NewFSComponent walks dir and loads every regular file under it as the
// component's source files, relative paths preserved.
func NewFSComponent(id bitid.BitId, deps []bitid.BitId, lang, mainFile, dir string) (*FSComponent, error) {
	var files []sources.FileContent
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, sources.FileContent{
			Name:         entry.Name(),
			RelativePath: rel,
			Content:      content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &FSComponent{id: id, deps: deps, lang: lang, mainFile: mainFile, files: files}, nil
}

func (c *FSComponent) ID() bitid.BitId                  { return c.id }
func (c *FSComponent) Dependencies() []bitid.BitId      { return c.deps }
func (c *FSComponent) Files() []sources.FileContent     { return c.files }
func (c *FSComponent) Lang() string                     { return c.lang }
func (c *FSComponent) MainFile() string                 { return c.mainFile }

// Build is a no-op: FSComponent ships its source files as-is, with no
// distributable artifact distinct from them.
func (c *FSComponent) Build(ctx context.Context, scopeRoot string) ([]sources.FileContent, error) {
	return nil, nil
}

// RunSpecs always reports success; FSComponent has no test runner of its
// own to invoke.
func (c *FSComponent) RunSpecs(ctx context.Context, scopeRoot string) (*objtypes.SpecsResults, error) {
	return &objtypes.SpecsResults{Success: true}, nil
}
