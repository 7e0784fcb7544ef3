package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic is safeWrite exported for other packages (the sources
// repository's name index, the scope package's scope.json writer)
// that need the same tempfile-fsync-rename discipline outside the objects
// directory proper.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return safeWrite(path, data, perm)
}

// safeWrite writes data to path atomically: tempfile in the same directory,
// fsync, then rename. The same-directory tempfile guarantees the rename is
// within one filesystem and therefore atomic.
func safeWrite(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp to target: %w", err)
	}
	return nil
}
