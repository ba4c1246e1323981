package risk

import (
	"os"
	"path/filepath"
)

// FileStore persists a JSON blob to path via temp-file-plus-rename, the
// only crash-safe way to replace a file's contents in place: no library
// in the stack wraps atomic file replace, so this stays on os directly.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// SaveJSON writes data to a temp file in the same directory as path,
// fsyncs it, then renames it over path so a reader never observes a
// partially written file.
func (f *FileStore) SaveJSON(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".risk-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}

// ReadLatestJSON returns the last persisted blob, or (nil, nil) if the
// file does not exist yet.
func (f *FileStore) ReadLatestJSON() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
