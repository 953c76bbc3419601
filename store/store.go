package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// LocalStore is a flat-namespace file store for generated reports and scraped
// documents.
type LocalStore interface {
	// List returns a list of all files in the store.
	List() ([]string, error)

	Contains(name string) (bool, error)

	// Store writes the content under the given name, replacing any previous
	// file.
	Store(name string, content io.Reader) error

	// Get returns a reader for the file with the given name. The caller is responsible for closing the reader!
	Get(name string) (io.ReadCloser, error)

	// Path returns the on-disk path of the named file.
	Path(name string) string
}

type FileStore struct {
	dataDir string
}

// NewFileStore opens a store rooted at dataDir, creating the directory if
// needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	return &FileStore{
		dataDir: dataDir,
	}, nil
}

func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

func (fs *FileStore) Contains(name string) (bool, error) {
	_, err := os.Stat(fs.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Store stages the content in a temporary file and renames it into place, so
// concurrent readers never observe a partial report.
func (fs *FileStore) Store(name string, content io.Reader) error {
	file, err := renameio.NewPendingFile(fs.Path(name), renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, "failed to stage file")
	}
	defer file.Cleanup()

	if _, err := io.Copy(file, content); err != nil {
		return errors.Wrap(err, "failed to write content")
	}

	return file.CloseAtomicallyReplace()
}

func (fs *FileStore) Get(name string) (io.ReadCloser, error) {
	return os.Open(fs.Path(name))
}

func (fs *FileStore) Path(name string) string {
	return filepath.Join(fs.dataDir, name)
}
