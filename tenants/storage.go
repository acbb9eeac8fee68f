package tenants

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Storage persists the selected workspace id. Load returns "" when nothing
// is stored.
type Storage interface {
	Load() (string, error)
	Save(id string) error
	Clear() error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)

type MemoryStorage struct {
	id   string
	lock sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.id, nil
}

func (m *MemoryStorage) Save(id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.id = id
	return nil
}

func (m *MemoryStorage) Clear() error {
	return m.Save("")
}

// FileStorage keeps the workspace id as the only line of a plain text file.
type FileStorage struct {
	fs   afero.Fs
	path string
	lock sync.Mutex
}

func NewFileStorage(fs afero.Fs, path string) *FileStorage {
	return &FileStorage{fs: fs, path: path}
}

func (f *FileStorage) Load() (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("[tenants FileStorage.Load] read %s: %w", f.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStorage) Save(id string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[tenants FileStorage.Save] create dir: %w", err)
	}
	if err := afero.WriteFile(f.fs, f.path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("[tenants FileStorage.Save] write %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[tenants FileStorage.Clear] remove %s: %w", f.path, err)
	}
	return nil
}
