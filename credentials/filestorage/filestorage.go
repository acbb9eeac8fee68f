// Package filestorage is the durable credential tier: the pair is kept in a
// TOML file readable only by the current user.
package filestorage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/jrsteele09/go-tenant-client/credentials"
)

var _ credentials.Storage = (*Storage)(nil)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type fileContents struct {
	Credentials credentials.Pair `toml:"credentials"`
	SavedAt     time.Time        `toml:"saved_at"`
}

// Storage stores one pair in a TOML file. Writes go to a temporary file in
// the same directory which is then renamed over the target, so a reader
// sees either the previous pair or the new one.
type Storage struct {
	fs   afero.Fs
	path string
	lock sync.Mutex
}

// New creates a file storage on fs. Use afero.NewMemMapFs in tests.
func New(fs afero.Fs, path string) *Storage {
	return &Storage{fs: fs, path: path}
}

// NewOS creates a file storage on the real filesystem.
func NewOS(path string) *Storage {
	return New(afero.NewOsFs(), path)
}

func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) Load() (*credentials.Pair, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("[filestorage Load] read %s: %w", s.path, err)
	}

	var contents fileContents
	if err := toml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("[filestorage Load] decode %s: %w", s.path, err)
	}
	if contents.Credentials.IsZero() {
		return nil, nil
	}
	return &contents.Credentials, nil
}

func (s *Storage) Save(pair credentials.Pair) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := toml.Marshal(fileContents{Credentials: pair, SavedAt: NowTimeFunc().UTC()})
	if err != nil {
		return fmt.Errorf("[filestorage Save] encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[filestorage Save] create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("[filestorage Save] create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("[filestorage Save] write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("[filestorage Save] close: %w", err)
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("[filestorage Save] chmod: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("[filestorage Save] rename: %w", err)
	}
	return nil
}

func (s *Storage) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[filestorage Clear] remove %s: %w", s.path, err)
	}
	return nil
}
