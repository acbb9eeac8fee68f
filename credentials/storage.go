package credentials

import "sync"

// Storage persists a single Pair for one tier. Load returns nil and no
// error when the tier is empty.
type Storage interface {
	Load() (*Pair, error)
	Save(pair Pair) error
	Clear() error
}

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps the pair in process memory. It backs the ephemeral
// tier: credentials live until the process exits.
type MemoryStorage struct {
	pair *Pair
	lock sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*Pair, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.pair == nil {
		return nil, nil
	}
	pair := *m.pair
	return &pair, nil
}

func (m *MemoryStorage) Save(pair Pair) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.pair = &pair
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.pair = nil
	return nil
}
