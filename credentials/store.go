// Package credentials holds the current access/refresh token pair in one of
// two persistence tiers. Writing to one tier clears the other, so at most
// one tier is ever populated.
package credentials

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Tier selects where Set writes the pair.
type Tier int

const (
	// TierDurable survives process restarts ("remember me").
	TierDurable Tier = iota
	// TierEphemeral lasts for the current session only.
	TierEphemeral
)

func (t Tier) String() string {
	if t == TierDurable {
		return "durable"
	}
	return "ephemeral"
}

// Mode reports which tier currently holds the pair.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeDurable   Mode = "durable"
	ModeEphemeral Mode = "ephemeral"
)

// Store owns the current Pair. It is safe for concurrent use; Set and Clear
// hold the write lock across both tiers, so readers never observe a state
// where both or neither tier holds the pair mid-write.
type Store struct {
	durable   Storage
	ephemeral Storage
	logger    zerolog.Logger
	lock      sync.RWMutex
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store over the given tiers.
func NewStore(durable, ephemeral Storage, options ...StoreOption) *Store {
	s := &Store{
		durable:   durable,
		ephemeral: ephemeral,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "credentials").Logger()
	return s
}

// NewMemoryStore creates a store with both tiers held in memory.
func NewMemoryStore(options ...StoreOption) *Store {
	return NewStore(NewMemoryStorage(), NewMemoryStorage(), options...)
}

// Get returns the current pair, reading the durable tier first. Storage
// failures are treated as "no credentials".
func (s *Store) Get() (Pair, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	pair, _ := s.get()
	if pair == nil {
		return Pair{}, false
	}
	return *pair, true
}

// AccessToken returns the current access token, or "" when logged out.
func (s *Store) AccessToken() string {
	pair, _ := s.Get()
	return pair.AccessToken
}

// Set writes pair to the durable tier when persist is true, otherwise to
// the ephemeral tier, and clears the other tier.
func (s *Store) Set(pair Pair, persist bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.write(pair, persist)
}

// SetPreservingTier writes pair to whichever tier currently holds the
// pair, defaulting to durable when logged out. The tier is read and written
// under one lock.
func (s *Store) SetPreservingTier(pair Pair) {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, mode := s.get()
	s.write(pair, mode != ModeEphemeral)
}

// SetIfCurrent writes pair, keeping the current tier, only if the store
// still holds expectedAccessToken ("" meaning no pair). It reports whether
// pair was written. Session renewal uses it so a result that arrives after
// a logout or a newer login is dropped.
func (s *Store) SetIfCurrent(expectedAccessToken string, pair Pair) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	current, mode := s.get()
	token := ""
	if current != nil {
		token = current.AccessToken
	}
	if token != expectedAccessToken {
		s.logger.Debug().Msg("credentials changed since renewal started, discarding renewed pair")
		return false
	}
	s.write(pair, mode != ModeEphemeral)
	return true
}

// write must be called with the write lock held.
func (s *Store) write(pair Pair, persist bool) {
	target, other, tier := s.ephemeral, s.durable, TierEphemeral
	if persist {
		target, other, tier = s.durable, s.ephemeral, TierDurable
	}

	var result *multierror.Error
	if err := target.Save(pair); err != nil {
		result = multierror.Append(result, err)
	}
	if err := other.Clear(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.Warn().Err(err).Str("tier", tier.String()).Msg("failed to store credentials")
		return
	}
	s.logger.Debug().Str("tier", tier.String()).Msg("credentials stored")
}

// Clear removes the pair from both tiers.
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()

	var result *multierror.Error
	if err := s.durable.Clear(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.ephemeral.Clear(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear credentials")
		return
	}
	s.logger.Debug().Msg("credentials cleared")
}

// Mode reports which tier holds the pair.
func (s *Store) Mode() Mode {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, mode := s.get()
	return mode
}

// get must be called with the lock held.
func (s *Store) get() (*Pair, Mode) {
	if pair := s.load(s.durable, TierDurable); pair != nil {
		return pair, ModeDurable
	}
	if pair := s.load(s.ephemeral, TierEphemeral); pair != nil {
		return pair, ModeEphemeral
	}
	return nil, ModeNone
}

func (s *Store) load(storage Storage, tier Tier) *Pair {
	pair, err := storage.Load()
	if err != nil {
		s.logger.Warn().Err(err).Str("tier", tier.String()).Msg("failed to read credentials, treating as logged out")
		return nil
	}
	if pair == nil || pair.IsZero() {
		return nil
	}
	return pair
}
