// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/metrics"
	"github.com/tomtom215/newsprism/internal/taxonomy"
)

// prefKeyPrefix namespaces preference records in BadgerDB.
const prefKeyPrefix = "pref:"

// Store maintains preference vectors for all users, backed by BadgerDB so
// profiles survive restarts.
//
// Updates for one user serialize on a per-user mutex to preserve the
// sum-to-1 invariant across the read-modify-write-normalize cycle; updates
// for different users proceed in parallel.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger

	mu    sync.Mutex
	users map[string]*userEntry
}

// userEntry is the in-memory state for one user.
type userEntry struct {
	mu     sync.Mutex
	loaded bool
	vec    WeightVector // nil when the user has no record
}

// NewStore creates a preference store on top of an open BadgerDB handle.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewStore(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "preferences").Logger(),
		users:  make(map[string]*userEntry),
	}
}

// entry returns the per-user entry, creating it if needed.
func (s *Store) entry(userID string) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.users[userID]
	if !ok {
		e = &userEntry{}
		s.users[userID] = e
	}
	return e
}

// load populates e.vec from BadgerDB if it has not been loaded yet.
// Must be called with e.mu held.
func (s *Store) load(userID string, e *userEntry) error {
	if e.loaded {
		return nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get preferences: %w", err)
		}
		return item.Value(func(val []byte) error {
			var vec WeightVector
			if err := json.Unmarshal(val, &vec); err != nil {
				return fmt.Errorf("unmarshal preferences: %w", err)
			}
			if err := vec.validate(); err != nil {
				return err
			}
			e.vec = vec
			return nil
		})
	})
	if err != nil {
		return err
	}

	e.loaded = true
	return nil
}

// persist writes the vector to BadgerDB. Must be called with e.mu held.
func (s *Store) persist(userID string, vec WeightVector) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefKeyPrefix+userID), data)
	})
}

// UpdateOnClick applies one decay update for a click on the given category.
// New users start from an all-zero vector created on first click. A rate
// outside (0, 1) falls back to DefaultDecayRate.
func (s *Store) UpdateOnClick(ctx context.Context, userID string, category taxonomy.Category, rate float64) error {
	if !taxonomy.Valid(category) {
		return fmt.Errorf("%w: %q", taxonomy.ErrInvalidCategory, category)
	}
	if rate <= 0 || rate >= 1 {
		rate = DefaultDecayRate
	}

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.load(userID, e); err != nil {
		return err
	}

	// Work on a copy so a persistence failure leaves state unchanged.
	vec := e.vec
	if vec == nil {
		vec = NewZeroVector()
	} else {
		vec = vec.Clone()
	}

	if err := vec.applyClick(category, rate); err != nil {
		return err
	}
	if err := s.persist(userID, vec); err != nil {
		return err
	}
	e.vec = vec

	metrics.PreferenceUpdates.WithLabelValues("click").Inc()
	s.logger.Debug().
		Str("user", userID).
		Str("category", category.String()).
		Float64("weight", vec[category]).
		Msg("preference updated on click")
	return nil
}

// SetExplicit bulk-sets the vector from an onboarding selection: each valid
// listed category gets equal weight, all others get 0. Categories outside
// the taxonomy are filtered out; duplicates count once. If nothing valid
// remains the call fails with ErrNoValidCategories and state is unchanged.
func (s *Store) SetExplicit(ctx context.Context, userID string, categories []taxonomy.Category) error {
	seen := make(map[taxonomy.Category]bool, len(categories))
	for _, c := range categories {
		if taxonomy.Valid(c) {
			seen[c] = true
		}
	}
	if len(seen) == 0 {
		return ErrNoValidCategories
	}

	vec := NewZeroVector()
	weight := 1.0 / float64(len(seen))
	for c := range seen {
		vec[c] = weight
	}

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.persist(userID, vec); err != nil {
		return err
	}
	e.vec = vec
	e.loaded = true

	metrics.PreferenceUpdates.WithLabelValues("explicit").Inc()
	s.logger.Info().
		Str("user", userID).
		Int("categories", len(seen)).
		Msg("explicit preferences set")
	return nil
}

// Get returns a copy of the user's current weight vector, or ErrNotFound if
// the user has never interacted and never set explicit preferences.
func (s *Store) Get(ctx context.Context, userID string) (WeightVector, error) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.load(userID, e); err != nil {
		return nil, err
	}
	if e.vec == nil {
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, userID)
	}
	return e.vec.Clone(), nil
}
