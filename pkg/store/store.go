// Package store holds the canonical in-memory event list. It merges bulk
// snapshots with stream deltas and serves filtered views.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/events"
)

// Store is the event working set. Writes happen on the dashboard loop;
// the lock lets HTTP handlers read views concurrently.
type Store struct {
	mu         sync.RWMutex
	events     []events.Event
	capacity   int
	dataLoaded bool
	err        error

	issued  uint64 // last sequence handed out by NextSequence
	applied uint64 // sequence of the snapshot currently held
	version uint64 // bumped on every content change

	logger *zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets how many events survive a delta merge.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		capacity: constants.StoreCap,
		logger:   &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadBulk replaces the working set wholesale and marks data as loaded.
func (s *Store) LoadBulk(evs []events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(evs)
}

func (s *Store) replace(evs []events.Event) {
	s.events = append(make([]events.Event, 0, len(evs)), evs...)
	s.dataLoaded = true
	s.err = nil
	s.version++
	s.logger.Info().Int("count", len(evs)).Msg("Loaded bulk snapshot")
}

// NextSequence tags a new bulk request. Responses must be handed back to
// LoadSnapshot or Fail with the same sequence.
func (s *Store) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// LoadSnapshot applies a bulk response unless a newer one was already
// applied, reporting whether it was accepted.
func (s *Store) LoadSnapshot(seq uint64, evs []events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		s.logger.Debug().
			Uint64("sequence", seq).
			Uint64("applied", s.applied).
			Msg("Discarding stale bulk snapshot")
		return false
	}
	s.applied = seq
	s.replace(evs)
	return true
}

// Fail records a failed bulk request. The current events and dataLoaded are
// left untouched. Failures older than the applied snapshot are ignored.
func (s *Store) Fail(seq uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		return false
	}
	s.err = err
	s.logger.Error().Err(err).Uint64("sequence", seq).Msg("Bulk fetch failed")
	return true
}

// ApplyDelta merges streamed events. Each record replaces the stored record
// with the same key in place, or is inserted at the front. The list is then
// cut to the capacity, keeping the front. It returns the number of records
// merged.
func (s *Store) ApplyDelta(newEvents, newWarnings []events.Event) int {
	if len(newEvents) == 0 && len(newWarnings) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[events.Key]int, len(s.events))
	for i, e := range s.events {
		index[e.Key()] = i
	}

	// Inserts are collected in arrival order and reversed afterwards, which
	// matches inserting each one at the front as it arrives.
	var inserted []events.Event
	insertedAt := make(map[events.Key]int)
	replaced := 0

	merge := func(e events.Event) {
		k := e.Key()
		if i, ok := index[k]; ok {
			s.events[i] = e
			replaced++
			return
		}
		if i, ok := insertedAt[k]; ok {
			inserted[i] = e
			return
		}
		insertedAt[k] = len(inserted)
		inserted = append(inserted, e)
	}

	for _, e := range newEvents {
		merge(events.Normalize(e, events.CategoryProtest, ""))
	}
	for _, e := range newWarnings {
		merge(events.Normalize(e, events.CategoryWarning, events.CategoryWarning))
	}

	merged := make([]events.Event, 0, len(inserted)+len(s.events))
	for i := len(inserted) - 1; i >= 0; i-- {
		merged = append(merged, inserted[i])
	}
	merged = append(merged, s.events...)

	evicted := 0
	if len(merged) > s.capacity {
		evicted = len(merged) - s.capacity
		merged = merged[:s.capacity:s.capacity]
	}
	s.events = merged
	s.version++

	s.logger.Debug().
		Int("inserted", len(inserted)).
		Int("replaced", replaced).
		Int("evicted", evicted).
		Int("count", len(s.events)).
		Msg("Applied stream delta")

	return len(newEvents) + len(newWarnings)
}

// CurrentView returns the events selected by filter. It never mutates the
// store and the returned slice is the caller's to keep.
func (s *Store) CurrentView(filter events.Filter) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter.Apply(s.events)
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// DataLoaded reports whether a bulk snapshot has been applied.
func (s *Store) DataLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataLoaded
}

// Err returns the most recent bulk fetch error, cleared by the next
// successful snapshot.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Version changes whenever the stored events change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
