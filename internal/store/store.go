// Package store holds calendar events in memory, keyed by date.
//
// Every mutation runs under one mutex, so the duplicate check and the insert
// (or the lookup and the overwrite on update) are atomic with respect to
// concurrent HTTP requests. Error precedence inside each operation is fixed:
// decode errors, then length validation, then duplicate checks. Update looks
// up its target before anything else.
package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"example.com/calendarapi/internal/codec"
	"example.com/calendarapi/internal/domain"
)

// IDPolicy decides when an event id is consumed.
type IDPolicy string

const (
	// AllocateOnCommit takes an id only for a create that is about to be
	// stored. Ids have no gaps.
	AllocateOnCommit IDPolicy = "commit"
	// AllocateOnDecode takes an id on every decode with the right field
	// count, including updates and creates that fail later. Ids have gaps.
	AllocateOnDecode IDPolicy = "decode"
)

// ParseIDPolicy maps a config value to a policy. Empty means commit.
func ParseIDPolicy(s string) (IDPolicy, error) {
	switch IDPolicy(s) {
	case "", AllocateOnCommit:
		return AllocateOnCommit, nil
	case AllocateOnDecode:
		return AllocateOnDecode, nil
	}
	return "", fmt.Errorf("unknown id allocation policy %q", s)
}

// Store is the authoritative in-memory event collection.
type Store struct {
	mu     sync.Mutex
	events map[domain.Date]*domain.Event
	nextID atomic.Int64
	policy IDPolicy
}

// New returns an empty store whose first id is 1.
func New(policy IDPolicy) *Store {
	if policy == "" {
		policy = AllocateOnCommit
	}
	s := &Store{
		events: make(map[domain.Date]*domain.Event),
		policy: policy,
	}
	s.nextID.Store(1)
	return s
}

// Policy reports the id allocation policy in use.
func (s *Store) Policy() IDPolicy { return s.policy }

func (s *Store) allocate() int64 {
	return s.nextID.Add(1) - 1
}

func (s *Store) decode(raw string) (domain.Event, error) {
	if s.policy == AllocateOnDecode {
		return codec.DecodeWith(raw, s.allocate)
	}
	return codec.Decode(raw)
}

// Create decodes raw and inserts the event. The stored copy is returned.
func (s *Store) Create(raw string) (domain.Event, error) {
	ev, err := s.decode(raw)
	if err != nil {
		return domain.Event{}, err
	}
	if err := domain.CheckLengths(&ev); err != nil {
		return domain.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.Date]; ok {
		return domain.Event{}, domain.ErrDuplicateDate
	}
	if s.policy == AllocateOnCommit {
		ev.ID = s.allocate()
	}
	stored := ev
	s.events[ev.Date] = &stored
	return stored, nil
}

// List returns a snapshot of all events keyed by date.
func (s *Store) List() map[domain.Date]domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Date]domain.Event, len(s.events))
	for d, ev := range s.events {
		out[d] = *ev
	}
	return out
}

// Read returns the event stored under d.
func (s *Store) Read(d domain.Date) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[d]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return *ev, nil
}

// Update replaces title and text of the event stored under d. The date in
// raw is parsed but ignored; d identifies the target. Id and date never
// change.
func (s *Store) Update(d domain.Date, raw string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[d]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	next, err := s.decode(raw)
	if err != nil {
		return domain.Event{}, err
	}
	if err := domain.CheckLengths(&next); err != nil {
		return domain.Event{}, err
	}
	cur.Title = next.Title
	cur.Text = next.Text
	return *cur, nil
}

// Delete removes the event stored under d and returns it.
func (s *Store) Delete(d domain.Date) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[d]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	delete(s.events, d)
	return *ev, nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
