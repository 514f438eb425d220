// Package state holds the cached queue snapshot shared by the API and its
// subscribers. All changes go through named commands; each successful
// command is published as an Event.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/readq/internal/queue"
)

// EventKind names the command that produced an event.
type EventKind string

const (
	EventLoaded      EventKind = "loaded"
	EventSuspended   EventKind = "suspended"
	EventResumed     EventKind = "unsuspended"
	EventRemoved     EventKind = "removed"
	EventRescheduled EventKind = "rescheduled"
	EventUpserted    EventKind = "upserted"
)

// Event describes one applied command.
type Event struct {
	Kind    EventKind `json:"kind"`
	IDs     []string  `json:"ids"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// Store is the application state object. The zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	items    []queue.Item
	index    map[string]int
	version  uint64
	subs     map[int]chan Event
	nextSub  int
	inflight sync.Map
	ops      sync.Map

	// sessionMu orders session changes against Commit. It is taken before mu.
	sessionMu sync.Mutex
	session   atomic.Uint64
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{index: map[string]int{}, subs: map[int]chan Event{}, now: time.Now}
}

// Snapshot returns a deep copy of the cached items in order.
func (s *Store) Snapshot() []queue.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]queue.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// Get returns a copy of one cached item.
func (s *Store) Get(id string) (queue.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return queue.Item{}, false
	}
	return s.items[i].Clone(), true
}

// Version increases with every applied command.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Load replaces the whole snapshot.
func (s *Store) Load(items []queue.Item) {
	s.mu.Lock()
	s.items = make([]queue.Item, len(items))
	s.index = make(map[string]int, len(items))
	ids := make([]string, len(items))
	for i, it := range items {
		s.items[i] = it.Clone()
		s.index[it.ID] = i
		ids[i] = it.ID
	}
	s.commitLocked(EventLoaded, ids)
}

// Upsert inserts or replaces items by id.
func (s *Store) Upsert(items ...queue.Item) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if i, ok := s.index[it.ID]; ok {
			s.items[i] = it.Clone()
		} else {
			s.index[it.ID] = len(s.items)
			s.items = append(s.items, it.Clone())
		}
		ids = append(ids, it.ID)
	}
	s.commitLocked(EventUpserted, ids)
}

// SetSuspended flips the suspended flag of the known ids among ids.
func (s *Store) SetSuspended(ids []string, suspended bool) {
	kind := EventResumed
	if suspended {
		kind = EventSuspended
	}
	s.mu.Lock()
	var hit []string
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			s.items[i].Suspended = suspended
			hit = append(hit, id)
		}
	}
	s.commitLocked(kind, hit)
}

// Remove drops ids from the snapshot.
func (s *Store) Remove(ids []string) {
	s.mu.Lock()
	drop := make(map[string]struct{}, len(ids))
	var hit []string
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			drop[id] = struct{}{}
			hit = append(hit, id)
		}
	}
	if len(hit) > 0 {
		kept := s.items[:0]
		for _, it := range s.items {
			if _, gone := drop[it.ID]; !gone {
				kept = append(kept, it)
			}
		}
		s.items = kept
		s.index = make(map[string]int, len(kept))
		for i, it := range kept {
			s.index[it.ID] = i
		}
	}
	s.commitLocked(EventRemoved, hit)
}

// SetDue records a new due date for id. It reports false for unknown ids.
func (s *Store) SetDue(id string, due time.Time) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	d := due
	s.items[i].DueDate = &d
	s.commitLocked(EventRescheduled, []string{id})
	return true
}

// commitLocked bumps the version, publishes the event and releases s.mu.
// Commands that touched nothing publish nothing.
func (s *Store) commitLocked(kind EventKind, ids []string) {
	if len(ids) == 0 && kind != EventLoaded {
		s.mu.Unlock()
		return
	}
	s.version++
	ev := Event{Kind: kind, IDs: ids, Version: s.version, At: s.now()}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. Slow subscribers miss events rather than block commands.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}
