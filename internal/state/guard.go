package state

import "github.com/kalambet/readq/internal/queue"

// Acquire marks id as having a mutation in flight. It reports false when
// one already is; otherwise the returned func releases the mark.
func (s *Store) Acquire(id string) (release func(), ok bool) {
	if _, busy := s.inflight.LoadOrStore(id, struct{}{}); busy {
		return nil, false
	}
	return func() { s.inflight.Delete(id) }, true
}

// AcquireOp is Acquire for service-wide operations such as an optimization
// run. Operation names live apart from item ids.
func (s *Store) AcquireOp(name string) (release func(), ok bool) {
	if _, busy := s.ops.LoadOrStore(name, struct{}{}); busy {
		return nil, false
	}
	return func() { s.ops.Delete(name) }, true
}

// Session identifies one active consumer view. Results of asynchronous
// work started under a session are only applied while it is still current.
type Session struct {
	store *Store
	gen   uint64
}

// BeginSession makes a new session current, deactivating the previous one.
func (s *Store) BeginSession() Session {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return Session{store: s, gen: s.session.Add(1)}
}

// Reload makes a new session current and replaces the snapshot with items.
// No Commit of an older session can land between the two steps.
func (s *Store) Reload(items []queue.Item) Session {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	sess := Session{store: s, gen: s.session.Add(1)}
	s.Load(items)
	return sess
}

// EndSession deactivates every session.
func (s *Store) EndSession() {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.session.Add(1)
}

// Active reports whether sess is still the current session.
func (sess Session) Active() bool {
	return sess.store != nil && sess.store.session.Load() == sess.gen
}

// Commit runs apply only if sess is still active and reports whether it ran.
// The session cannot change while apply runs; apply must not begin or end
// sessions itself.
func (s *Store) Commit(sess Session, apply func(*Store)) bool {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if sess.store != s || !sess.Active() {
		return false
	}
	apply(s)
	return true
}
