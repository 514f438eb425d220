package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/queue"
)

func seed() []queue.Item {
	return []queue.Item{
		{ID: "a", ItemType: queue.Document, Tags: []string{"x"}},
		{ID: "b", ItemType: queue.Extract},
		{ID: "c", ItemType: queue.LearningItem},
	}
}

func TestStore_CommandsPublishEvents(t *testing.T) {
	s := New()
	events, cancel := s.Subscribe(8)
	defer cancel()

	s.Load(seed())
	ev := <-events
	assert.Equal(t, EventLoaded, ev.Kind)
	assert.Equal(t, uint64(1), ev.Version)

	s.SetSuspended([]string{"a", "zzz"}, true)
	ev = <-events
	assert.Equal(t, EventSuspended, ev.Kind)
	assert.Equal(t, []string{"a"}, ev.IDs)
	it, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, it.Suspended)

	s.Remove([]string{"b"})
	ev = <-events
	assert.Equal(t, EventRemoved, ev.Kind)
	assert.Len(t, s.Snapshot(), 2)
	_, ok = s.Get("b")
	assert.False(t, ok)

	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, s.SetDue("c", due))
	assert.False(t, s.SetDue("b", due))
	ev = <-events
	assert.Equal(t, EventRescheduled, ev.Kind)
	assert.Equal(t, uint64(4), s.Version())

	s.Upsert(queue.Item{ID: "d", ItemType: queue.Document})
	ev = <-events
	assert.Equal(t, EventUpserted, ev.Kind)
	assert.Len(t, s.Snapshot(), 3)
}

func TestStore_NoOpCommandsAreSilent(t *testing.T) {
	s := New()
	s.Load(seed())
	v := s.Version()
	s.Remove([]string{"nope"})
	s.SetSuspended(nil, true)
	assert.Equal(t, v, s.Version())
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New()
	s.Load(seed())
	snap := s.Snapshot()
	snap[0].Tags[0] = "changed"
	snap[0].Suspended = true

	it, _ := s.Get("a")
	assert.Equal(t, "x", it.Tags[0])
	assert.False(t, it.Suspended)
}

func TestStore_CancelClosesChannel(t *testing.T) {
	s := New()
	events, cancel := s.Subscribe(1)
	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	s.Load(seed())
}

func TestAcquire(t *testing.T) {
	s := New()
	release, ok := s.Acquire("a")
	require.True(t, ok)
	_, ok = s.Acquire("a")
	assert.False(t, ok)
	_, ok = s.Acquire("b")
	assert.True(t, ok)
	release()
	_, ok = s.Acquire("a")
	assert.True(t, ok)
}

func TestAcquire_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Acquire("same"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSession_StaleResultsDiscarded(t *testing.T) {
	s := New()
	s.Load(seed())

	first := s.BeginSession()
	assert.True(t, first.Active())
	second := s.BeginSession()
	assert.False(t, first.Active())

	applied := s.Commit(first, func(st *Store) { st.Remove([]string{"a"}) })
	assert.False(t, applied)
	assert.Len(t, s.Snapshot(), 3)

	applied = s.Commit(second, func(st *Store) { st.Remove([]string{"a"}) })
	assert.True(t, applied)
	assert.Len(t, s.Snapshot(), 2)

	s.EndSession()
	assert.False(t, second.Active())
}

func TestReload_WaitsForRunningCommit(t *testing.T) {
	s := New()
	sess := s.Reload(seed())

	entered := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan bool)
	go func() {
		committed <- s.Commit(sess, func(st *Store) {
			close(entered)
			<-release
			st.Remove([]string{"a"})
		})
	}()
	<-entered

	reloaded := make(chan Session)
	go func() { reloaded <- s.Reload(seed()) }()

	select {
	case <-reloaded:
		t.Fatal("reload finished while a commit was applying")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.True(t, <-committed)
	fresh := <-reloaded

	assert.False(t, sess.Active())
	assert.True(t, fresh.Active())
	assert.Len(t, s.Snapshot(), 3, "reload replaces the committed snapshot")
	assert.False(t, s.Commit(sess, func(st *Store) { st.Remove([]string{"a"}) }))
	assert.Len(t, s.Snapshot(), 3)
}

func TestAcquireOp_SeparateFromItems(t *testing.T) {
	s := New()
	release, ok := s.AcquireOp("optimize")
	require.True(t, ok)

	_, ok = s.AcquireOp("optimize")
	assert.False(t, ok)

	itemRelease, ok := s.Acquire("optimize")
	require.True(t, ok, "item ids do not collide with operation names")
	itemRelease()

	release()
	release, ok = s.AcquireOp("optimize")
	assert.True(t, ok)
	release()
}
