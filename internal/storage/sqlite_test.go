package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/srs"
)

var fixedNow = time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err, "Open(:memory:)")
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	v1, err := s1.AppliedMigrations()
	require.NoError(t, err)
	s1.Close()

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, []int{1, 2, 3}, v2)
}

func TestItemRoundTrip(t *testing.T) {
	s := openTestStore(t)
	due := fixedNow.Add(48 * time.Hour)
	it := queue.Item{
		ID: "doc-1", SourceDocumentID: "doc-1", Title: "Paging in Go", ItemType: queue.Document,
		DueDate: &due, EstimatedMinutes: 12.5, Tags: []string{"go", "memory"}, Category: "systems",
		PriorityRating: 3, PrioritySlider: 70, ProgressPercent: 25,
	}
	require.NoError(t, s.UpsertItem(it))

	got, err := s.GetItem("doc-1")
	require.NoError(t, err)
	assert.Equal(t, it, got.Item)
	assert.Equal(t, fixedNow, got.AddedAt)

	it.Title = "Paging in Go, revised"
	it.DueDate = nil
	require.NoError(t, s.UpsertItem(it))
	got, err = s.GetItem("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Paging in Go, revised", got.Title)
	assert.Nil(t, got.DueDate)

	all, err := s.ListItems()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []string{"go", "memory"}, all[0].Tags)
}

func TestUpsertItem_Validates(t *testing.T) {
	s := openTestStore(t)
	err := s.UpsertItem(queue.Item{ID: "x", ItemType: queue.Document, PriorityRating: 9})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestGetItem_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetItem("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSuspendAndDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertItem(queue.Item{ID: "a", ItemType: queue.Extract}))

	require.NoError(t, s.SetSuspended("a", true))
	got, err := s.GetItem("a")
	require.NoError(t, err)
	assert.True(t, got.Suspended)

	assert.ErrorIs(t, s.SetSuspended("nope", true), ErrNotFound)

	require.NoError(t, s.DeleteItem("a"))
	assert.ErrorIs(t, s.DeleteItem("a"), ErrNotFound)
}

func TestPostpone(t *testing.T) {
	s := openTestStore(t)
	due := fixedNow.Add(-24 * time.Hour)
	require.NoError(t, s.UpsertItem(queue.Item{ID: "a", ItemType: queue.Document, DueDate: &due}))
	require.NoError(t, s.UpsertItem(queue.Item{ID: "b", ItemType: queue.Document}))

	next, err := s.Postpone("a", 3)
	require.NoError(t, err)
	assert.Equal(t, due.Add(72*time.Hour), next)

	next, err = s.Postpone("b", 1)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(24*time.Hour), next)

	got, err := s.GetItem("b")
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, next, *got.DueDate)

	_, err = s.Postpone("zzz", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRSSItems(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertRSSItem(RSSItem{ID: "1", FeedID: "f", Title: "old", PublishedAt: fixedNow.Add(-time.Hour)}))
	require.NoError(t, s.UpsertRSSItem(RSSItem{ID: "2", FeedID: "f", Title: "new", Tags: []string{"go"}, PublishedAt: fixedNow}))

	require.NoError(t, s.MarkRead("f", "1", true))
	unread, err := s.ListRSSItems(true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "2", unread[0].ID)

	all, err := s.ListRSSItems(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "new", all[0].Title)

	require.NoError(t, s.UpsertRSSItem(RSSItem{ID: "1", FeedID: "f", Title: "old edited", PublishedAt: fixedNow.Add(-time.Hour)}))
	unread, err = s.ListRSSItems(true)
	require.NoError(t, err)
	assert.Len(t, unread, 1, "upsert keeps the read flag")

	assert.ErrorIs(t, s.MarkRead("f", "404", true), ErrNotFound)
}

func TestRecordReview(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertItem(queue.Item{ID: "card", ItemType: queue.LearningItem}))

	stability := 2.3
	st := srs.State{
		Algorithm: srs.AlgorithmFSRS, EaseFactor: 2.5, IntervalDays: 2, Repetitions: 1,
		Stability: &stability, DueDate: fixedNow.Add(48 * time.Hour),
	}
	require.NoError(t, s.RecordReview("card", st, optimizer.Review{ItemID: "card", Rating: srs.Good, ReviewedAt: fixedNow}))

	got, err := s.GetSchedule("card")
	require.NoError(t, err)
	assert.Equal(t, st.IntervalDays, got.IntervalDays)
	require.NotNil(t, got.Stability)
	assert.Equal(t, stability, *got.Stability)

	item, err := s.GetItem("card")
	require.NoError(t, err)
	require.NotNil(t, item.DueDate)
	assert.Equal(t, st.DueDate, *item.DueDate)

	reviews, err := s.ListReviews()
	require.NoError(t, err)
	assert.Equal(t, []optimizer.Review{{ItemID: "card", Rating: srs.Good, ReviewedAt: fixedNow}}, reviews)

	schedules, err := s.ListSchedules()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "card", schedules[0].ItemID)

	_, err = s.GetSchedule("other")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteItem("card"))
	reviews, err = s.ListReviews()
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestPositions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadPosition(ctx, "home")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SavePosition(ctx, "home", 4))
	require.NoError(t, s.SavePosition(ctx, "home", 9))
	pos, ok, err := s.LoadPosition(ctx, "home")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, pos)
}

func TestJobs_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnqueueJob(Job{ID: "j1", Type: "optimize_params", PayloadJSON: `{"a":1}`}))
	require.NoError(t, s.EnqueueJob(Job{ID: "j2", Type: "other"}))

	job, err := s.ClaimNextJob([]string{"optimize_params"})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "running", job.Status)

	none, err := s.ClaimNextJob([]string{"optimize_params"})
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.CompleteJob("j1", `{"ok":true}`))
	done, err := s.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, `{"ok":true}`, done.ResultJSON)

	assert.ErrorIs(t, s.CompleteJob("zzz", "{}"), ErrNotFound)
	_, err = s.GetJob("zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailJob_BackoffThenFail(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnqueueJob(Job{ID: "j", Type: "t", MaxAttempts: 2}))
	_, err := s.ClaimNextJob([]string{"t"})
	require.NoError(t, err)

	require.NoError(t, s.FailJob("j", "boom"))
	j, err := s.GetJob("j")
	require.NoError(t, err)
	assert.Equal(t, "pending", j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, fixedNow.Add(2*time.Second), j.RunAfter)

	none, err := s.ClaimNextJob([]string{"t"})
	require.NoError(t, err)
	assert.Nil(t, none, "job must wait out its backoff")

	require.NoError(t, s.FailJob("j", "boom again"))
	j, err = s.GetJob("j")
	require.NoError(t, err)
	assert.Equal(t, "failed", j.Status)
	assert.Equal(t, "boom again", j.LastError)
}
