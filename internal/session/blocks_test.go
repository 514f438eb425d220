package session

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/queue"
)

var now = time.Date(2026, 5, 2, 7, 30, 0, 0, time.UTC)

func due(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestBuildBlocks_Buckets(t *testing.T) {
	items := []queue.Item{
		{ID: "old", ItemType: queue.Document, DueDate: due(-10 * 24 * time.Hour), EstimatedMinutes: 4},
		{ID: "card1", ItemType: queue.LearningItem, EstimatedMinutes: 1},
		{ID: "new", ItemType: queue.Document, EstimatedMinutes: 12},
		{ID: "ext", ItemType: queue.Extract, EstimatedMinutes: 3},
		{ID: "older", ItemType: queue.Document, DueDate: due(-8 * 24 * time.Hour), EstimatedMinutes: 7},
		{ID: "card2", ItemType: queue.LearningItem, EstimatedMinutes: 1},
	}

	blocks := BuildBlocks(items, Options{Now: now})
	require.Len(t, blocks, 3)

	assert.Equal(t, OverdueRescue, blocks[0].ID)
	assert.Equal(t, "Overdue Rescue", blocks[0].Title)
	assert.Equal(t, []string{"old", "older"}, ids(blocks[0].Items))
	assert.Equal(t, 10.0, blocks[0].TimeBudgetMinutes)
	assert.Equal(t, 1, blocks[0].SafeStopCount)

	assert.Equal(t, Maintenance, blocks[1].ID)
	assert.Equal(t, []string{"card1", "card2"}, ids(blocks[1].Items))
	assert.Equal(t, 2, blocks[1].SafeStopCount)

	assert.Equal(t, Explore, blocks[2].ID)
	assert.Equal(t, []string{"new", "ext"}, ids(blocks[2].Items))
	assert.Equal(t, 2, blocks[2].SafeStopCount)
}

func TestBuildBlocks_SkipsEmptyBuckets(t *testing.T) {
	blocks := BuildBlocks([]queue.Item{{ID: "c", ItemType: queue.LearningItem}}, Options{Now: now})
	require.Len(t, blocks, 1)
	assert.Equal(t, Maintenance, blocks[0].ID)
}

func TestBuildBlocks_EmptyFallback(t *testing.T) {
	blocks := BuildBlocks(nil, Options{Now: now, Budgets: Budgets{Fallback: 25}})
	require.Len(t, blocks, 1)
	assert.Equal(t, Focus, blocks[0].ID)
	assert.Equal(t, 25.0, blocks[0].TimeBudgetMinutes)
	assert.Empty(t, blocks[0].Items)
	assert.Equal(t, 0, blocks[0].SafeStopCount)
}

func TestSafeStopCount(t *testing.T) {
	mk := func(mins ...float64) []queue.Item {
		out := make([]queue.Item, len(mins))
		for i, m := range mins {
			out[i] = queue.Item{EstimatedMinutes: m}
		}
		return out
	}
	assert.Equal(t, 3, SafeStopCount(mk(3, 3, 4, 1), 10))
	assert.Equal(t, 4, SafeStopCount(mk(2, 2, 2, 2), 8))
	assert.Equal(t, 1, SafeStopCount(mk(30, 1), 10))
	assert.Equal(t, 0, SafeStopCount(nil, 10))
}

func TestBuildBlocks_PartitionProperty(t *testing.T) {
	f := gofakeit.New(42)
	for round := 0; round < 50; round++ {
		n := f.IntRange(1, 40)
		items := make([]queue.Item, n)
		for i := range items {
			it := queue.Item{
				ID:               f.UUID(),
				ItemType:         queue.ItemType(f.IntRange(1, 3)),
				EstimatedMinutes: f.Float64Range(0, 15),
			}
			if f.Bool() {
				it.DueDate = due(time.Duration(f.IntRange(-20, 20)) * 24 * time.Hour)
			}
			items[i] = it
		}

		blocks := BuildBlocks(items, Options{Now: now})
		seen := make(map[string]int)
		for _, b := range blocks {
			require.NotEmpty(t, b.Items)
			assert.GreaterOrEqual(t, b.SafeStopCount, 1)
			assert.LessOrEqual(t, b.SafeStopCount, len(b.Items))
			for _, it := range b.Items {
				seen[it.ID]++
			}
		}
		require.Len(t, seen, n)
		for _, it := range items {
			assert.Equal(t, 1, seen[it.ID])
		}
	}
}

func ids(items []queue.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
