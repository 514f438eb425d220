// Package session splits a ranked queue into time-boxed study blocks.
package session

import (
	"time"

	"github.com/kalambet/readq/internal/queue"
)

// Block ids.
const (
	OverdueRescue = "overdue-rescue"
	Maintenance   = "maintenance"
	Explore       = "explore"
	Focus         = "focus"
)

// Budgets are per-block time budgets in minutes.
type Budgets struct {
	Overdue     float64 `json:"overdue"`
	Maintenance float64 `json:"maintenance"`
	Explore     float64 `json:"explore"`
	Fallback    float64 `json:"fallback"`
}

// DefaultBudgets returns 10/15/20 minutes with a 15 minute fallback.
func DefaultBudgets() Budgets {
	return Budgets{Overdue: 10, Maintenance: 15, Explore: 20, Fallback: 15}
}

func (b Budgets) withDefaults() Budgets {
	d := DefaultBudgets()
	if b.Overdue <= 0 {
		b.Overdue = d.Overdue
	}
	if b.Maintenance <= 0 {
		b.Maintenance = d.Maintenance
	}
	if b.Explore <= 0 {
		b.Explore = d.Explore
	}
	if b.Fallback <= 0 {
		b.Fallback = d.Fallback
	}
	return b
}

// Options configures BuildBlocks.
type Options struct {
	Now        time.Time
	Budgets    Budgets
	Classifier queue.Classifier
}

// Block is a bounded run of items with a suggested stopping point.
type Block struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	TimeBudgetMinutes float64      `json:"time_budget_minutes"`
	Items             []queue.Item `json:"items"`
	SafeStopCount     int          `json:"safe_stop_count"`
}

// BuildBlocks partitions items, which the caller has already filtered and
// ordered, into drifted documents, learning items and everything else.
// Empty buckets are skipped; with no items at all a single empty Focus block
// is returned.
func BuildBlocks(items []queue.Item, opts Options) []Block {
	b := opts.Budgets.withDefaults()
	var drifted, review, rest []queue.Item
	for _, it := range items {
		switch {
		case it.ItemType == queue.LearningItem:
			review = append(review, it)
		case opts.Classifier.Classify(it.ItemType, it.DueDate, opts.Now) == queue.StatusDrifted:
			drifted = append(drifted, it)
		default:
			rest = append(rest, it)
		}
	}

	var blocks []Block
	add := func(id, title string, budget float64, its []queue.Item) {
		if len(its) == 0 {
			return
		}
		blocks = append(blocks, newBlock(id, title, budget, its))
	}
	add(OverdueRescue, "Overdue Rescue", b.Overdue, drifted)
	add(Maintenance, "High-Retention Maintenance", b.Maintenance, review)
	add(Explore, "New Material Exploration", b.Explore, rest)
	if len(blocks) == 0 {
		blocks = append(blocks, newBlock(Focus, "Focus Block", b.Fallback, items))
	}
	return blocks
}

func newBlock(id, title string, budget float64, items []queue.Item) Block {
	return Block{
		ID:                id,
		Title:             title,
		TimeBudgetMinutes: budget,
		Items:             items,
		SafeStopCount:     SafeStopCount(items, budget),
	}
}

// SafeStopCount is the longest prefix of items that fits in budget minutes,
// floored at one for non-empty input.
func SafeStopCount(items []queue.Item, budget float64) int {
	if len(items) == 0 {
		return 0
	}
	var spent float64
	k := 0
	for _, it := range items {
		spent += it.EstimatedMinutes
		if spent > budget {
			break
		}
		k++
	}
	return max(k, 1)
}
