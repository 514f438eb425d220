package optimizer

import (
	"time"

	"github.com/kalambet/readq/internal/srs"
)

// ItemSchedule pairs an item with its stored scheduling state.
type ItemSchedule struct {
	ItemID string    `json:"item_id"`
	State  srs.State `json:"state"`
}

// ReviewStatistics summarizes scheduling state and history.
type ReviewStatistics struct {
	TotalItems        int     `json:"total_items"`
	TotalReviews      int     `json:"total_reviews"`
	TotalLapses       int     `json:"total_lapses"`
	AvgInterval       float64 `json:"avg_interval"`
	RetentionEstimate float64 `json:"retention_estimate"`
	DueToday          int     `json:"due_today"`
	DueWeek           int     `json:"due_week"`
	DueMonth          int     `json:"due_month"`
}

// Statistics computes aggregate review statistics. With no history the
// retention estimate falls back to the default target of 0.9.
func Statistics(items []ItemSchedule, history []Review, now time.Time) ReviewStatistics {
	st := ReviewStatistics{TotalItems: len(items), TotalReviews: len(history)}
	day := 24 * time.Hour
	var intervals int
	for _, it := range items {
		st.TotalLapses += it.State.Lapses
		intervals += it.State.IntervalDays
		due := it.State.DueDate
		if due.Before(now.Add(day)) {
			st.DueToday++
		}
		if due.Before(now.Add(7 * day)) {
			st.DueWeek++
		}
		if due.Before(now.Add(30 * day)) {
			st.DueMonth++
		}
	}
	if len(items) > 0 {
		st.AvgInterval = float64(intervals) / float64(len(items))
	}
	st.RetentionEstimate = recallShare(history, srs.DefaultDesiredRetention)
	return st
}

// AlgorithmComparison aggregates items scheduled by one algorithm.
type AlgorithmComparison struct {
	Algorithm    srs.Algorithm `json:"algorithm"`
	ItemCount    int           `json:"item_count"`
	TotalReviews int           `json:"total_reviews"`
	AvgInterval  float64       `json:"avg_interval"`
	AvgRetention float64       `json:"avg_retention"`
}

// Compare reports one row per known algorithm, measuring retention from the
// history of the items each algorithm schedules.
func Compare(items []ItemSchedule, history []Review) []AlgorithmComparison {
	algOf := make(map[string]srs.Algorithm, len(items))
	for _, it := range items {
		algOf[it.ItemID] = it.State.Algorithm
	}
	logs := make(map[srs.Algorithm][]Review)
	for _, r := range history {
		if alg, ok := algOf[r.ItemID]; ok {
			logs[alg] = append(logs[alg], r)
		}
	}

	algs := []srs.Algorithm{srs.AlgorithmSM2, srs.AlgorithmFSRS}
	out := make([]AlgorithmComparison, 0, len(algs))
	for _, alg := range algs {
		c := AlgorithmComparison{Algorithm: alg, TotalReviews: len(logs[alg])}
		var intervals int
		for _, it := range items {
			if it.State.Algorithm != alg {
				continue
			}
			c.ItemCount++
			intervals += it.State.IntervalDays
		}
		if c.ItemCount > 0 {
			c.AvgInterval = float64(intervals) / float64(c.ItemCount)
		}
		c.AvgRetention = recallShare(logs[alg], 0)
		out = append(out, c)
	}
	return out
}

func recallShare(history []Review, fallback float64) float64 {
	if len(history) == 0 {
		return fallback
	}
	var recalled int
	for _, r := range history {
		if r.Recalled() {
			recalled++
		}
	}
	return float64(recalled) / float64(len(history))
}
