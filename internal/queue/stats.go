package queue

import "time"

// Stats summarizes a queue snapshot.
type Stats struct {
	TotalItems            int     `json:"total_items"`
	DueToday              int     `json:"due_today"`
	Overdue               int     `json:"overdue"`
	NewItems              int     `json:"new_items"`
	LearningItems         int     `json:"learning_items"`
	ReviewItems           int     `json:"review_items"`
	TotalEstimatedMinutes float64 `json:"total_estimated_minutes"`
	Suspended             int     `json:"suspended"`
}

// ComputeStats counts items by status. Suspended items only count towards
// TotalItems and Suspended. DueToday counts everything due at or before
// now; Overdue is the strictly past-due subset.
func ComputeStats(items []Item, c Classifier, now time.Time) Stats {
	st := Stats{TotalItems: len(items)}
	for _, it := range items {
		if it.Suspended {
			st.Suspended++
			continue
		}
		st.TotalEstimatedMinutes += it.EstimatedMinutes
		switch c.Classify(it.ItemType, it.DueDate, now) {
		case StatusNew:
			st.NewItems++
		case StatusLearning:
			st.LearningItems++
		case StatusReview:
			st.ReviewItems++
		}
		if it.DueDate == nil {
			continue
		}
		if it.DueDate.After(now) {
			continue
		}
		st.DueToday++
		if it.DueDate.Before(now) {
			st.Overdue++
		}
	}
	return st
}
