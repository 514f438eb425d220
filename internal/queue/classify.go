package queue

import (
	"fmt"
	"time"
)

// Status is the scheduling lane an item belongs to at a given instant.
type Status int

const (
	StatusNew Status = iota + 1
	StatusLearning
	StatusReview
	StatusDue
	StatusDueOverdue
	StatusDrifted
	StatusScheduled
)

var statusNames = [...]string{
	StatusNew:        "new",
	StatusLearning:   "learning",
	StatusReview:     "review",
	StatusDue:        "due",
	StatusDueOverdue: "due-overdue",
	StatusDrifted:    "drifted",
	StatusScheduled:  "scheduled",
}

func (s Status) String() string {
	if s >= StatusNew && s <= StatusScheduled {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DefaultDriftAfter is how long past due a document must be to count as drifted.
const DefaultDriftAfter = 7 * 24 * time.Hour

// Classifier assigns statuses with a configurable drift threshold.
type Classifier struct {
	DriftAfter time.Duration
}

// Classify uses the default drift threshold.
func Classify(t ItemType, due *time.Time, now time.Time) Status {
	return Classifier{}.Classify(t, due, now)
}

// Classify is total and deterministic for a fixed now.
func (c Classifier) Classify(t ItemType, due *time.Time, now time.Time) Status {
	switch t {
	case LearningItem:
		return StatusReview
	case Extract:
		return StatusLearning
	}
	if due == nil {
		return StatusNew
	}
	drift := c.DriftAfter
	if drift <= 0 {
		drift = DefaultDriftAfter
	}
	switch {
	case now.Sub(*due) >= drift:
		return StatusDrifted
	case due.Before(now):
		return StatusDueOverdue
	case due.Equal(now):
		return StatusDue
	default:
		return StatusScheduled
	}
}
