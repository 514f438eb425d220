// Package queue models the review queue: the items in it, how each is
// classified against the clock, and how items are scored and ranked.
package queue

import (
	"fmt"
	"time"

	"github.com/kalambet/readq/internal/errs"
)

// ItemType is the closed set of queue item kinds.
type ItemType int

const (
	Document ItemType = iota + 1
	Extract
	LearningItem
)

var itemTypeNames = [...]string{Document: "document", Extract: "extract", LearningItem: "learning-item"}

func (t ItemType) String() string {
	if t.IsValid() {
		return itemTypeNames[t]
	}
	return fmt.Sprintf("ItemType(%d)", int(t))
}

func (t ItemType) IsValid() bool { return t >= Document && t <= LearningItem }

func (t ItemType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, errs.Validationf("item type %d", int(t))
	}
	return []byte(itemTypeNames[t]), nil
}

func (t *ItemType) UnmarshalText(b []byte) error {
	v, err := ParseItemType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseItemType accepts "document", "extract" or "learning-item".
func ParseItemType(s string) (ItemType, error) {
	for t := Document; t <= LearningItem; t++ {
		if itemTypeNames[t] == s {
			return t, nil
		}
	}
	return 0, errs.Validationf("unknown item type %q", s)
}

// Item is a snapshot of one reviewable unit. The owning store supplies it;
// everything in this package returns derived values instead of mutating it.
type Item struct {
	ID               string     `json:"id"`
	SourceDocumentID string     `json:"source_document_id"`
	Title            string     `json:"title"`
	ItemType         ItemType   `json:"item_type"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes float64    `json:"estimated_minutes"`
	Tags             []string   `json:"tags"`
	Category         string     `json:"category,omitempty"`
	PriorityRating   int        `json:"priority_rating"`
	PrioritySlider   int        `json:"priority_slider"`
	ProgressPercent  float64    `json:"progress_percent"`
	Suspended        bool       `json:"suspended"`
}

// Validate checks the documented field domains.
func (it Item) Validate() error {
	switch {
	case it.ID == "":
		return errs.Validationf("item id is required")
	case !it.ItemType.IsValid():
		return errs.Validationf("item %s: unknown item type", it.ID)
	case it.PriorityRating < 0 || it.PriorityRating > 4:
		return errs.Validationf("item %s: priority rating %d outside 0..4", it.ID, it.PriorityRating)
	case it.PrioritySlider < 0 || it.PrioritySlider > 100:
		return errs.Validationf("item %s: priority slider %d outside 0..100", it.ID, it.PrioritySlider)
	case it.ProgressPercent < 0 || it.ProgressPercent > 100:
		return errs.Validationf("item %s: progress %v outside 0..100", it.ID, it.ProgressPercent)
	case it.EstimatedMinutes < 0:
		return errs.Validationf("item %s: negative estimated minutes", it.ID)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with it.
func (it Item) Clone() Item {
	c := it
	if it.DueDate != nil {
		d := *it.DueDate
		c.DueDate = &d
	}
	c.Tags = append([]string(nil), it.Tags...)
	return c
}

// TagSet returns the distinct tags of it.
func (it Item) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(it.Tags))
	for _, t := range it.Tags {
		set[t] = struct{}{}
	}
	return set
}

// Active drops suspended items.
func Active(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.Suspended {
			out = append(out, it)
		}
	}
	return out
}
