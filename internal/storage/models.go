package storage

import (
	"time"

	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/queue"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errs.ErrNotFound

// StoredItem is a queue item plus the bookkeeping the store keeps for it.
type StoredItem struct {
	queue.Item
	AddedAt time.Time
}

// RSSItem is an entry of a subscribed feed.
type RSSItem struct {
	ID               string
	FeedID           string
	Title            string
	Category         string
	Tags             []string
	EstimatedMinutes float64
	Read             bool
	PublishedAt      time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}
