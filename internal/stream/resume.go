package stream

import (
	"context"
	"fmt"

	"github.com/kalambet/readq/internal/errs"
)

// Resume is where a stream session should open.
type Resume struct {
	StartPosition int    `json:"start_position"`
	IsResuming    bool   `json:"is_resuming"`
	Reason        string `json:"reason"`
}

// Policy decides the start of a stream when a previous position exists.
// last is always within [0, total).
type Policy interface {
	Decide(total, last, reviewed int) Resume
}

// DefaultPolicy continues an active session where it was, picks up after
// the last position for a new session and, once the stream has been read
// to the end, opens DiscoveryStride items in so the same head is not
// shown first every time.
type DefaultPolicy struct {
	DiscoveryStride int
}

func (p DefaultPolicy) Decide(total, last, reviewed int) Resume {
	switch {
	case reviewed > 0:
		return Resume{StartPosition: last, IsResuming: true, Reason: "continue-session"}
	case last+1 < total:
		return Resume{StartPosition: last + 1, IsResuming: true, Reason: "resume-after-last"}
	}
	stride := p.DiscoveryStride
	if stride <= 0 {
		stride = 3
	}
	return Resume{StartPosition: stride % total, Reason: "discovery"}
}

// StartPosition applies policy to a stream of total items. Without a prior
// position it starts at 0. The returned start is always below total for a
// non-empty stream.
func StartPosition(total int, last *int, reviewed int, policy Policy) Resume {
	if total <= 0 {
		return Resume{Reason: "empty-stream"}
	}
	if last == nil || *last < 0 {
		return Resume{Reason: "fresh-session"}
	}
	if policy == nil {
		policy = DefaultPolicy{}
	}
	r := policy.Decide(total, min(*last, total-1), reviewed)
	r.StartPosition = min(max(r.StartPosition, 0), total-1)
	return r
}

// PositionStore persists the last stream position per session key.
type PositionStore interface {
	LoadPosition(ctx context.Context, key string) (int, bool, error)
	SavePosition(ctx context.Context, key string, position int) error
}

// Resumer owns the load, decide and save cycle of a stream session.
type Resumer struct {
	store  PositionStore
	policy Policy
}

// NewResumer returns a Resumer; a nil policy selects DefaultPolicy.
func NewResumer(store PositionStore, policy Policy) *Resumer {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Resumer{store: store, policy: policy}
}

// Start decides where session key opens and records that position.
func (r *Resumer) Start(ctx context.Context, key string, total, reviewed int) (Resume, error) {
	if key == "" {
		return Resume{}, errs.Validationf("session key is required")
	}
	pos, ok, err := r.store.LoadPosition(ctx, key)
	if err != nil {
		return Resume{}, fmt.Errorf("loading position for %s: %w", key, err)
	}
	var last *int
	if ok {
		last = &pos
	}
	res := StartPosition(total, last, reviewed, r.policy)
	if total > 0 {
		if err := r.store.SavePosition(ctx, key, res.StartPosition); err != nil {
			return Resume{}, fmt.Errorf("saving position for %s: %w", key, err)
		}
	}
	return res, nil
}

// Save records the reader's current position in session key.
func (r *Resumer) Save(ctx context.Context, key string, position int) error {
	if key == "" {
		return errs.Validationf("session key is required")
	}
	if position < 0 {
		return errs.Validationf("position %d is negative", position)
	}
	return r.store.SavePosition(ctx, key, position)
}
