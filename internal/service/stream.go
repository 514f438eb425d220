package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/storage"
	"github.com/kalambet/readq/internal/stream"
)

// StreamRequest overrides the configured mix for one stream build.
type StreamRequest struct {
	ReviewPercentage *float64 `json:"review_percentage,omitempty"`
}

// Stream builds the scroll stream from active documents, unread feed
// entries and review items that are due.
func (s *Service) Stream(ctx context.Context, req StreamRequest) ([]stream.Item, error) {
	var (
		items []queue.Item
		rss   []storage.RSSItem
		added = map[string]storage.StoredItem{}
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rss, err = s.store.ListRSSItems(true)
		return err
	})
	g.Go(func() error {
		stored, err := s.store.ListItems()
		for _, it := range stored {
			added[it.ID] = it
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errs.Unavailable(fmt.Errorf("loading stream candidates: %w", err))
	}
	items = queue.Active(s.state.Snapshot())

	now := s.now()
	var cands []stream.Candidate
	for _, it := range items {
		c := stream.Candidate{Item: it, AddedAt: added[it.ID].AddedAt}
		switch it.ItemType {
		case queue.Document:
			c.Kind = stream.KindDocument
		case queue.Extract:
			c.Kind = stream.KindExtract
		case queue.LearningItem:
			c.Kind = stream.KindLearningItem
		}
		if c.Kind.IsReview() && it.DueDate != nil && it.DueDate.After(now) {
			continue
		}
		cands = append(cands, c)
	}
	for _, r := range rss {
		cands = append(cands, stream.Candidate{
			Item: queue.Item{
				ID:               "rss:" + r.FeedID + ":" + r.ID,
				SourceDocumentID: r.FeedID,
				Title:            r.Title,
				ItemType:         queue.Document,
				EstimatedMinutes: r.EstimatedMinutes,
				Tags:             r.Tags,
				Category:         r.Category,
			},
			Kind:    stream.KindRSS,
			AddedAt: r.PublishedAt,
		})
	}

	cfg := s.opts.Stream
	if req.ReviewPercentage != nil {
		p := *req.ReviewPercentage
		if p < 0 || p > 100 {
			return nil, errs.Validationf("review percentage %v outside 0..100", p)
		}
		cfg.ReviewPercentage = p
	}
	return stream.Build(cands, cfg, now), nil
}

// StreamStart decides where a stream session opens and records it.
func (s *Service) StreamStart(ctx context.Context, key string, total, reviewed int) (stream.Resume, error) {
	if total < 0 || reviewed < 0 {
		return stream.Resume{}, errs.Validationf("total and reviewed must not be negative")
	}
	return s.resumer.Start(ctx, key, total, reviewed)
}

// StreamSave records the reader's position in a stream session.
func (s *Service) StreamSave(ctx context.Context, key string, position int) error {
	return s.resumer.Save(ctx, key, position)
}

// UpsertRSS stores feed entries.
func (s *Service) UpsertRSS(ctx context.Context, items []storage.RSSItem) error {
	for _, it := range items {
		if it.FeedID == "" || it.ID == "" {
			return errs.Validationf("feed id and item id are required")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.UpsertRSSItem(it); err != nil {
			return errs.Unavailable(err)
		}
	}
	return nil
}

// MarkRead flags a feed entry read or unread.
func (s *Service) MarkRead(ctx context.Context, feedID, itemID string, read bool) error {
	release, ok := s.state.Acquire("rss:" + feedID + ":" + itemID)
	if !ok {
		return fmt.Errorf("marking %s/%s: %w", feedID, itemID, ErrInFlight)
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.MarkRead(feedID, itemID, read)
}
