// Package service wires the scheduling core to the store and the cached
// application state. Every operation the API and MCP surfaces expose goes
// through a Service method.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/readq/internal/bulk"
	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/session"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/state"
	"github.com/kalambet/readq/internal/storage"
	"github.com/kalambet/readq/internal/stream"
)

// ErrInFlight is returned when an item already has a mutation running, or
// when an optimization is already in progress.
var ErrInFlight = errors.New("already in flight")

// Options tune the scheduling core. Zero values take package defaults.
type Options struct {
	Algorithm       srs.Algorithm
	SM2             srs.SM2Config
	FSRS            srs.FSRSConfig
	Classifier      queue.Classifier
	Budgets         session.Budgets
	Stream          stream.Config
	Bulk            bulk.Options
	Optimizer       optimizer.Config
	OptimizeTimeout time.Duration
}

// Service is the application facade.
type Service struct {
	store      *storage.Store
	state      *state.Store
	strategies map[srs.Algorithm]srs.Strategy
	opts       Options
	bulk       *bulk.Coordinator
	resumer    *stream.Resumer
	viewMu     sync.Mutex
	view       state.Session
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Service over store. It does not load anything; call Refresh.
func New(store *storage.Store, opts Options) (*Service, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = srs.AlgorithmSM2
	}
	if _, err := srs.ParseAlgorithm(string(opts.Algorithm)); err != nil {
		return nil, err
	}
	fsrs, err := srs.NewFSRS(opts.FSRS)
	if err != nil {
		return nil, fmt.Errorf("configuring fsrs: %w", err)
	}
	if opts.OptimizeTimeout <= 0 {
		opts.OptimizeTimeout = 10 * time.Second
	}
	s := &Service{
		store: store,
		state: state.New(),
		strategies: map[srs.Algorithm]srs.Strategy{
			srs.AlgorithmSM2:  srs.NewSM2(opts.SM2),
			srs.AlgorithmFSRS: fsrs,
		},
		opts:    opts,
		resumer: stream.NewResumer(store, nil),
		logger:  slog.Default(),
		now:     time.Now,
	}
	s.bulk = bulk.New(storeMutator{store}, opts.Bulk)
	s.view = s.state.BeginSession()
	return s, nil
}

// State exposes the cached state for subscribers.
func (s *Service) State() *state.Store { return s.state }

// Refresh reloads the cache from the store. Results of mutations that were
// started before the reload are not applied to the new snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := s.store.ListItems()
	if err != nil {
		return errs.Unavailable(fmt.Errorf("listing items: %w", err))
	}
	items := make([]queue.Item, len(stored))
	for i, it := range stored {
		items[i] = it.Item
	}
	s.viewMu.Lock()
	s.view = s.state.Reload(items)
	s.viewMu.Unlock()
	s.logger.Debug("queue refreshed", "items", len(items))
	return nil
}

func (s *Service) currentView() state.Session {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.view
}

// Queue returns the cached queue.
func (s *Service) Queue() []queue.Item {
	return s.state.Snapshot()
}

// Stats summarizes the cached queue.
func (s *Service) Stats() queue.Stats {
	return queue.ComputeStats(s.state.Snapshot(), s.opts.Classifier, s.now())
}

// UpsertItems validates and stores item snapshots, then caches them. Items
// without an id get a fresh one; ids are returned in input order.
func (s *Service) UpsertItems(ctx context.Context, items []queue.Item) ([]string, error) {
	items = slices.Clone(items)
	ids := make([]string, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		if err := items[i].Validate(); err != nil {
			return nil, err
		}
		ids[i] = items[i].ID
	}
	view := s.currentView()
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.store.UpsertItem(it); err != nil {
			return nil, fmt.Errorf("storing %s: %w", it.ID, err)
		}
	}
	s.state.Commit(view, func(st *state.Store) { st.Upsert(items...) })
	return ids, nil
}

// Ranked scores the active queue under the named preset.
func (s *Service) Ranked(preset string) ([]queue.Scored, error) {
	p, err := queue.PresetByName(preset)
	if err != nil {
		return nil, err
	}
	return queue.Rank(queue.Active(s.state.Snapshot()), p, s.now()), nil
}

// ItemPriority is the derived view of one item.
type ItemPriority struct {
	queue.Scored
	Status queue.Status `json:"status"`
}

// Priority scores and classifies one cached item.
func (s *Service) Priority(id, preset string) (ItemPriority, error) {
	p, err := queue.PresetByName(preset)
	if err != nil {
		return ItemPriority{}, err
	}
	it, ok := s.state.Get(id)
	if !ok {
		return ItemPriority{}, errs.NotFoundf("item %s", id)
	}
	now := s.now()
	return ItemPriority{
		Scored: queue.Scored{Item: it, Vector: queue.VectorOf(it, now), Score: queue.ScoreOf(it, p, now)},
		Status: s.opts.Classifier.Classify(it.ItemType, it.DueDate, now),
	}, nil
}

// Postpone pushes an item's due date back by 1 to 365 days. The cache only
// changes once the store accepted the new date.
func (s *Service) Postpone(ctx context.Context, id string, days int) (time.Time, error) {
	if days < 1 || days > 365 {
		return time.Time{}, errs.Validationf("postpone days %d outside 1..365", days)
	}
	release, ok := s.state.Acquire(id)
	if !ok {
		return time.Time{}, fmt.Errorf("postponing %s: %w", id, ErrInFlight)
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	view := s.currentView()
	due, err := s.store.Postpone(id, days)
	if err != nil {
		return time.Time{}, fmt.Errorf("postponing %s: %w", id, err)
	}
	s.state.Commit(view, func(st *state.Store) { st.SetDue(id, due) })
	return due, nil
}

// Bulk applies op to ids and reconciles the cache with the ids that succeeded.
func (s *Service) Bulk(ctx context.Context, ids []string, op bulk.Op) (bulk.Result, error) {
	view := s.currentView()
	res, err := s.bulk.Apply(ctx, ids, op)
	if err != nil {
		return bulk.Result{}, err
	}
	s.state.Commit(view, func(st *state.Store) {
		switch op {
		case bulk.Suspend:
			st.SetSuspended(res.Succeeded, true)
		case bulk.Unsuspend:
			st.SetSuspended(res.Succeeded, false)
		case bulk.Delete:
			st.Remove(res.Succeeded)
		}
	})
	return res, nil
}

// BlocksRequest selects the items and budgets of a session plan.
type BlocksRequest struct {
	Preset  string          `json:"preset"`
	Budgets session.Budgets `json:"budgets"`
}

// SessionBlocks ranks the active queue and splits it into session blocks.
func (s *Service) SessionBlocks(req BlocksRequest) ([]session.Block, error) {
	p, err := queue.PresetByName(req.Preset)
	if err != nil {
		return nil, err
	}
	budgets := req.Budgets
	if budgets == (session.Budgets{}) {
		budgets = s.opts.Budgets
	}
	now := s.now()
	items := queue.Sort(queue.Active(s.state.Snapshot()), p, now)
	return session.BuildBlocks(items, session.Options{Now: now, Budgets: budgets, Classifier: s.opts.Classifier}), nil
}

// ScheduleDocuments picks the documents to read next.
func (s *Service) ScheduleDocuments(maxDaily, cardsPerDocument int) ([]string, error) {
	return queue.ScheduleDocuments(s.state.Snapshot(), maxDaily, cardsPerDocument, s.now())
}

// storeMutator adapts the store to bulk.Mutator.
type storeMutator struct {
	store *storage.Store
}

func (m storeMutator) Ping(ctx context.Context) error { return m.store.Ping(ctx) }

func (m storeMutator) Mutate(ctx context.Context, op bulk.Op, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	switch op {
	case bulk.Suspend:
		err = m.store.SetSuspended(id, true)
	case bulk.Unsuspend:
		err = m.store.SetSuspended(id, false)
	case bulk.Delete:
		err = m.store.DeleteItem(id)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errs.Unavailable(err)
	}
	return err
}
