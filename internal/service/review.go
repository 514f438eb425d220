package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/jobs"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/state"
	"github.com/kalambet/readq/internal/storage"
)

// Rate applies a rating to an item and persists the resulting state. A
// failure leaves both the store and the cache untouched.
func (s *Service) Rate(ctx context.Context, id string, rating srs.Rating) (srs.State, error) {
	if err := rating.Validate(); err != nil {
		return srs.State{}, err
	}
	release, ok := s.state.Acquire(id)
	if !ok {
		return srs.State{}, fmt.Errorf("rating %s: %w", id, ErrInFlight)
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return srs.State{}, err
	}

	current, err := s.currentSchedule(id)
	if err != nil {
		return srs.State{}, err
	}
	strategy, ok := s.strategies[current.Algorithm]
	if !ok {
		return srs.State{}, errs.Validationf("item %s uses unknown algorithm %q", id, current.Algorithm)
	}

	now := s.now()
	view := s.currentView()
	next, err := strategy.Apply(current, rating, now)
	if err != nil {
		return srs.State{}, err
	}
	if err := s.store.RecordReview(id, next, optimizer.Review{ItemID: id, Rating: rating, ReviewedAt: now}); err != nil {
		return srs.State{}, errs.Unavailable(fmt.Errorf("recording review of %s: %w", id, err))
	}
	s.state.Commit(view, func(st *state.Store) { st.SetDue(id, next.DueDate) })
	s.logger.Info("item rated", "item_id", id, "rating", rating, "interval_days", next.IntervalDays)
	return next, nil
}

// currentSchedule loads the stored state of id or starts a fresh one for a
// known item that was never reviewed.
func (s *Service) currentSchedule(id string) (srs.State, error) {
	st, err := s.store.GetSchedule(id)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return srs.State{}, errs.Unavailable(err)
	}
	if _, err := s.store.GetItem(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return srs.State{}, errs.NotFoundf("item %s", id)
		}
		return srs.State{}, errs.Unavailable(err)
	}
	ease := s.opts.SM2.InitialEaseFactor
	return srs.NewState(s.opts.Algorithm, ease, s.now()), nil
}

// AlgorithmParams returns the scheduling state of a learning item. Items
// that were never rated report a fresh state.
func (s *Service) AlgorithmParams(id string) (srs.State, error) {
	st, err := s.store.GetSchedule(id)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return srs.State{}, errs.Unavailable(err)
	}
	it, err := s.store.GetItem(id)
	if err != nil {
		return srs.State{}, fmt.Errorf("params of %s: %w", id, err)
	}
	if it.ItemType != queue.LearningItem {
		return srs.State{}, errs.NotFoundf("no scheduling state for %s %s", it.ItemType, id)
	}
	return srs.NewState(s.opts.Algorithm, s.opts.SM2.InitialEaseFactor, s.now()), nil
}

// ReviewStatistics aggregates stored states and history.
func (s *Service) ReviewStatistics() (optimizer.ReviewStatistics, error) {
	items, history, err := s.history()
	if err != nil {
		return optimizer.ReviewStatistics{}, err
	}
	return optimizer.Statistics(items, history, s.now()), nil
}

// CompareAlgorithms reports per-algorithm aggregates.
func (s *Service) CompareAlgorithms() ([]optimizer.AlgorithmComparison, error) {
	items, history, err := s.history()
	if err != nil {
		return nil, err
	}
	return optimizer.Compare(items, history), nil
}

func (s *Service) history() ([]optimizer.ItemSchedule, []optimizer.Review, error) {
	items, err := s.store.ListSchedules()
	if err != nil {
		return nil, nil, errs.Unavailable(err)
	}
	history, err := s.store.ListReviews()
	if err != nil {
		return nil, nil, errs.Unavailable(err)
	}
	return items, history, nil
}

// OpOptimize is the state operation held while an optimization runs.
const OpOptimize = "optimize"

// Optimize tunes parameters against the stored history within the
// configured timeout. A zero initial value starts from the defaults. Only
// one optimization runs at a time; others get ErrInFlight.
func (s *Service) Optimize(ctx context.Context, initial optimizer.Params) (optimizer.Result, error) {
	release, ok := s.state.AcquireOp(OpOptimize)
	if !ok {
		return optimizer.Result{}, fmt.Errorf("optimizing: %w", ErrInFlight)
	}
	defer release()

	if initial == (optimizer.Params{}) {
		initial = optimizer.DefaultParams()
	}
	history, err := s.store.ListReviews()
	if err != nil {
		return optimizer.Result{}, errs.Unavailable(err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OptimizeTimeout)
	defer cancel()

	res, err := optimizer.New(s.opts.Optimizer).Optimize(ctx, initial, history)
	if err != nil {
		return optimizer.Result{}, err
	}
	s.logger.Info("optimization finished", "iterations", res.Iterations, "converged", res.Converged, "expected_retention", res.ExpectedRetention)
	return res, nil
}

// EnqueueOptimize queues an optimization for the background worker and
// returns the job id.
func (s *Service) EnqueueOptimize(initial optimizer.Params) (string, error) {
	if initial != (optimizer.Params{}) {
		if err := initial.Validate(); err != nil {
			return "", err
		}
	}
	payload, err := json.Marshal(initial)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := s.store.EnqueueJob(storage.Job{ID: id, Type: jobs.TypeOptimize, PayloadJSON: string(payload)}); err != nil {
		return "", errs.Unavailable(err)
	}
	return id, nil
}

// OptimizationJob reports the status of a queued optimization.
type OptimizationJob struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	Result    *optimizer.Result `json:"result,omitempty"`
}

// GetOptimization looks up a queued optimization.
func (s *Service) GetOptimization(id string) (OptimizationJob, error) {
	j, err := s.store.GetJob(id)
	if err != nil {
		return OptimizationJob{}, err
	}
	if j.Type != jobs.TypeOptimize {
		return OptimizationJob{}, errs.NotFoundf("optimization %s", id)
	}
	out := OptimizationJob{ID: j.ID, Status: j.Status, Attempts: j.Attempts, LastError: j.LastError}
	if j.ResultJSON != "" {
		var res optimizer.Result
		if err := json.Unmarshal([]byte(j.ResultJSON), &res); err != nil {
			return OptimizationJob{}, fmt.Errorf("decoding result of %s: %w", id, err)
		}
		out.Result = &res
	}
	return out, nil
}
