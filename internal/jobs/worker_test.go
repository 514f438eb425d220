package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/storage"
)

type mockOptimizer struct {
	optimizeFn func(ctx context.Context, initial optimizer.Params) (optimizer.Result, error)
}

func (m *mockOptimizer) Optimize(ctx context.Context, initial optimizer.Params) (optimizer.Result, error) {
	return m.optimizeFn(ctx, initial)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, store *storage.Store, id string, p optimizer.Params) {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, store.EnqueueJob(storage.Job{ID: id, Type: TypeOptimize, PayloadJSON: string(payload)}))
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "job-1", optimizer.DefaultParams())

	var got optimizer.Params
	w := NewWorker(store, &mockOptimizer{optimizeFn: func(_ context.Context, p optimizer.Params) (optimizer.Result, error) {
		got = p
		return optimizer.Result{BestParams: p, ExpectedRetention: 0.87, Iterations: 4, Converged: true}, nil
	}}, time.Millisecond)

	done, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, optimizer.DefaultParams(), got)

	job, err := store.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)

	var res optimizer.Result
	require.NoError(t, json.Unmarshal([]byte(job.ResultJSON), &res))
	assert.Equal(t, 0.87, res.ExpectedRetention)
	assert.True(t, res.Converged)
}

func TestWorker_NoJobs(t *testing.T) {
	w := NewWorker(openTestStore(t), &mockOptimizer{}, 0)
	done, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestWorker_FailureIsRecorded(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "job-2", optimizer.DefaultParams())

	w := NewWorker(store, &mockOptimizer{optimizeFn: func(context.Context, optimizer.Params) (optimizer.Result, error) {
		return optimizer.Result{}, errors.New("history unreadable")
	}}, 0)

	done, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, done)

	job, err := store.GetJob("job-2")
	require.NoError(t, err)
	assert.Equal(t, "pending", job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "history unreadable")
}

func TestWorker_BadPayload(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.EnqueueJob(storage.Job{ID: "job-3", Type: TypeOptimize, PayloadJSON: "not json"}))

	w := NewWorker(store, &mockOptimizer{}, 0)
	done, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, done)

	job, err := store.GetJob("job-3")
	require.NoError(t, err)
	assert.Contains(t, job.LastError, "parsing payload")
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(openTestStore(t), &mockOptimizer{}, 5*time.Millisecond)

	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
