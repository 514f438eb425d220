// Package bulk applies one mutation to many queue items with per-item
// failure isolation.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kalambet/readq/internal/errs"
)

// Op is a bulk mutation.
type Op int

const (
	Suspend Op = iota + 1
	Unsuspend
	Delete
)

func (o Op) String() string {
	switch o {
	case Suspend:
		return "suspend"
	case Unsuspend:
		return "unsuspend"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp accepts "suspend", "unsuspend" or "delete".
func ParseOp(s string) (Op, error) {
	for _, o := range []Op{Suspend, Unsuspend, Delete} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, errs.Validationf("unknown bulk operation %q", s)
}

// Mutator applies op to a single id. Returning an error that wraps
// errs.ErrBackendUnavailable fails the whole batch.
type Mutator interface {
	Mutate(ctx context.Context, op Op, id string) error
}

// MutatorFunc adapts a function to Mutator.
type MutatorFunc func(ctx context.Context, op Op, id string) error

func (f MutatorFunc) Mutate(ctx context.Context, op Op, id string) error { return f(ctx, op, id) }

// Pinger is implemented by mutators that can report reachability up front.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result records per-id outcomes. Errors is parallel to Failed and each
// entry reads "id: reason".
type Result struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Errors    []string `json:"errors"`
}

// Partial reports whether some, but not all, ids failed.
func (r Result) Partial() bool {
	return len(r.Failed) > 0 && len(r.Succeeded) > 0
}

// Options bound the fan-out. Zero Concurrency means 4; zero RatePerSecond
// means unthrottled.
type Options struct {
	Concurrency   int
	RatePerSecond float64
}

// Coordinator runs bulk mutations.
type Coordinator struct {
	mutator Mutator
	limit   int
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New returns a Coordinator that issues mutations through m.
func New(m Mutator, opts Options) *Coordinator {
	c := &Coordinator{mutator: m, limit: opts.Concurrency, logger: slog.Default()}
	if c.limit <= 0 {
		c.limit = 4
	}
	if opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return c
}

// Apply mutates every distinct id. Individual failures land in the result;
// a backend-wide failure aborts the batch and is returned as an error.
// Once started, a batch runs to completion even if ctx is cancelled.
func (c *Coordinator) Apply(ctx context.Context, ids []string, op Op) (Result, error) {
	if op < Suspend || op > Delete {
		return Result{}, errs.Validationf("unknown bulk operation %d", int(op))
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if p, ok := c.mutator.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, errs.Unavailable(err)
		}
	}

	ids = dedupe(ids)
	outcomes := make([]error, len(ids))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(c.limit)
	for i, id := range ids {
		g.Go(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(gctx); err != nil {
					return batchError(gctx, err)
				}
			}
			err := c.mutator.Mutate(gctx, op, id)
			if errors.Is(err, errs.ErrBackendUnavailable) {
				return err
			}
			outcomes[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("bulk operation aborted", "op", op, "ids", len(ids), "error", err)
		return Result{}, err
	}

	res := Result{Succeeded: []string{}, Failed: []string{}, Errors: []string{}}
	for i, id := range ids {
		if outcomes[i] == nil {
			res.Succeeded = append(res.Succeeded, id)
			continue
		}
		res.Failed = append(res.Failed, id)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", id, outcomes[i]))
	}
	if len(res.Failed) > 0 {
		c.logger.Info("bulk operation finished with failures", "op", op, "succeeded", len(res.Succeeded), "failed", len(res.Failed))
	}
	return res, nil
}

// batchError converts a limiter wait failure into a batch abort. The wait
// context only ends when another mutation already aborted the batch.
func batchError(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return errs.Unavailable(err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
