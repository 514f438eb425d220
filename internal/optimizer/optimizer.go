// Package optimizer tunes SM-2 parameters against a user's review history.
//
// The search is coordinate descent over a bounded box of
// (minimum ease factor, initial ease factor, desired retention) with a
// shrinking step. Each candidate is scored by replaying the history through
// an SM-2 strategy built from it and measuring how much probability the
// resulting forgetting curve assigns to the outcomes that actually happened.
package optimizer

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/kalambet/readq/internal/errs"
	"github.com/kalambet/readq/internal/srs"
)

// Params are the tunable scheduling parameters.
type Params struct {
	MinEaseFactor     float64 `json:"min_ease_factor"`
	InitialEaseFactor float64 `json:"initial_ease_factor"`
	DesiredRetention  float64 `json:"desired_retention"`
}

// DefaultParams returns the stock SM-2 parameters.
func DefaultParams() Params {
	return Params{
		MinEaseFactor:     srs.DefaultMinEaseFactor,
		InitialEaseFactor: srs.DefaultInitialEaseFactor,
		DesiredRetention:  srs.DefaultDesiredRetention,
	}
}

type bound struct{ lo, hi float64 }

var bounds = [3]bound{
	{1.1, 2.0},   // min ease factor
	{1.5, 3.5},   // initial ease factor
	{0.70, 0.99}, // desired retention
}

// Validate reports an ErrValidation if p lies outside the search box or
// the initial ease is below the floor.
func (p Params) Validate() error {
	v := p.vector()
	names := [3]string{"min_ease_factor", "initial_ease_factor", "desired_retention"}
	for i, b := range bounds {
		if math.IsNaN(v[i]) || v[i] < b.lo || v[i] > b.hi {
			return errs.Validationf("%s %v outside [%v, %v]", names[i], v[i], b.lo, b.hi)
		}
	}
	if p.InitialEaseFactor < p.MinEaseFactor {
		return errs.Validationf("initial_ease_factor %v below min_ease_factor %v", p.InitialEaseFactor, p.MinEaseFactor)
	}
	return nil
}

func (p Params) vector() [3]float64 {
	return [3]float64{p.MinEaseFactor, p.InitialEaseFactor, p.DesiredRetention}
}

func fromVector(v [3]float64) Params {
	for i, b := range bounds {
		v[i] = math.Min(math.Max(v[i], b.lo), b.hi)
	}
	v[1] = math.Max(v[1], v[0])
	return Params{MinEaseFactor: v[0], InitialEaseFactor: v[1], DesiredRetention: v[2]}
}

// Review is one historical rating of an item.
type Review struct {
	ItemID     string     `json:"item_id"`
	Rating     srs.Rating `json:"rating"`
	ReviewedAt time.Time  `json:"reviewed_at"`
}

// Recalled reports whether the review counts as a successful recall.
func (r Review) Recalled() bool { return r.Rating != srs.Again }

// Result is the outcome of one optimization run. Converged is false when the
// run stopped on the iteration limit or a deadline; BestParams is then the
// best candidate seen so far.
type Result struct {
	BestParams        Params  `json:"best_params"`
	ExpectedRetention float64 `json:"expected_retention"`
	Iterations        int     `json:"iterations"`
	Converged         bool    `json:"converged"`
}

// Config tunes the search. Zero values take the defaults.
type Config struct {
	MaxIterations       int     // default 100
	Epsilon             float64 // default 1e-3
	InitialStepFraction float64 // starting step as a share of each range, default 0.25
	MinStepFraction     float64 // step floor as a share of each range, default 0.01
	WeightsHalfLifeDays float64 // 0 weighs all history equally
}

// Optimizer searches for the parameters that best explain a review history.
type Optimizer struct {
	maxIter  int
	epsilon  float64
	step     float64
	minStep  float64
	halfLife float64
	now      func() time.Time
}

// New returns an Optimizer.
func New(cfg Config) *Optimizer {
	o := &Optimizer{
		maxIter:  cfg.MaxIterations,
		epsilon:  cfg.Epsilon,
		step:     cfg.InitialStepFraction,
		minStep:  cfg.MinStepFraction,
		halfLife: cfg.WeightsHalfLifeDays,
		now:      time.Now,
	}
	if o.maxIter <= 0 {
		o.maxIter = 100
	}
	if o.epsilon <= 0 {
		o.epsilon = 1e-3
	}
	if o.step <= 0 {
		o.step = 0.25
	}
	if o.minStep <= 0 {
		o.minStep = 0.01
	}
	return o
}

// Optimize runs the search from initial. An empty history yields the
// initial parameters, an expected retention of 0.5 and Converged=false.
// When ctx is done the best result so far is returned with Converged=false.
func (o *Optimizer) Optimize(ctx context.Context, initial Params, history []Review) (Result, error) {
	if err := initial.Validate(); err != nil {
		return Result{}, err
	}
	if len(history) == 0 {
		return Result{BestParams: initial, ExpectedRetention: 0.5}, nil
	}

	seqs := sequences(history)
	now := o.now()
	eval := func(p Params) float64 { return o.score(p, seqs, now) }

	cur := initial
	best := eval(cur)
	res := Result{BestParams: cur, ExpectedRetention: best}

	var steps [3]float64
	for i, b := range bounds {
		steps[i] = (b.hi - b.lo) * o.step
	}

	for iter := 1; iter <= o.maxIter; iter++ {
		start := best
		for dim := range steps {
			for _, sign := range [2]float64{1, -1} {
				if ctx.Err() != nil {
					res.BestParams, res.ExpectedRetention = cur, best
					return res, nil
				}
				v := cur.vector()
				v[dim] += sign * steps[dim]
				cand := fromVector(v)
				if s := eval(cand); s > best {
					cur, best = cand, s
				}
			}
		}
		res = Result{BestParams: cur, ExpectedRetention: best, Iterations: iter}

		if best-start >= o.epsilon {
			continue
		}
		floor := true
		for i, b := range bounds {
			if steps[i] > (b.hi-b.lo)*o.minStep {
				floor = false
			}
			steps[i] = math.Max(steps[i]/2, (b.hi-b.lo)*o.minStep)
		}
		if floor {
			res.Converged = true
			return res, nil
		}
	}
	return res, nil
}

// sequences groups history by item in chronological order.
func sequences(history []Review) [][]Review {
	byItem := make(map[string][]Review)
	var order []string
	for _, r := range history {
		if _, ok := byItem[r.ItemID]; !ok {
			order = append(order, r.ItemID)
		}
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	sort.Strings(order)
	out := make([][]Review, 0, len(order))
	for _, id := range order {
		seq := byItem[id]
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].ReviewedAt.Before(seq[j].ReviewedAt) })
		out = append(out, seq)
	}
	return out
}

// score is the weighted mean probability the candidate's forgetting curve
// assigns to each observed outcome after an item's first review.
func (o *Optimizer) score(p Params, seqs [][]Review, now time.Time) float64 {
	strategy := srs.NewSM2(srs.SM2Config{MinEaseFactor: p.MinEaseFactor, InitialEaseFactor: p.InitialEaseFactor})
	var sum, weight float64
	for _, seq := range seqs {
		st := srs.NewState(srs.AlgorithmSM2, p.InitialEaseFactor, seq[0].ReviewedAt)
		for k, r := range seq {
			if !r.Rating.IsValid() {
				continue
			}
			if k > 0 && st.LastReview != nil {
				elapsed := r.ReviewedAt.Sub(*st.LastReview).Hours() / 24
				predicted := math.Pow(p.DesiredRetention, math.Max(elapsed, 0)/float64(max(st.IntervalDays, 1)))
				w := o.weight(r.ReviewedAt, now)
				if r.Recalled() {
					sum += w * predicted
				} else {
					sum += w * (1 - predicted)
				}
				weight += w
			}
			st, _ = strategy.Apply(st, r.Rating, r.ReviewedAt)
		}
	}
	if weight == 0 {
		return 0.5
	}
	return sum / weight
}

func (o *Optimizer) weight(at, now time.Time) float64 {
	if o.halfLife <= 0 {
		return 1
	}
	age := math.Max(now.Sub(at).Hours()/24, 0)
	return math.Pow(0.5, age/o.halfLife)
}
