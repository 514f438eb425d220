package srs

import (
	"math"
	"time"

	"github.com/kalambet/readq/internal/errs"
)

// DefaultWeights are the published FSRS-6 default parameters.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

const (
	DefaultDesiredRetention    = 0.9
	DefaultMaximumInterval     = 36500
	DefaultWeightsHalfLifeDays = 90
)

// FSRSConfig tunes the FSRS strategy. Zero values take the defaults.
// WeightsHalfLifeDays is the age at which a historical review counts half
// when weights or parameters are fitted from history.
type FSRSConfig struct {
	Weights             [21]float64
	DesiredRetention    float64
	WeightsHalfLifeDays float64
	MaximumInterval     int
}

// FSRS schedules by modelling stability and difficulty per item.
type FSRS struct {
	w         [21]float64
	decay     float64
	factor    float64
	retention float64
	maxIvl    int
	halfLife  float64
}

// NewFSRS returns an FSRS strategy or an ErrValidation for an
// out-of-range retention target.
func NewFSRS(cfg FSRSConfig) (*FSRS, error) {
	if cfg.Weights == ([21]float64{}) {
		cfg.Weights = DefaultWeights
	}
	if cfg.DesiredRetention == 0 {
		cfg.DesiredRetention = DefaultDesiredRetention
	}
	if cfg.DesiredRetention <= 0 || cfg.DesiredRetention >= 1 {
		return nil, errs.Validationf("desired retention %v outside (0, 1)", cfg.DesiredRetention)
	}
	if cfg.MaximumInterval <= 0 {
		cfg.MaximumInterval = DefaultMaximumInterval
	}
	if cfg.WeightsHalfLifeDays <= 0 {
		cfg.WeightsHalfLifeDays = DefaultWeightsHalfLifeDays
	}
	if cfg.Weights[20] <= 0 {
		return nil, errs.Validationf("decay weight must be positive")
	}
	decay := -cfg.Weights[20]
	return &FSRS{
		w:         cfg.Weights,
		decay:     decay,
		factor:    math.Pow(0.9, 1/decay) - 1,
		retention: cfg.DesiredRetention,
		maxIvl:    cfg.MaximumInterval,
		halfLife:  cfg.WeightsHalfLifeDays,
	}, nil
}

func (f *FSRS) Algorithm() Algorithm { return AlgorithmFSRS }

// WeightsHalfLife reports the configured history half-life in days.
func (f *FSRS) WeightsHalfLife() float64 { return f.halfLife }

// Retrievability is the predicted recall probability of st at now.
// Unreviewed items report 0.
func (f *FSRS) Retrievability(st State, now time.Time) float64 {
	if st.Stability == nil || st.LastReview == nil {
		return 0
	}
	return f.recall(elapsedDays(*st.LastReview, now), *st.Stability)
}

func (f *FSRS) Apply(st State, r Rating, now time.Time) (State, error) {
	if err := r.Validate(); err != nil {
		return State{}, err
	}
	next := st.Clone()
	next.Algorithm = AlgorithmFSRS

	var s, d float64
	if st.Stability == nil || st.Difficulty == nil || st.LastReview == nil {
		s = f.initStability(r)
		d = f.initDifficulty(r, true)
	} else {
		prevS := *st.Stability
		elapsed := elapsedDays(*st.LastReview, now)
		if elapsed < 1 {
			s = f.shortTermStability(prevS, r)
		} else {
			s = f.nextStability(*st.Difficulty, prevS, f.recall(elapsed, prevS), r)
		}
		if r != Again {
			s = math.Max(s, prevS)
		}
		d = f.nextDifficulty(*st.Difficulty, r)
	}

	if r == Again {
		next.Lapses++
		next.Repetitions = 0
	} else {
		next.Repetitions++
	}
	next.Stability = &s
	next.Difficulty = &d
	next.IntervalDays = f.nextInterval(s)
	reviewed := now
	next.LastReview = &reviewed
	next.DueDate = addDays(now, next.IntervalDays)
	return next, nil
}

func (f *FSRS) recall(t, s float64) float64 {
	return math.Pow(1+f.factor*t/s, f.decay)
}

func (f *FSRS) initStability(r Rating) float64 {
	return clampStability(f.w[r-1])
}

func (f *FSRS) initDifficulty(r Rating, clamp bool) float64 {
	d := f.w[4] - math.Exp(f.w[5]*float64(r-1)) + 1
	if clamp {
		return clampDifficulty(d)
	}
	return d
}

func (f *FSRS) nextInterval(s float64) int {
	ivl := int(math.Round(s / f.factor * (math.Pow(f.retention, 1/f.decay) - 1)))
	return min(max(ivl, 1), f.maxIvl)
}

func (f *FSRS) shortTermStability(s float64, r Rating) float64 {
	inc := math.Exp(f.w[17]*(float64(r)-3+f.w[18])) * math.Pow(s, -f.w[19])
	if r >= Good {
		inc = math.Max(inc, 1)
	}
	return clampStability(s * inc)
}

// nextDifficulty applies linear damping then mean reversion toward D0(Easy).
func (f *FSRS) nextDifficulty(d float64, r Rating) float64 {
	delta := -f.w[6] * (float64(r) - 3)
	damped := d + (10-d)*delta/9
	return clampDifficulty(f.w[7]*f.initDifficulty(Easy, false) + (1-f.w[7])*damped)
}

func (f *FSRS) nextStability(d, s, retr float64, r Rating) float64 {
	if r == Again {
		long := f.w[11] * math.Pow(d, -f.w[12]) * (math.Pow(s+1, f.w[13]) - 1) * math.Exp((1-retr)*f.w[14])
		short := s / math.Exp(f.w[17]*f.w[18])
		return clampStability(math.Min(long, short))
	}
	penalty, bonus := 1.0, 1.0
	switch r {
	case Hard:
		penalty = f.w[15]
	case Easy:
		bonus = f.w[16]
	}
	return clampStability(s * (1 + math.Exp(f.w[8])*(11-d)*math.Pow(s, -f.w[9])*(math.Exp((1-retr)*f.w[10])-1)*penalty*bonus))
}

func clampStability(s float64) float64 { return math.Max(s, 0.001) }

func clampDifficulty(d float64) float64 { return math.Min(math.Max(d, 1), 10) }

func elapsedDays(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Hours() / 24
}
