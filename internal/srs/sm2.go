package srs

import (
	"math"
	"time"
)

const (
	DefaultMinEaseFactor     = 1.3
	DefaultInitialEaseFactor = 2.5
)

// SM2Config tunes the SM-2 strategy. Zero values take the defaults.
type SM2Config struct {
	MinEaseFactor     float64
	InitialEaseFactor float64
}

// SM2 is the classic SuperMemo-2 strategy.
type SM2 struct {
	minEase     float64
	initialEase float64
}

// NewSM2 returns an SM-2 strategy.
func NewSM2(cfg SM2Config) *SM2 {
	if cfg.MinEaseFactor <= 0 {
		cfg.MinEaseFactor = DefaultMinEaseFactor
	}
	if cfg.InitialEaseFactor <= 0 {
		cfg.InitialEaseFactor = DefaultInitialEaseFactor
	}
	if cfg.InitialEaseFactor < cfg.MinEaseFactor {
		cfg.InitialEaseFactor = cfg.MinEaseFactor
	}
	return &SM2{minEase: cfg.MinEaseFactor, initialEase: cfg.InitialEaseFactor}
}

func (s *SM2) Algorithm() Algorithm { return AlgorithmSM2 }

// quality maps the 4-point rating onto the SM-2 0..5 scale.
func quality(r Rating) int {
	return int(r) + 1
}

// Apply implements the SM-2 update. The next interval uses the ease factor
// held before this review; the ease factor is then updated for every rating.
func (s *SM2) Apply(st State, r Rating, now time.Time) (State, error) {
	if err := r.Validate(); err != nil {
		return State{}, err
	}
	next := st.Clone()
	next.Algorithm = AlgorithmSM2
	if next.EaseFactor <= 0 {
		next.EaseFactor = s.initialEase
	}

	q := quality(r)
	if q < 3 {
		next.Repetitions = 0
		next.IntervalDays = 1
		next.Lapses++
	} else {
		next.Repetitions++
		switch next.Repetitions {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(st.IntervalDays) * next.EaseFactor))
			if next.IntervalDays < 1 {
				next.IntervalDays = 1
			}
		}
	}

	d := float64(5 - q)
	next.EaseFactor = math.Max(s.minEase, next.EaseFactor+(0.1-d*(0.08+d*0.02)))

	reviewed := now
	next.LastReview = &reviewed
	next.DueDate = addDays(now, next.IntervalDays)
	return next, nil
}
