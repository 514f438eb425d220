package srs

import (
	"time"

	"github.com/kalambet/readq/internal/errs"
)

// Algorithm names a scheduling strategy.
type Algorithm string

const (
	AlgorithmSM2  Algorithm = "sm2"
	AlgorithmFSRS Algorithm = "fsrs"
)

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmSM2, AlgorithmFSRS:
		return Algorithm(s), nil
	}
	return "", errs.Validationf("unknown algorithm %q", s)
}

// State is the per-item scheduling state. Stability and Difficulty are only
// set by strategies that track them.
type State struct {
	Algorithm    Algorithm  `json:"algorithm"`
	EaseFactor   float64    `json:"ease_factor"`
	IntervalDays int        `json:"interval_days"`
	Repetitions  int        `json:"repetitions"`
	Lapses       int        `json:"lapses"`
	Stability    *float64   `json:"stability,omitempty"`
	Difficulty   *float64   `json:"difficulty,omitempty"`
	LastReview   *time.Time `json:"last_review,omitempty"`
	DueDate      time.Time  `json:"due_date"`
}

// NewState returns the state of an item that has never been reviewed.
func NewState(alg Algorithm, initialEase float64, now time.Time) State {
	if initialEase <= 0 {
		initialEase = DefaultInitialEaseFactor
	}
	return State{Algorithm: alg, EaseFactor: initialEase, DueDate: now}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	if s.Stability != nil {
		v := *s.Stability
		c.Stability = &v
	}
	if s.Difficulty != nil {
		v := *s.Difficulty
		c.Difficulty = &v
	}
	if s.LastReview != nil {
		v := *s.LastReview
		c.LastReview = &v
	}
	return c
}

// Strategy computes the next state for a rating. Implementations never
// mutate the input state.
type Strategy interface {
	Algorithm() Algorithm
	Apply(st State, r Rating, now time.Time) (State, error)
}

// Config selects and tunes a strategy.
type Config struct {
	Algorithm Algorithm
	SM2       SM2Config
	FSRS      FSRSConfig
}

// New builds the strategy named by cfg.Algorithm.
func New(cfg Config) (Strategy, error) {
	switch cfg.Algorithm {
	case AlgorithmSM2, "":
		return NewSM2(cfg.SM2), nil
	case AlgorithmFSRS:
		return NewFSRS(cfg.FSRS)
	}
	return nil, errs.Validationf("unknown algorithm %q", cfg.Algorithm)
}

func addDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * 24 * time.Hour)
}
