package queue

import (
	"math"
	"sort"
	"time"

	"github.com/kalambet/readq/internal/errs"
)

// Dimension indexes one axis of a PriorityVector.
type Dimension int

const (
	RetentionRisk Dimension = iota
	CognitiveLoad
	TimeEfficiency
	UserIntent
	OverduePenalty
	numDimensions
)

// PriorityVector holds the five scoring dimensions, each in [0, 100].
type PriorityVector struct {
	RetentionRisk  float64 `json:"retention_risk"`
	CognitiveLoad  float64 `json:"cognitive_load"`
	TimeEfficiency float64 `json:"time_efficiency"`
	UserIntent     float64 `json:"user_intent"`
	OverduePenalty float64 `json:"overdue_penalty"`
}

func (v PriorityVector) values() [numDimensions]float64 {
	return [numDimensions]float64{v.RetentionRisk, v.CognitiveLoad, v.TimeEfficiency, v.UserIntent, v.OverduePenalty}
}

// Weights is a preset's weight per dimension, ordered like Dimension.
type Weights [numDimensions]float64

// Preset is a named weighting of the priority dimensions. Weights sum to 1.
type Preset struct {
	Name    string  `json:"name"`
	Weights Weights `json:"weights"`
}

var presets = []Preset{
	{Name: "maximize-retention", Weights: Weights{0.40, 0.10, 0.10, 0.15, 0.25}},
	{Name: "minimize-time", Weights: Weights{0.10, 0.20, 0.45, 0.10, 0.15}},
	{Name: "aggressive-catchup", Weights: Weights{0.25, 0.05, 0.10, 0.10, 0.50}},
	{Name: "exploratory", Weights: Weights{0.10, 0.25, 0.15, 0.40, 0.10}},
	{Name: "project-focused", Weights: Weights{0.15, 0.10, 0.15, 0.45, 0.15}},
}

// DefaultPreset is used when a caller names none.
const DefaultPreset = "maximize-retention"

// Presets returns the fixed presets.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// PresetByName looks up a preset; an empty name selects DefaultPreset.
func PresetByName(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, errs.Validationf("unknown preset %q", name)
}

func baseLoad(t ItemType) float64 {
	switch t {
	case Document:
		return 75
	case Extract:
		return 55
	case LearningItem:
		return 35
	}
	return 0
}

// DaysSince is the signed number of days from due to now; zero without a due date.
func DaysSince(due *time.Time, now time.Time) float64 {
	if due == nil {
		return 0
	}
	return now.Sub(*due).Hours() / 24
}

// VectorOf derives the priority vector of it at now.
func VectorOf(it Item, now time.Time) PriorityVector {
	load := baseLoad(it.ItemType)
	if it.ProgressPercent < 30 {
		load += 10
	}
	intent := 35.0
	if n := len(it.TagSet()); n > 0 {
		intent = clamp(40+float64(n)*8, 0, 90)
	}
	return PriorityVector{
		RetentionRisk:  clamp(float64(it.PriorityRating)*10, 20, 95),
		CognitiveLoad:  clamp(load, 15, 90),
		TimeEfficiency: clamp(100-math.Min(90, it.EstimatedMinutes*10), 20, 100),
		UserIntent:     intent,
		OverduePenalty: clamp(math.Max(0, DaysSince(it.DueDate, now))*12, 0, 90),
	}
}

// ScoreOf is the preset-weighted sum of the vector, rounded to an integer.
func ScoreOf(it Item, p Preset, now time.Time) int {
	v := VectorOf(it, now).values()
	var sum float64
	for d := range v {
		sum += v[d] * p.Weights[d]
	}
	return int(math.Round(sum))
}

// Scored is an item together with its derived priority.
type Scored struct {
	Item   Item           `json:"item"`
	Vector PriorityVector `json:"vector"`
	Score  int            `json:"score"`
}

// Rank scores items under p and orders them by descending score. Ties keep
// input order.
func Rank(items []Item, p Preset, now time.Time) []Scored {
	out := make([]Scored, len(items))
	for i, it := range items {
		out[i] = Scored{Item: it, Vector: VectorOf(it, now), Score: ScoreOf(it, p, now)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Sort returns items ordered as Rank orders them.
func Sort(items []Item, p Preset, now time.Time) []Item {
	ranked := Rank(items, p, now)
	out := make([]Item, len(ranked))
	for i, s := range ranked {
		out[i] = s.Item
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
