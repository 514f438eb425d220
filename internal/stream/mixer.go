// Package stream builds the continuous scroll stream: readable material with
// review items interleaved at a configured ratio, spread so one category
// does not dominate a run.
package stream

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/kalambet/readq/internal/queue"
)

// Kind is the origin of a stream candidate.
type Kind int

const (
	KindDocument Kind = iota + 1
	KindRSS
	KindExtract
	KindLearningItem
)

var kindNames = [...]string{KindDocument: "document", KindRSS: "rss", KindExtract: "extract", KindLearningItem: "learning-item"}

func (k Kind) String() string {
	if k >= KindDocument && k <= KindLearningItem {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	for i := KindDocument; i <= KindLearningItem; i++ {
		if kindNames[i] == string(text) {
			*k = i
			return nil
		}
	}
	return fmt.Errorf("unknown stream kind %q", text)
}

// IsReview reports whether k belongs to the injected review pool.
func (k Kind) IsReview() bool { return k == KindExtract || k == KindLearningItem }

// Candidate is an item eligible for the stream.
type Candidate struct {
	Item    queue.Item `json:"item"`
	Kind    Kind       `json:"kind"`
	AddedAt time.Time  `json:"added_at"`
}

// Item is one entry of a built stream.
type Item struct {
	queue.Item
	Kind            Kind    `json:"kind"`
	Category        string  `json:"category"`
	EngagementScore float64 `json:"engagement_score"`
}

// Config controls the mix.
type Config struct {
	ReviewPercentage float64       `json:"review_percentage"`
	MaxSameCategory  int           `json:"max_same_category"`
	RecentWindow     time.Duration `json:"recent_window"`
}

// DefaultConfig mixes 30% review items, at most 3 in a row from one
// category, with a 48 hour recency window.
func DefaultConfig() Config {
	return Config{ReviewPercentage: 30, MaxSameCategory: 3, RecentWindow: 48 * time.Hour}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSameCategory <= 0 {
		c.MaxSameCategory = d.MaxSameCategory
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
	c.ReviewPercentage = math.Min(math.Max(c.ReviewPercentage, 0), 100)
	return c
}

const recencyBonus = 0.1

func baseEngagement(k Kind) float64 {
	switch k {
	case KindDocument:
		return 0.6
	case KindRSS:
		return 0.5
	case KindExtract:
		return 0.55
	case KindLearningItem:
		return 0.45
	}
	return 0.4
}

// Engagement scores c deterministically: a kind base, a stable hash of the
// id in [0, 0.3) and a bonus when c was added within window of now.
func Engagement(c Candidate, window time.Duration, now time.Time) float64 {
	h := fnv.New64a()
	h.Write([]byte(c.Item.ID))
	score := baseEngagement(c.Kind) + float64(h.Sum64()%1000)/1000*0.3
	if !c.AddedAt.IsZero() && now.Sub(c.AddedAt) < window {
		score += recencyBonus
	}
	return score
}

// ReviewTarget is how many review items a stream with nonReview base items
// should carry so they make up p percent of it.
func ReviewTarget(p float64, nonReview, allReview int) int {
	switch {
	case p <= 0:
		return 0
	case p >= 100:
		return allReview
	}
	return int(math.Round(p * float64(nonReview) / (100 - p)))
}

// Build assembles the stream from candidates.
func Build(cands []Candidate, cfg Config, now time.Time) []Item {
	cfg = cfg.withDefaults()

	var base, review []Item
	for _, c := range cands {
		it := Item{
			Item:            c.Item,
			Kind:            c.Kind,
			Category:        categoryOf(c),
			EngagementScore: Engagement(c, cfg.RecentWindow, now),
		}
		if c.Kind.IsReview() {
			review = append(review, it)
		} else {
			base = append(base, it)
		}
	}
	base = Diversify(base, cfg.MaxSameCategory)
	byEngagement(review)

	target := min(ReviewTarget(cfg.ReviewPercentage, len(base), len(review)), len(review))
	review = review[:target]

	mixed := make([]Item, 0, len(base)+len(review))
	if target > 0 && len(base) > 0 {
		interval := max(1, int(math.Round(float64(len(base))/float64(target))))
		next := 0
		for i, it := range base {
			mixed = append(mixed, it)
			if (i+1)%interval == 0 && next < len(review) {
				mixed = append(mixed, review[next])
				next++
			}
		}
		review = review[next:]
	} else {
		mixed = append(mixed, base...)
	}
	mixed = append(mixed, review...)
	return place(mixed, cfg.MaxSameCategory)
}

// Diversify orders items by descending engagement and then spreads
// categories so no more than maxSame share one in a row where possible.
func Diversify(items []Item, maxSame int) []Item {
	sorted := append([]Item(nil), items...)
	byEngagement(sorted)
	return place(sorted, maxSame)
}

func byEngagement(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].EngagementScore > items[j].EngagementScore })
}

// place appends items in order. An item from another category is first
// used to split any run that already exceeds maxSame. Otherwise, when an
// append would extend a run past maxSame, the item goes to the nearest
// earlier position that keeps its run within bounds, or is appended anyway
// if there is none.
func place(items []Item, maxSame int) []Item {
	if maxSame <= 0 {
		maxSame = DefaultConfig().MaxSameCategory
	}
	p := placer{out: make([]Item, 0, len(items)), maxSame: maxSame, over: -1}
	for _, it := range items {
		p.add(it)
	}
	return p.out
}

// placer carries the bookkeeping that keeps place linear in practice.
type placer struct {
	out     []Item
	maxSame int

	// over is the first index whose run exceeds maxSame, or -1. Only
	// appends can create such a run, so it never moves backwards.
	over int

	// full is a category known to have no safe slot. It stays true until
	// an item of another category is placed.
	full    string
	hasFull bool
}

func (p *placer) add(it Item) {
	if p.hasFull && p.full != it.Category {
		p.hasFull = false
	}
	if p.over >= 0 && p.out[p.over].Category != it.Category {
		p.insert(p.over, it)
		p.over = p.nextOverflow(p.over + 1)
		return
	}

	pos := -1
	if !p.hasFull {
		pos = p.slot(it.Category)
	}
	if pos < 0 {
		p.full, p.hasFull = it.Category, true
		p.insert(len(p.out), it)
		if p.over < 0 {
			p.over = len(p.out) - 1
		}
		return
	}
	if p.over >= 0 && pos <= p.over {
		p.over++
	}
	p.insert(pos, it)
}

func (p *placer) insert(pos int, it Item) {
	p.out = append(p.out, Item{})
	copy(p.out[pos+1:], p.out[pos:])
	p.out[pos] = it
}

// slot returns the nearest insertion point, searching back from the end,
// where an item of cat would sit in a run of at most maxSame, or -1. All
// slots touching one run of cat share that run's length, so the search
// jumps from run to run and visits each item once.
func (p *placer) slot(cat string) int {
	s := len(p.out)
	for {
		a := s
		for a > 0 && p.out[a-1].Category == cat {
			a--
		}
		if s-a < p.maxSame {
			return s
		}
		if a == 0 {
			return -1
		}
		s = a - 1
	}
}

// nextOverflow scans from, where a new run starts, for the next index
// whose run exceeds maxSame.
func (p *placer) nextOverflow(from int) int {
	run := 0
	for i := from; i < len(p.out); i++ {
		if i > from && p.out[i].Category == p.out[i-1].Category {
			run++
		} else {
			run = 1
		}
		if run > p.maxSame {
			return i
		}
	}
	return -1
}

func categoryOf(c Candidate) string {
	if c.Item.Category != "" {
		return c.Item.Category
	}
	return c.Kind.String()
}
