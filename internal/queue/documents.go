package queue

import (
	"sort"
	"time"

	"github.com/kalambet/readq/internal/errs"
)

// ScheduleDocuments picks up to maxDaily active documents to read next.
// Documents furthest below cardsPerDocument learning items come first; ties
// follow the default preset ranking.
func ScheduleDocuments(items []Item, maxDaily, cardsPerDocument int, now time.Time) ([]string, error) {
	if maxDaily < 1 {
		return nil, errs.Validationf("max daily %d must be at least 1", maxDaily)
	}
	if cardsPerDocument < 1 {
		return nil, errs.Validationf("cards per document %d must be at least 1", cardsPerDocument)
	}

	cards := make(map[string]int)
	var docs []Item
	for _, it := range items {
		switch {
		case it.ItemType == LearningItem:
			cards[it.SourceDocumentID]++
		case it.ItemType == Document && !it.Suspended:
			docs = append(docs, it)
		}
	}

	preset, _ := PresetByName(DefaultPreset)
	ranked := Sort(docs, preset, now)
	deficit := func(it Item) int { return max(cardsPerDocument-cards[it.ID], 0) }
	sort.SliceStable(ranked, func(i, j int) bool { return deficit(ranked[i]) > deficit(ranked[j]) })

	n := min(maxDaily, len(ranked))
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ranked[i].ID
	}
	return ids, nil
}
