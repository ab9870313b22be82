package digest

import (
	"slices"

	"eventdigest/internal/model"
)

// SortEvents orders events by start instant, undecided events last. The
// sort is stable, so equal keys keep their arrival order.
func SortEvents(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return compareTemporal(a.Temporal, b.Temporal)
	})
}

func compareTemporal(a, b model.Temporal) int {
	switch ad, bd := a.Decided(), b.Decided(); {
	case ad && bd:
		return a.Start.Compare(b.Start)
	case ad:
		return -1
	case bd:
		return 1
	default:
		return 0
	}
}

// Group is one category section of the digest.
type Group struct {
	Category string
	Events   []model.Event
}

// GroupByCategory buckets already-sorted events by category. Configured
// categories come first in configured order; any other category follows in
// first-seen order, with the catch-all category at the very end unless it
// is itself configured. Configured categories without events are kept
// (with no events) only when keepEmpty is set.
func GroupByCategory(events []model.Event, order []string, catchAll string, keepEmpty bool) []Group {
	byCat := make(map[string][]model.Event)
	var seen []string
	for _, ev := range events {
		if _, ok := byCat[ev.Category]; !ok {
			seen = append(seen, ev.Category)
		}
		byCat[ev.Category] = append(byCat[ev.Category], ev)
	}

	var groups []Group
	placed := make(map[string]bool)
	add := func(cat string, configured bool) {
		if placed[cat] {
			return
		}
		evs := byCat[cat]
		if len(evs) == 0 && !(configured && keepEmpty) {
			return
		}
		placed[cat] = true
		groups = append(groups, Group{Category: cat, Events: evs})
	}

	for _, cat := range order {
		add(cat, true)
	}
	for _, cat := range seen {
		if cat != catchAll {
			add(cat, false)
		}
	}
	add(catchAll, false)
	return groups
}
