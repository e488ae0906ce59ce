package calendar

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"clickcal/internal/model"
)

// SortEvents orders events by date, start time, end time and then title in
// Korean collation order. The slice is sorted in place.
func SortEvents(events []model.Event) {
	// collate.Collator keeps internal buffers; one per call.
	col := collate.New(language.Korean)
	slices.SortStableFunc(events, func(a, b model.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StartTime != b.StartTime {
			return int(a.StartTime - b.StartTime)
		}
		if a.EndTime != b.EndTime {
			return int(a.EndTime - b.EndTime)
		}
		return col.CompareString(a.Title, b.Title)
	})
}

// GroupByDate buckets events per day, each bucket in SortEvents order.
func GroupByDate(events []model.Event) map[model.Date][]model.Event {
	sorted := slices.Clone(events)
	SortEvents(sorted)

	out := make(map[model.Date][]model.Event)
	for _, e := range sorted {
		out[e.Date] = append(out[e.Date], e)
	}
	return out
}
