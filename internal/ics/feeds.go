package ics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"clickcal/internal/config"
	appLog "clickcal/internal/log"
	"clickcal/internal/model"
)

// SourcesFromConfig maps configured feeds to fetch sources. Feeds without
// a URL are dropped; a missing ID falls back to the URL.
func SourcesFromConfig(feeds []config.FeedConfig) []Source {
	out := make([]Source, 0, len(feeds))
	for _, f := range feeds {
		if f.URL == "" {
			continue
		}
		id := f.ID
		if id == "" {
			id = f.URL
		}
		out = append(out, Source{ID: id, Name: f.Name, URL: f.URL})
	}
	return out
}

// Feeds holds the latest overlay snapshot of every configured feed.
// Overlays are read-only; they are drawn on the grid and never take part in
// overlap checks.
type Feeds struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location

	mu        sync.RWMutex
	bySource  map[string][]model.Occurrence
	refreshed time.Time
}

func NewFeeds(fetcher *Fetcher, sources []Source, loc *time.Location) *Feeds {
	if loc == nil {
		loc = time.Local
	}
	return &Feeds{
		fetcher:  fetcher,
		sources:  sources,
		loc:      loc,
		bySource: make(map[string][]model.Occurrence),
	}
}

// Len returns the number of configured sources.
func (fs *Feeds) Len() int { return len(fs.sources) }

// Refresh fetches and parses every source. A source that fails keeps its
// previous snapshot; the returned error joins all failures.
func (fs *Feeds) Refresh(ctx context.Context) error {
	if len(fs.sources) == 0 {
		return nil
	}

	results, errs := fs.fetcher.FetchAll(ctx, fs.sources)

	parsed := make(map[string][]model.Occurrence, len(results))
	for _, res := range results {
		occs, err := Parse(res.Source, res.Body, fs.loc)
		if err != nil {
			appLog.Error("feed parse failed", err, "id", res.Source.ID)
			errs = append(errs, err)
			continue
		}
		parsed[res.Source.ID] = occs
	}

	fs.mu.Lock()
	for id, occs := range parsed {
		fs.bySource[id] = occs
	}
	fs.refreshed = time.Now()
	fs.mu.Unlock()

	appLog.Info("feeds refreshed", "ok", len(parsed), "failed", len(fs.sources)-len(parsed))
	return errors.Join(errs...)
}

// RefreshedAt reports when Refresh last completed.
func (fs *Feeds) RefreshedAt() time.Time {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.refreshed
}

// Between returns occurrences touching any day in [from, to], ordered by
// start time.
func (fs *Feeds) Between(from, to model.Date) []model.Occurrence {
	lo := from.In(fs.loc)
	hi := to.AddDays(1).In(fs.loc)

	fs.mu.RLock()
	var out []model.Occurrence
	for _, occs := range fs.bySource {
		for _, o := range occs {
			if intersects(o, lo, hi) {
				out = append(out, o)
			}
		}
	}
	fs.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Summary < out[j].Summary
	})
	return out
}

// ByDate groups Between(from, to) per day. A multi-day occurrence is listed
// on every day it covers.
func (fs *Feeds) ByDate(from, to model.Date) map[model.Date][]model.Occurrence {
	out := make(map[model.Date][]model.Occurrence)
	for _, o := range fs.Between(from, to) {
		for d := from; !d.After(to); d = d.AddDays(1) {
			if intersects(o, d.In(fs.loc), d.AddDays(1).In(fs.loc)) {
				out[d] = append(out[d], o)
			}
		}
	}
	return out
}

// intersects treats zero-length occurrences as covering their start instant.
func intersects(o model.Occurrence, lo, hi time.Time) bool {
	if !o.End.After(o.Start) {
		return !o.Start.Before(lo) && o.Start.Before(hi)
	}
	return o.Start.Before(hi) && o.End.After(lo)
}
