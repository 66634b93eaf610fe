package fusion

import (
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/torscout/scout/internal/normalize"
	"github.com/hazyhaar/torscout/scout/internal/record"
)

// Outcome is what one adapter invocation produced. Order is the 0-based rank
// in which the source reported (or -1 if it never did).
type Outcome struct {
	Site     string
	State    record.State
	Message  string
	Listings []record.RawListing
	Order    int
	Elapsed  time.Duration
	Attempts int
}

// MergeOptions parameterize Merge. Now anchors relative dates and MaxAge.
type MergeOptions struct {
	Limit int
	Now   time.Time
}

type candidate struct {
	res   record.Result
	order int
	row   int
}

// better reports whether a should survive over b when both share a
// fingerprint: more seeders, then earlier reporting source, then smaller
// site id, then earlier row.
func better(a, b candidate) bool {
	if a.res.Seeders != b.res.Seeders {
		return a.res.Seeders > b.res.Seeders
	}
	if a.order != b.order {
		return a.order < b.order
	}
	if a.res.Site != b.res.Site {
		return a.res.Site < b.res.Site
	}
	return a.row < b.row
}

// Merge normalizes, filters, deduplicates, ranks and truncates the captured
// outcomes. Filters run per copy, so a copy that matches still wins over a
// better-seeded one that does not. Rows always carry their outcome's site id.
// It touches no shared state, so identical inputs give identical output.
// Sources are reported in input order; outcome site ids must be unique.
func Merge(q record.Query, outcomes []Outcome, opts MergeOptions) *record.ResultSet {
	rs := &record.ResultSet{Query: q, Results: []record.Result{}}
	status := make(map[string]*record.SourceStatus, len(outcomes))
	rs.Sources = make([]record.SourceStatus, len(outcomes))

	var (
		winners = make(map[string]*candidate)
		keys    []string
	)
	for i, o := range outcomes {
		rs.Sources[i] = record.SourceStatus{
			Site:      o.Site,
			State:     o.State,
			Message:   o.Message,
			ElapsedMs: o.Elapsed.Milliseconds(),
			Attempts:  o.Attempts,
		}
		status[o.Site] = &rs.Sources[i]
		if o.State != record.StateOK {
			rs.Partial = true
			continue
		}

		st := status[o.Site]
		for row, l := range o.Listings {
			l.Site = o.Site
			r, ok := normalize.Normalize(l, opts.Now)
			if !ok {
				continue
			}
			st.Count++
			if !keep(r, q.Filters, opts.Now) {
				st.Filtered++
				continue
			}
			c := candidate{res: r, order: o.Order, row: row}

			w, dup := winners[r.Fingerprint]
			if !dup {
				winners[r.Fingerprint] = &c
				keys = append(keys, r.Fingerprint)
				continue
			}
			if better(c, *w) {
				c.res.AlsoSeenOn = appendSite(w.res.AlsoSeenOn, w.res.Site, c.res.Site)
				status[w.res.Site].Duplicates++
				*w = c
			} else {
				w.res.AlsoSeenOn = appendSite(w.res.AlsoSeenOn, c.res.Site, w.res.Site)
				st.Duplicates++
			}
		}
	}

	for _, k := range keys {
		r := winners[k].res
		r.AlsoSeenOn = others(r.AlsoSeenOn, r.Site)
		rs.Results = append(rs.Results, r)
	}

	sort.SliceStable(rs.Results, func(i, j int) bool { return Less(rs.Results[i], rs.Results[j]) })
	if opts.Limit > 0 && len(rs.Results) > opts.Limit {
		rs.Results = rs.Results[:opts.Limit]
	}
	return rs
}

// appendSite adds site to seen unless it is self or already present.
func appendSite(seen []string, site, self string) []string {
	if site == self {
		return seen
	}
	for _, s := range seen {
		if s == site {
			return seen
		}
	}
	return append(append([]string(nil), seen...), site)
}

// others returns seen without self, sorted.
func others(seen []string, self string) []string {
	var out []string
	for _, s := range seen {
		if s != self {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Less is the ranking order: seeders desc, published desc with unknown
// last, title asc, then fingerprint and site so that no two distinct
// results compare equal.
func Less(a, b record.Result) bool {
	if a.Seeders != b.Seeders {
		return a.Seeders > b.Seeders
	}
	switch {
	case a.Published != nil && b.Published == nil:
		return true
	case a.Published == nil && b.Published != nil:
		return false
	case a.Published != nil && !a.Published.Equal(*b.Published):
		return a.Published.After(*b.Published)
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	if a.Fingerprint != b.Fingerprint {
		return a.Fingerprint < b.Fingerprint
	}
	return a.Site < b.Site
}

// keep applies the query filters. Results with an unknown publish date
// pass MaxAge; results with unknown seeders fail a positive MinSeeders.
func keep(r record.Result, f record.Filters, now time.Time) bool {
	if f.Category != "" && !strings.Contains(strings.ToLower(r.Category), strings.ToLower(f.Category)) {
		return false
	}
	if f.MinSeeders > 0 && (!r.Seeders.Known() || r.Seeders < record.Count(f.MinSeeders)) {
		return false
	}
	if f.MaxAge > 0 && r.Published != nil && r.Published.Before(now.Add(-f.MaxAge)) {
		return false
	}
	return true
}
