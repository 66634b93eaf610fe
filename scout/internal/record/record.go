// CLAUDE:SUMMARY Shared data model: Query, RawListing, canonical Result, ResultSet and per-source SourceStatus.
// Package record holds the types that flow between adapters, the normalizer,
// the fusion engine and the public scout API.
package record

import (
	"encoding/json"
	"strconv"
	"time"
)

// Filters narrow a query. Zero values mean "no constraint", except Limit
// where zero means the configured default.
type Filters struct {
	Category   string        `json:"category,omitempty"`
	MinSeeders int           `json:"min_seeders,omitempty"`
	MaxAge     time.Duration `json:"max_age,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// Query is one search request.
type Query struct {
	Text    string   `json:"text"`
	Filters Filters  `json:"filters"`
	Sources []string `json:"sources,omitempty"` // subset of site ids; empty = all enabled
}

// RawListing is one row as scraped, before any coercion.
type RawListing struct {
	Site      string
	Title     string
	Link      string // magnet URI or absolute URL
	Size      string
	Date      string
	Seeders   string
	Leechers  string
	Downloads string
	Category  string
	Uploader  string
}

// Count is a non-negative integer that may be unknown. Unknown is encoded as
// -1 in Go and null in JSON.
type Count int64

// Unknown marks a count that could not be parsed.
const Unknown Count = -1

// Known reports whether c holds a real value.
func (c Count) Known() bool { return c >= 0 }

func (c Count) MarshalJSON() ([]byte, error) {
	if c < 0 {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(c), 10), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Unknown
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v < 0 {
		v = int64(Unknown)
	}
	*c = Count(v)
	return nil
}

// Result is the canonical, cross-site record.
type Result struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	SizeBytes   Count      `json:"size_bytes"`
	Seeders     Count      `json:"seeders"`
	Leechers    Count      `json:"leechers"`
	Downloads   Count      `json:"downloads"`
	Published   *time.Time `json:"published,omitempty"`
	Site        string     `json:"site"`
	Fingerprint string     `json:"fingerprint"`
	InfoHash    string     `json:"info_hash,omitempty"`
	Category    string     `json:"category,omitempty"`
	Uploader    string     `json:"uploader,omitempty"`
	AlsoSeenOn  []string   `json:"also_seen_on,omitempty"`
}

// State is the outcome of one adapter invocation.
type State string

const (
	StateOK               State = "ok"
	StateTimedOut         State = "timed-out"
	StateExtractionFailed State = "extraction-failed"
	StateBlocked          State = "blocked"
	StateNetworkError     State = "network-error"
	StatePoolExhausted    State = "pool-exhausted"
	StateSessionFailed    State = "session-failed"
	StateSkipped          State = "skipped"
)

// SourceStatus reports what one site contributed to a ResultSet.
type SourceStatus struct {
	Site       string `json:"site"`
	State      State  `json:"state"`
	Message    string `json:"message,omitempty"`
	Count      int    `json:"count"`      // listings that survived normalization
	Filtered   int    `json:"filtered"`   // of those, dropped by the query filters
	Duplicates int    `json:"duplicates"` // of the rest, merged into another site's record
	ElapsedMs  int64  `json:"elapsed_ms"`
	Attempts   int    `json:"attempts,omitempty"`
}

// Healthy reports whether the source answered, with or without matches.
func (s SourceStatus) Healthy() bool { return s.State == StateOK }

// ResultSet is the ranked answer to one Query plus its source breakdown.
type ResultSet struct {
	QueryID   string         `json:"query_id"`
	Query     Query          `json:"query"`
	Results   []Result       `json:"results"`
	Sources   []SourceStatus `json:"sources"`
	Partial   bool           `json:"partial"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// AllFailed reports whether no source answered. Distinguishes "nothing
// matched" from "nothing was reachable".
func (rs *ResultSet) AllFailed() bool {
	if len(rs.Sources) == 0 {
		return false
	}
	for _, s := range rs.Sources {
		if s.Healthy() {
			return false
		}
	}
	return true
}

// Status returns the status for site, if present.
func (rs *ResultSet) Status(site string) (SourceStatus, bool) {
	for _, s := range rs.Sources {
		if s.Site == site {
			return s, true
		}
	}
	return SourceStatus{}, false
}
