package scout

import (
	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/pool"
	"github.com/hazyhaar/torscout/scout/internal/record"
	"github.com/hazyhaar/torscout/scout/internal/site"
)

// Re-exported types for cmd/ and external callers.
type (
	Query        = record.Query
	Filters      = record.Filters
	Result       = record.Result
	ResultSet    = record.ResultSet
	SourceStatus = record.SourceStatus
	State        = record.State
	Count        = record.Count
	SiteConfig   = site.Config
	Adapter      = site.Adapter
	PoolStats    = pool.Stats
	Provisioner  = browser.Provisioner
)

const (
	StateOK               = record.StateOK
	StateTimedOut         = record.StateTimedOut
	StateExtractionFailed = record.StateExtractionFailed
	StateBlocked          = record.StateBlocked
	StateNetworkError     = record.StateNetworkError
	StatePoolExhausted    = record.StatePoolExhausted
	StateSessionFailed    = record.StateSessionFailed
	StateSkipped          = record.StateSkipped
)

// SourceInfo describes one configured site.
type SourceInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	BaseURL string `json:"base_url"`
	Enabled bool   `json:"enabled"`
	Breaker string `json:"breaker,omitempty"` // closed | open | half-open, when breakers are on
}
