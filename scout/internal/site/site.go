// Package site holds one adapter per indexing site. An adapter knows its
// site's search URL, the selectors for the result rows and the site's
// quirks; it turns a query into RawListings or a typed *Error. Fusion only
// sees the Adapter interface, so adding a site never touches it.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/record"
)

// Adapter fetches raw listings for a query from one site using a borrowed
// session. Implementations must not keep the session after returning.
type Adapter interface {
	ID() string
	Fetch(ctx context.Context, q record.Query, s browser.Session) ([]record.RawListing, error)
}

// Kind classifies an adapter failure.
type Kind string

const (
	KindTimeout        Kind = "TIMEOUT"
	KindBlocked        Kind = "BLOCKED"
	KindLayoutMismatch Kind = "LAYOUT_MISMATCH"
	KindNetwork        Kind = "NETWORK"
)

// Error is the only error type adapters return.
type Error struct {
	Kind Kind
	Site string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("site %s: %s: %v", e.Site, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, siteID, format string, args ...any) *Error {
	return &Error{Kind: kind, Site: siteID, Err: fmt.Errorf(format, args...)}
}

// Wrap turns any error into an *Error for siteID, classifying it unless it
// already is one.
func Wrap(siteID string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: Classify(err), Site: siteID, Err: err}
}

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Classify(err)
}

// Config describes one configured site.
type Config struct {
	ID          string        `yaml:"id"`
	Kind        string        `yaml:"kind"` // piratebay | nyaa
	BaseURL     string        `yaml:"base_url"`
	Disabled    bool          `yaml:"disabled"`
	MaxPages    int           `yaml:"max_pages"`
	MaxRows     int           `yaml:"max_rows"`
	WaitTimeout time.Duration `yaml:"wait_timeout"` // render wait for the result list
}

func (c *Config) applyDefaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 1
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 100
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// DefaultConfigs lists the sites supported out of the box.
func DefaultConfigs() []Config {
	return []Config{
		{ID: "thepiratebay.org", Kind: "piratebay", BaseURL: "https://thepiratebay.org"},
		{ID: "nyaa.si", Kind: "nyaa", BaseURL: "https://nyaa.si", MaxPages: 2},
		{ID: "sukebei.nyaa.si", Kind: "nyaa", BaseURL: "https://sukebei.nyaa.si", MaxPages: 2},
	}
}

// resolve makes href absolute against base. Magnet links pass through.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "magnet:") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
