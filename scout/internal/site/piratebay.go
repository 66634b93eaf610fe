package site

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/record"
)

const (
	pbRows      = "ol#torrents li.list-entry"
	pbNoResults = "no results returned"
)

// PirateBay scrapes the client-rendered search page of thepiratebay.org and
// its mirrors. Rows are filled in by script, so the adapter waits for the
// first list entry, which is either a result or the "No results" line.
type PirateBay struct {
	cfg  Config
	base *url.URL
}

// NewPirateBay builds the adapter. cfg.BaseURL must be absolute.
func NewPirateBay(cfg Config) (*PirateBay, error) {
	cfg.applyDefaults()
	base, err := parseBase(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("piratebay %s: %w", cfg.ID, err)
	}
	return &PirateBay{cfg: cfg, base: base}, nil
}

func (a *PirateBay) ID() string { return a.cfg.ID }

// SearchURL returns the page fetched for text.
func (a *PirateBay) SearchURL(text string) string {
	return a.cfg.BaseURL + "/search.php?q=" + url.QueryEscape(text)
}

func (a *PirateBay) Fetch(ctx context.Context, q record.Query, s browser.Session) ([]record.RawListing, error) {
	doc, err := loadPage(ctx, s, a.cfg.ID, a.SearchURL(q.Text), pbRows, a.cfg.WaitTimeout)
	if err != nil {
		return nil, err
	}
	return a.extract(doc)
}

func (a *PirateBay) extract(doc *goquery.Document) ([]record.RawListing, error) {
	rows := doc.Find(pbRows)
	if rows.Length() == 0 {
		return nil, Errorf(KindLayoutMismatch, a.cfg.ID, "no rows match %q", pbRows)
	}

	var (
		out      []record.RawListing
		empty    bool
		unparsed int
	)
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		title := row.Find("span.item-title a").First()
		if title.Length() == 0 {
			if strings.Contains(strings.ToLower(row.Text()), pbNoResults) {
				empty = true
			} else {
				unparsed++
			}
			return true
		}

		link := row.Find(`span.item-icons a[href^="magnet:"]`).AttrOr("href", "")
		if link == "" {
			link = resolve(a.base, title.AttrOr("href", ""))
		}

		out = append(out, record.RawListing{
			Site:     a.cfg.ID,
			Title:    cellText(title),
			Link:     link,
			Size:     cellText(row.Find("span.item-size")),
			Date:     cellText(row.Find("span.item-uploaded")),
			Seeders:  cellText(row.Find("span.item-seed")),
			Leechers: cellText(row.Find("span.item-leech")),
			Category: cellText(row.Find("span.item-type")),
			Uploader: cellText(row.Find("span.item-user")),
		})
		return len(out) < a.cfg.MaxRows
	})

	if len(out) == 0 && !empty && unparsed > 0 {
		return nil, Errorf(KindLayoutMismatch, a.cfg.ID, "%d rows without a title cell", unparsed)
	}
	return out, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url %q: want absolute http(s)", raw)
	}
	return u, nil
}
