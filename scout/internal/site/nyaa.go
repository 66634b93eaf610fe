package site

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/record"
)

const (
	nyaaRows      = "table.torrent-list tbody tr"
	nyaaReady     = "table.torrent-list, div.container h3"
	nyaaNoResults = "no results found"
	nyaaPageSize  = 75
)

// Nyaa scrapes the server-rendered torrent table of nyaa.si. The same markup
// serves sukebei.nyaa.si, so both are configured with kind "nyaa".
type Nyaa struct {
	cfg    Config
	base   *url.URL
	logger *slog.Logger
}

// NewNyaa builds the adapter. cfg.BaseURL must be absolute.
func NewNyaa(cfg Config, logger *slog.Logger) (*Nyaa, error) {
	cfg.applyDefaults()
	base, err := parseBase(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("nyaa %s: %w", cfg.ID, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Nyaa{cfg: cfg, base: base, logger: logger}, nil
}

func (a *Nyaa) ID() string { return a.cfg.ID }

// SearchURL returns result page n (1-based) for text, sorted by seeders.
func (a *Nyaa) SearchURL(text string, page int) string {
	u := a.cfg.BaseURL + "/?f=0&c=0_0&q=" + url.QueryEscape(text) + "&s=seeders&o=desc"
	if page > 1 {
		u += "&p=" + strconv.Itoa(page)
	}
	return u
}

// Fetch reads up to MaxPages pages. Page 1 decides success; a failure on a
// later page ends pagination and keeps what was collected.
func (a *Nyaa) Fetch(ctx context.Context, q record.Query, s browser.Session) ([]record.RawListing, error) {
	var out []record.RawListing
	for page := 1; page <= a.cfg.MaxPages; page++ {
		doc, err := loadPage(ctx, s, a.cfg.ID, a.SearchURL(q.Text, page), nyaaReady, a.cfg.WaitTimeout)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			a.logger.Warn("site: pagination stopped", "site", a.cfg.ID, "page", page, "error", err)
			break
		}
		rows, n, err := a.extract(doc)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			a.logger.Warn("site: pagination stopped", "site", a.cfg.ID, "page", page, "error", err)
			break
		}
		out = append(out, rows...)
		if len(out) >= a.cfg.MaxRows {
			out = out[:a.cfg.MaxRows]
			break
		}
		if n < nyaaPageSize || !hasNextPage(doc) {
			break
		}
	}
	return out, nil
}

// extract returns the parsed listings and the number of table rows seen.
func (a *Nyaa) extract(doc *goquery.Document) ([]record.RawListing, int, error) {
	if doc.Find("table.torrent-list").Length() == 0 {
		if strings.Contains(strings.ToLower(doc.Find("h3").Text()), nyaaNoResults) {
			return nil, 0, nil
		}
		return nil, 0, Errorf(KindLayoutMismatch, a.cfg.ID, "torrent table missing")
	}

	rows := doc.Find(nyaaRows)
	var (
		out      []record.RawListing
		unparsed int
	)
	rows.Each(func(_ int, row *goquery.Selection) {
		td := row.Find("td")
		if td.Length() < 8 {
			unparsed++
			return
		}
		name := td.Eq(1).Find("a:not(.comments)").Last()
		title := strings.TrimSpace(name.AttrOr("title", ""))
		if title == "" {
			title = cellText(name)
		}
		if title == "" {
			unparsed++
			return
		}

		links := td.Eq(2)
		link := links.Find(`a[href^="magnet:"]`).AttrOr("href", "")
		if link == "" {
			link = resolve(a.base, links.Find(`a[href$=".torrent"]`).AttrOr("href", ""))
		}
		if link == "" {
			link = resolve(a.base, name.AttrOr("href", ""))
		}

		date := td.Eq(4).AttrOr("data-timestamp", "")
		if date == "" {
			date = cellText(td.Eq(4))
		}

		out = append(out, record.RawListing{
			Site:      a.cfg.ID,
			Title:     title,
			Link:      link,
			Size:      cellText(td.Eq(3)),
			Date:      date,
			Seeders:   cellText(td.Eq(5)),
			Leechers:  cellText(td.Eq(6)),
			Downloads: cellText(td.Eq(7)),
			Category:  td.Eq(0).Find("a").AttrOr("title", ""),
		})
	})

	if len(out) == 0 && unparsed > 0 {
		return nil, rows.Length(), Errorf(KindLayoutMismatch, a.cfg.ID, "%d rows in unexpected format", unparsed)
	}
	return out, rows.Length(), nil
}

func hasNextPage(doc *goquery.Document) bool {
	next := doc.Find("ul.pagination li.next")
	if next.Length() == 0 {
		// Older markup: the last pagination link is a "»" anchor.
		next = doc.Find("ul.pagination li").Last()
		if !strings.Contains(next.Text(), "»") {
			return false
		}
	}
	return !next.HasClass("disabled")
}
