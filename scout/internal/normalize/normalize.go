// CLAUDE:SUMMARY Maps scraped RawListings onto canonical Results: size/count/date coercion, info-hash, fingerprint.
// CLAUDE:DEPENDS scout/internal/record
// CLAUDE:EXPORTS Normalize, ParseSize, ParseCount, ParseDate, InfoHash, Fingerprint
package normalize

import (
	"html"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/torscout/scout/internal/record"
)

// strict strips every tag. Policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// Normalize canonicalizes one listing. It reports false when no usable title
// or link can be produced; every other field degrades to unknown instead.
func Normalize(l record.RawListing, now time.Time) (record.Result, bool) {
	title := cleanText(l.Title)
	link := cleanLink(l.Link)
	if title == "" || link == "" {
		return record.Result{}, false
	}

	size := ParseSize(l.Size)
	hash := InfoHash(link)
	r := record.Result{
		Title:       title,
		Link:        link,
		SizeBytes:   size,
		Seeders:     ParseCount(l.Seeders),
		Leechers:    ParseCount(l.Leechers),
		Downloads:   ParseCount(l.Downloads),
		Published:   ParseDate(l.Date, now),
		Site:        l.Site,
		InfoHash:    hash,
		Fingerprint: Fingerprint(title, size, hash),
		Category:    cleanText(l.Category),
		Uploader:    cleanText(l.Uploader),
	}
	return r, true
}

// cleanText drops markup and control characters and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// cleanLink accepts magnet URIs carrying an exact topic and absolute
// http(s) URLs. Anything else is rejected.
func cleanLink(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(s), "magnet:?") {
		if !strings.Contains(strings.ToLower(s), "xt=") {
			return ""
		}
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String()
	}
	return ""
}
