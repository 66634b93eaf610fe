package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/torscout/scout/internal/record"
)

var spaceReplacer = strings.NewReplacer(
	"\u00a0", " ", // nbsp
	"\u2009", " ", // thin space
	"\u202f", " ", // narrow nbsp
)

// ParseSize converts "1.2 GiB", "700 MB" or "1,024 KiB" to bytes. Binary
// and decimal units are both honoured.
func ParseSize(s string) record.Count {
	s = strings.TrimSpace(spaceReplacer.Replace(s))
	if s == "" || isPlaceholder(s) {
		return record.Unknown
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n > math.MaxInt64 {
		return record.Unknown
	}
	return record.Count(n)
}

// ParseCount parses a seeder, leecher or download count. Thousands
// separators are tolerated; placeholders and negatives are unknown.
func ParseCount(s string) record.Count {
	s = strings.TrimSpace(spaceReplacer.Replace(s))
	if s == "" || isPlaceholder(s) {
		return record.Unknown
	}
	s = strings.NewReplacer(",", "", " ", "", "'", "").Replace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return record.Unknown
	}
	return record.Count(n)
}

func isPlaceholder(s string) bool {
	switch strings.ToLower(s) {
	case "-", "--", "?", "n/a", "na", "unknown":
		return true
	}
	return false
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01-02 2006",
	"Mon, 02 Jan 2006 15:04:05 -0700",
}

var (
	reAgo   = regexp.MustCompile(`^(\d+)\s*(sec|second|min|minute|hour|day|week)s?\s+ago$`)
	reClock = regexp.MustCompile(`^(today|y-day|yesterday)\s+(\d{1,2}):(\d{2})$`)
	reUnix  = regexp.MustCompile(`^\d{9,11}$`)
)

// ParseDate understands absolute dates, unix timestamps and the relative
// forms sites print for recent uploads ("Today 13:05", "Y-day 08:00",
// "5 mins ago", "01-02 15:04" in the current year). Times are UTC. Anything
// else is unknown (nil).
func ParseDate(s string, now time.Time) *time.Time {
	s = strings.Join(strings.Fields(spaceReplacer.Replace(s)), " ")
	if s == "" || isPlaceholder(s) {
		return nil
	}
	now = now.UTC()

	if reUnix.MatchString(s) {
		sec, _ := strconv.ParseInt(s, 10, 64)
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	lower := strings.ToLower(s)
	if m := reAgo.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := map[string]time.Duration{
			"sec": time.Second, "second": time.Second,
			"min": time.Minute, "minute": time.Minute,
			"hour": time.Hour, "day": 24 * time.Hour, "week": 7 * 24 * time.Hour,
		}[m[2]]
		t := now.Add(-time.Duration(n) * unit)
		return &t
	}
	if m := reClock.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		if h > 23 || mm > 59 {
			return nil
		}
		day := now
		if m[1] != "today" {
			day = now.AddDate(0, 0, -1)
		}
		t := time.Date(day.Year(), day.Month(), day.Day(), h, mm, 0, 0, time.UTC)
		return &t
	}
	// "01-02 15:04": this year, unless that lands in the future.
	if t, err := time.Parse("01-02 15:04", s); err == nil {
		t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}
		return &t
	}
	return nil
}
