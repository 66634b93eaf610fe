package normalize

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/torscout/scout/internal/record"
)

// InfoHash extracts the v1 BitTorrent info-hash from a magnet link as 40
// lowercase hex characters. Base32 hashes are converted. Returns "" when the
// link carries none.
func InfoHash(link string) string {
	if !strings.HasPrefix(strings.ToLower(link), "magnet:?") {
		return ""
	}
	q, err := url.ParseQuery(link[len("magnet:?"):])
	if err != nil {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "xt") { // xt, xt.1, xt.2 ...
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, v := range q[key] {
			if len(v) < 9 || !strings.EqualFold(v[:9], "urn:btih:") {
				continue
			}
			if h := decodeBTIH(v[9:]); h != "" {
				return h
			}
		}
	}
	return ""
}

func decodeBTIH(s string) string {
	switch len(s) {
	case 40:
		if _, err := hex.DecodeString(s); err == nil {
			return strings.ToLower(s)
		}
	case 32:
		if b, err := base32.StdEncoding.DecodeString(strings.ToUpper(s)); err == nil {
			return hex.EncodeToString(b)
		}
	}
	return ""
}

// Fingerprint identifies content across sites. With an info-hash it is
// "btih:<hex>"; otherwise "title:" plus a hash of the normalized title and a
// roughly 10%-wide size bucket, so the same upload listed as "5.7 GiB" and
// "6.1 GB" usually collides.
func Fingerprint(title string, size record.Count, infoHash string) string {
	if infoHash != "" {
		return "btih:" + infoHash
	}
	sum := sha256.Sum256([]byte(NormalizeTitle(title) + "|" + sizeBucket(size)))
	return "title:" + hex.EncodeToString(sum[:8])
}

// NormalizeTitle folds case and accents and reduces punctuation to single
// spaces: "Amélie.2001.1080p" and "amelie 2001 1080p" agree.
func NormalizeTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	folded = cases.Fold().String(folded)

	var b strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

func sizeBucket(size record.Count) string {
	if !size.Known() {
		return "?"
	}
	if size == 0 {
		return "0"
	}
	return strconv.Itoa(int(math.Floor(math.Log(float64(size)) / math.Log(1.1))))
}
