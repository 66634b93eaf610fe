package site

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/browser/browsertest"
	"github.com/hazyhaar/torscout/scout/internal/record"
)

const pbFixture = `<html><body><ol id="torrents">
<li class="list-entry">
  <span class="list-item item-type"><a href="/search.php?q=category:303">Applications &gt; UNIX</a></span>
  <span class="list-item item-title"><a href="/description.php?id=1">Ubuntu 24.04 Desktop amd64</a></span>
  <span class="list-item item-uploaded">2024-04-25</span>
  <span class="item-icons"><a href="magnet:?xt=urn:btih:3f19b149f53a50e14fc0b79926a391896eabab6f&amp;dn=ubuntu">m</a></span>
  <span class="list-item item-size">5.7&nbsp;GiB</span>
  <span class="list-item item-seed">1200</span>
  <span class="list-item item-leech">35</span>
  <span class="list-item item-user">ubuntu-team</span>
</li>
<li class="list-entry">
  <span class="list-item item-title"><a href="/description.php?id=2">Ubuntu Server 22.04</a></span>
  <span class="item-icons"></span>
  <span class="list-item item-size">2.0 GiB</span>
  <span class="list-item item-seed">80</span>
</li>
</ol></body></html>`

const pbEmpty = `<html><body><ol id="torrents"><li class="list-entry">No results returned</li></ol></body></html>`

func nyaaFixture(rows int, next bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="container"><table class="torrent-list"><tbody>`)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, `<tr class="default">
<td><a href="/?c=1_2" title="Anime - English-translated">cat</a></td>
<td colspan="2"><a href="/view/%d#comments" class="comments">3</a><a href="/view/%d" title="[Group] Show - %02d [1080p].mkv">[Group] Show - %02d</a></td>
<td class="text-center"><a href="/download/%d.torrent">t</a><a href="magnet:?xt=urn:btih:%040d">m</a></td>
<td class="text-center">1.4 GiB</td>
<td class="text-center" data-timestamp="1700000000">2023-11-14 22:13</td>
<td class="text-center">%d</td>
<td class="text-center">4</td>
<td class="text-center">900</td>
</tr>`, i, i, i, i, i, i, 100-i)
	}
	b.WriteString(`</tbody></table><ul class="pagination">`)
	if next {
		b.WriteString(`<li class="next"><a href="?p=2">»</a></li>`)
	} else {
		b.WriteString(`<li class="next disabled"><a>»</a></li>`)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func session(pages map[string]browsertest.Page) *browsertest.Session {
	return browsertest.NewSession("t", pages)
}

func mustPirateBay(t *testing.T) *PirateBay {
	t.Helper()
	a, err := NewPirateBay(Config{ID: "pb", BaseURL: "https://pb.test/", WaitTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func mustNyaa(t *testing.T, pages int) *Nyaa {
	t.Helper()
	a, err := NewNyaa(Config{ID: "nyaa", BaseURL: "https://nyaa.test", MaxPages: pages, MaxRows: 500, WaitTimeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestPirateBay_Extract(t *testing.T) {
	a := mustPirateBay(t)
	s := session(map[string]browsertest.Page{a.SearchURL("ubuntu"): {HTML: pbFixture}})

	got, err := a.Fetch(context.Background(), record.Query{Text: "ubuntu"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	first := got[0]
	if first.Title != "Ubuntu 24.04 Desktop amd64" || first.Seeders != "1200" || first.Size != "5.7 GiB" {
		t.Fatalf("first = %+v", first)
	}
	if !strings.HasPrefix(first.Link, "magnet:?xt=urn:btih:3f19b149") {
		t.Fatalf("magnet not preferred: %q", first.Link)
	}
	if first.Site != "pb" || first.Uploader != "ubuntu-team" || first.Date != "2024-04-25" {
		t.Fatalf("metadata lost: %+v", first)
	}
	// WHAT: without a magnet the detail page is resolved against the base.
	if got[1].Link != "https://pb.test/description.php?id=2" {
		t.Fatalf("relative link not resolved: %q", got[1].Link)
	}
}

func TestPirateBay_NoResultsIsEmptyNotError(t *testing.T) {
	a := mustPirateBay(t)
	s := session(map[string]browsertest.Page{a.SearchURL("zzz"): {HTML: pbEmpty}})

	got, err := a.Fetch(context.Background(), record.Query{Text: "zzz"}, s)
	if err != nil {
		t.Fatalf("empty result page reported as error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d listings", len(got))
	}
}

func TestPirateBay_LayoutMismatch(t *testing.T) {
	// WHAT: a page without the result list is LAYOUT_MISMATCH, not empty.
	// WHY: "no matches" and "markup changed" must stay distinguishable.
	a := mustPirateBay(t)
	s := session(map[string]browsertest.Page{a.SearchURL("x"): {HTML: `<html><body><div class="new-ui"></div></body></html>`}})

	_, err := a.Fetch(context.Background(), record.Query{Text: "x"}, s)
	if KindOf(err) != KindLayoutMismatch {
		t.Fatalf("got %v, want LAYOUT_MISMATCH", err)
	}
}

func TestPirateBay_RowsWithoutTitles(t *testing.T) {
	a := mustPirateBay(t)
	html := `<ol id="torrents"><li class="list-entry"><span class="other">?</span></li></ol>`
	s := session(map[string]browsertest.Page{a.SearchURL("x"): {HTML: html}})

	_, err := a.Fetch(context.Background(), record.Query{Text: "x"}, s)
	if KindOf(err) != KindLayoutMismatch {
		t.Fatalf("got %v, want LAYOUT_MISMATCH", err)
	}
}

func TestFetch_Blocked(t *testing.T) {
	a := mustPirateBay(t)
	challenge := `<html><head><title>Just a moment...</title></head><body><div id="cf-browser-verification"></div></body></html>`

	for name, page := range map[string]browsertest.Page{
		"challenge 200": {HTML: challenge},
		"challenge 503": {HTML: challenge, Status: 503},
		"forbidden":     {HTML: "denied", Status: 403},
		"rate limited":  {Status: 429},
	} {
		t.Run(name, func(t *testing.T) {
			s := session(map[string]browsertest.Page{a.SearchURL("x"): page})
			_, err := a.Fetch(context.Background(), record.Query{Text: "x"}, s)
			if KindOf(err) != KindBlocked {
				t.Fatalf("got %v, want BLOCKED", err)
			}
		})
	}
}

func TestFetch_NetworkAndTimeout(t *testing.T) {
	a := mustPirateBay(t)

	s := session(map[string]browsertest.Page{a.SearchURL("x"): {Err: errors.New("net::ERR_CONNECTION_REFUSED")}})
	_, err := a.Fetch(context.Background(), record.Query{Text: "x"}, s)
	if KindOf(err) != KindNetwork {
		t.Fatalf("got %v, want NETWORK", err)
	}

	s = session(map[string]browsertest.Page{a.SearchURL("x"): {HTML: pbFixture, Delay: time.Second}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Fetch(ctx, record.Query{Text: "x"}, s)
	if KindOf(err) != KindTimeout {
		t.Fatalf("got %v, want TIMEOUT", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Site != "pb" {
		t.Fatalf("error not attributed to site: %v", err)
	}
}

func TestNyaa_PaginatesUntilShortPage(t *testing.T) {
	a := mustNyaa(t, 3)
	s := session(map[string]browsertest.Page{
		a.SearchURL("show", 1): {HTML: nyaaFixture(nyaaPageSize, true)},
		a.SearchURL("show", 2): {HTML: nyaaFixture(10, false)},
	})

	got, err := a.Fetch(context.Background(), record.Query{Text: "show"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != nyaaPageSize+10 {
		t.Fatalf("got %d listings", len(got))
	}
	if v := s.Visited(); len(v) != 2 {
		t.Fatalf("visited %v, want 2 pages", v)
	}
	l := got[0]
	if l.Title != "[Group] Show - 00 [1080p].mkv" || l.Category != "Anime - English-translated" {
		t.Fatalf("listing = %+v", l)
	}
	if l.Date != "1700000000" || l.Seeders != "100" || l.Downloads != "900" || l.Size != "1.4 GiB" {
		t.Fatalf("columns misaligned: %+v", l)
	}
	if !strings.HasPrefix(l.Link, "magnet:") {
		t.Fatalf("link = %q", l.Link)
	}
}

func TestNyaa_LaterPageFailureKeepsFirst(t *testing.T) {
	a := mustNyaa(t, 2)
	s := session(map[string]browsertest.Page{
		a.SearchURL("show", 1): {HTML: nyaaFixture(nyaaPageSize, true)},
		a.SearchURL("show", 2): {Status: 502},
	})

	got, err := a.Fetch(context.Background(), record.Query{Text: "show"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != nyaaPageSize {
		t.Fatalf("got %d", len(got))
	}
}

func TestNyaa_NoResults(t *testing.T) {
	a := mustNyaa(t, 2)
	s := session(map[string]browsertest.Page{
		a.SearchURL("zzz", 1): {HTML: `<div class="container"><h3>No results found</h3></div>`},
	})
	got, err := a.Fetch(context.Background(), record.Query{Text: "zzz"}, s)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %d, %v", len(got), err)
	}
}

func TestNyaa_TorrentLinkFallback(t *testing.T) {
	a := mustNyaa(t, 1)
	html := strings.Replace(nyaaFixture(1, false), `<a href="magnet:?xt=urn:btih:0000000000000000000000000000000000000000">m</a>`, "", 1)
	s := session(map[string]browsertest.Page{a.SearchURL("x", 1): {HTML: html}})

	got, err := a.Fetch(context.Background(), record.Query{Text: "x"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Link != "https://nyaa.test/download/0.torrent" {
		t.Fatalf("link = %q", got[0].Link)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("wrap: %w", browser.ErrElementNotFound), KindLayoutMismatch},
		{&browser.StatusError{Code: 403}, KindBlocked},
		{&browser.StatusError{Code: 404}, KindLayoutMismatch},
		{&browser.StatusError{Code: 502}, KindNetwork},
		{errors.New("dial tcp: i/o timeout"), KindTimeout},
		{errors.New("no such host"), KindNetwork},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestBuild(t *testing.T) {
	adapters, err := Build(DefaultConfigs(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(adapters) != 3 || adapters[0].ID() != "thepiratebay.org" {
		t.Fatalf("adapters = %v", adapters)
	}

	cfgs := DefaultConfigs()
	cfgs[1].Disabled = true
	adapters, _ = Build(cfgs, nil)
	if len(adapters) != 2 {
		t.Fatalf("disabled site built: %d", len(adapters))
	}

	if _, err := Build([]Config{{ID: "a", Kind: "piratebay", BaseURL: "https://a"}, {ID: "a", Kind: "nyaa", BaseURL: "https://b"}}, nil); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if _, err := Build([]Config{{ID: "a", Kind: "kat", BaseURL: "https://a"}}, nil); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if _, err := Build([]Config{{ID: "a", Kind: "nyaa", BaseURL: "nyaa.si"}}, nil); err == nil {
		t.Fatal("relative base url accepted")
	}
	if _, err := Build([]Config{{ID: "bad id", Kind: "nyaa", BaseURL: "https://b"}}, nil); err == nil {
		t.Fatal("id with a space accepted")
	}
	if _, err := Build([]Config{{ID: "a", Kind: "nyaa", BaseURL: "ftp://nyaa.si"}}, nil); err == nil {
		t.Fatal("ftp base url accepted")
	}
}
