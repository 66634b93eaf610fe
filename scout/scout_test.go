package scout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/browser/browsertest"
	"github.com/hazyhaar/torscout/scout/internal/record"
	"github.com/hazyhaar/torscout/scout/internal/site"
)

type stubAdapter struct {
	id       string
	listings []record.RawListing
	err      error
	delay    time.Duration
}

func (a *stubAdapter) ID() string { return a.id }

func (a *stubAdapter) Fetch(ctx context.Context, _ record.Query, _ browser.Session) ([]record.RawListing, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, site.Wrap(a.id, ctx.Err())
		}
	}
	return a.listings, a.err
}

func magnet(n int) string { return fmt.Sprintf("magnet:?xt=urn:btih:%040x", n) }

func testConfig() Config {
	return Config{
		Pool:   PoolConfig{Size: 2, AcquireTimeout: 200 * time.Millisecond, ProbeTimeout: time.Second},
		Search: SearchConfig{PerSourceTimeout: 300 * time.Millisecond, GlobalTimeout: time.Second, DefaultLimit: 10, MaxLimit: 20, RetryDelay: time.Millisecond},
	}
}

func testService(t *testing.T, prov Provisioner, adapters ...Adapter) *Service {
	t.Helper()
	if prov == nil {
		prov = browsertest.NewProvisioner(nil)
	}
	s, err := New(prov, testConfig(), WithAdapters(adapters...))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func defaultAdapters() []Adapter {
	return []Adapter{
		&stubAdapter{id: "alpha", listings: []record.RawListing{
			{Title: "Debian 12 netinst", Link: magnet(1), Seeders: "40", Size: "650 MB"},
			{Title: "Debian 12 DVD", Link: magnet(2), Seeders: "12", Size: "3.7 GB"},
		}},
		&stubAdapter{id: "beta", listings: []record.RawListing{
			{Title: "debian-12-netinst.iso", Link: magnet(1), Seeders: "90", Size: "650 MB"},
		}},
	}
}

func TestSearch_EndToEnd(t *testing.T) {
	s := testService(t, nil, defaultAdapters()...)

	rs, err := s.Search(context.Background(), Query{Text: "  debian   12 "})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(rs.QueryID, "qry_") {
		t.Fatalf("query id = %q", rs.QueryID)
	}
	if rs.Query.Text != "debian 12" || rs.Query.Filters.Limit != 10 {
		t.Fatalf("query not normalized: %+v", rs.Query)
	}
	if len(rs.Results) != 2 || rs.Results[0].Site != "beta" || rs.Results[0].Seeders != 90 {
		t.Fatalf("results = %+v", rs.Results)
	}
	if rs.Partial {
		t.Fatalf("sources = %+v", rs.Sources)
	}
	if st := s.PoolStats(); st.InUse != 0 {
		t.Fatalf("pool not back to baseline: %+v", st)
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	s := testService(t, nil, defaultAdapters()...)

	for name, q := range map[string]Query{
		"empty":       {Text: "   "},
		"too long":    {Text: strings.Repeat("é", MaxQueryRunes+1)},
		"neg seeders": {Text: "x", Filters: Filters{MinSeeders: -1}},
		"neg limit":   {Text: "x", Filters: Filters{Limit: -5}},
		"bad source":  {Text: "x", Sources: []string{"gamma"}},
		"neg max age": {Text: "x", Filters: Filters{MaxAge: -time.Hour}},
	} {
		_, err := s.Search(context.Background(), q)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("%s: got %v, want ErrInvalidQuery", name, err)
		}
		var qe *QueryError
		if !errors.As(err, &qe) || qe.Field == "" {
			t.Errorf("%s: no field in %v", name, err)
		}
	}
	if st := s.PoolStats(); st.Acquired != 0 {
		t.Fatal("invalid query reached the pool")
	}
}

func TestSearch_LimitClampedAndSourcesSubset(t *testing.T) {
	s := testService(t, nil, defaultAdapters()...)

	rs, err := s.Search(context.Background(), Query{Text: "debian", Filters: Filters{Limit: 1000}, Sources: []string{"alpha", "alpha"}})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Query.Filters.Limit != 20 {
		t.Fatalf("limit = %d, want clamped to 20", rs.Query.Filters.Limit)
	}
	if len(rs.Sources) != 1 || rs.Sources[0].Site != "alpha" {
		t.Fatalf("sources = %+v", rs.Sources)
	}
}

func TestSearch_AllSitesFailedIsNotAnError(t *testing.T) {
	// WHAT: every site failing for its own reasons still yields a ResultSet
	// and no error.
	// WHY: callers tell "nothing matched" from "nothing reachable" through
	// the status report, not through an exception.
	s := testService(t, nil,
		&stubAdapter{id: "a", err: site.Errorf(site.KindLayoutMismatch, "a", "table missing")},
		&stubAdapter{id: "b", err: site.Errorf(site.KindBlocked, "b", "captcha")},
	)
	rs, err := s.Search(context.Background(), Query{Text: "x"})
	if err != nil {
		t.Fatalf("site failures surfaced as %v", err)
	}
	if !rs.AllFailed() || len(rs.Results) != 0 {
		t.Fatalf("rs = %+v", rs)
	}
}

func TestSearch_SessionUnavailable(t *testing.T) {
	prov := browsertest.NewProvisioner(nil)
	prov.CreateErr = errors.New("chrome: executable not found")
	s := testService(t, prov, defaultAdapters()...)

	rs, err := s.Search(context.Background(), Query{Text: "x"})
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("got %v", err)
	}
	if rs == nil || rs.Sources[0].State != StateSessionFailed {
		t.Fatalf("rs = %+v", rs)
	}
}

func TestSearch_PoolExhausted(t *testing.T) {
	s := testService(t, nil, defaultAdapters()...)
	var held []browser.Session
	for i := 0; i < 2; i++ {
		h, err := s.pool.Acquire(context.Background(), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		held = append(held, h)
	}

	rs, err := s.Search(context.Background(), Query{Text: "x"})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("got %v", err)
	}
	for _, st := range rs.Sources {
		if st.State != StatePoolExhausted {
			t.Fatalf("%+v", st)
		}
	}
	for _, h := range held {
		s.pool.Release(h)
	}
}

func TestSearch_ConcurrentQueriesIndependent(t *testing.T) {
	// WHAT: identical queries issued together get identical rankings and
	// distinct ids, and the pool returns to zero occupancy.
	adapters := defaultAdapters()
	adapters[0].(*stubAdapter).delay = 10 * time.Millisecond
	s := testService(t, nil, adapters...)

	const n = 6
	sets := make([]*ResultSet, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rs, err := s.Search(context.Background(), Query{Text: "debian"})
			if err != nil {
				t.Error(err)
				return
			}
			sets[i] = rs
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, rs := range sets {
		if rs == nil {
			t.FailNow()
		}
		ids[rs.QueryID] = true
		for j := range rs.Results {
			if rs.Results[j].Fingerprint != sets[0].Results[j].Fingerprint {
				t.Fatal("rankings diverged between identical queries")
			}
		}
	}
	if len(ids) != n {
		t.Fatalf("query ids reused: %v", ids)
	}
	if st := s.PoolStats(); st.InUse != 0 || st.Acquired != st.Released {
		t.Fatalf("pool = %+v", st)
	}
}

func TestSources(t *testing.T) {
	cfg := testConfig()
	cfg.Sites = site.DefaultConfigs()
	cfg.Sites[2].Disabled = true
	cfg.Search.BreakerThreshold = 2
	s, err := New(browsertest.NewProvisioner(nil), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	src := s.Sources()
	if len(src) != 3 {
		t.Fatalf("sources = %+v", src)
	}
	if !src[0].Enabled || src[0].Kind != "piratebay" || src[0].Breaker != "closed" {
		t.Fatalf("first = %+v", src[0])
	}
	if src[2].Enabled || src[2].Breaker != "" {
		t.Fatalf("disabled site = %+v", src[2])
	}
}

func TestSearch_NoSources(t *testing.T) {
	cfg := testConfig()
	cfg.Sites = []SiteConfig{{ID: "x", Kind: "nyaa", BaseURL: "https://x.test", Disabled: true}}
	s, err := New(browsertest.NewProvisioner(nil), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Search(context.Background(), Query{Text: "x"}); !errors.Is(err, ErrNoSources) {
		t.Fatalf("got %v", err)
	}
}

func TestNew_RejectsBadAdapterIDs(t *testing.T) {
	// WHAT: two adapters with one id, or an unusable id, fail New.
	// WHY: per-site status and breakers are keyed by id; a shared id would
	// merge two sites into one status line.
	for name, adapters := range map[string][]Adapter{
		"duplicate": {&stubAdapter{id: "alpha"}, &stubAdapter{id: "alpha"}},
		"empty":     {&stubAdapter{id: ""}},
		"unsafe":    {&stubAdapter{id: "a/../b"}},
	} {
		if _, err := New(browsertest.NewProvisioner(nil), testConfig(), WithAdapters(adapters...)); err == nil {
			t.Errorf("%s: New accepted %v", name, adapters)
		}
	}
}

func TestSearch_BreakerHalfOpenNeedsConfiguredSuccesses(t *testing.T) {
	// WHAT: with breaker_half_open 2, a tripped site reads half-open after
	// one good query and closed after the second.
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	flaky := &stubAdapter{id: "flaky", err: site.Errorf(site.KindBlocked, "flaky", "captcha")}
	cfg := testConfig()
	cfg.Search.BreakerThreshold = 1
	cfg.Search.BreakerCooldown = time.Minute
	cfg.Search.BreakerHalfOpen = 2
	s, err := New(browsertest.NewProvisioner(nil), cfg, WithAdapters(flaky), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	state := func() string { return s.Sources()[0].Breaker }
	search := func() {
		t.Helper()
		if _, err := s.Search(context.Background(), Query{Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	search()
	if state() != "open" {
		t.Fatalf("after failure: %s", state())
	}
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	flaky.err = nil

	search()
	if state() != "half-open" {
		t.Fatalf("after one success: %s", state())
	}
	search()
	if state() != "closed" {
		t.Fatalf("after two successes: %s", state())
	}
}
