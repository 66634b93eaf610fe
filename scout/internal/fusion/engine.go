// CLAUDE:SUMMARY Fans a query out to every adapter under per-source and global deadlines, then merges outcomes into a ResultSet.
// CLAUDE:DEPENDS scout/internal/pool, scout/internal/site, scout/internal/normalize, scout/internal/record
// CLAUDE:EXPORTS Engine, New, Options, Acquirer, Outcome, Merge, Less, Breakers
package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc/panics"

	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/pool"
	"github.com/hazyhaar/torscout/scout/internal/record"
	"github.com/hazyhaar/torscout/scout/internal/site"
)

// Acquirer lends sessions. *pool.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context, timeout time.Duration) (browser.Session, error)
	Release(s browser.Session)
}

// Options bound one fusion run.
type Options struct {
	PerSource      time.Duration // deadline of one adapter task, retries included. Default: 20s.
	Global         time.Duration // deadline of the whole fan-out. Default: 30s.
	AcquireTimeout time.Duration // wait for a pool slot. Default: PerSource.
	Attempts       int           // tries for NETWORK failures. Default: 2.
	RetryDelay     time.Duration // base backoff between tries. Default: 250ms.
	Limit          int           // results kept after ranking. Default: 50.

	// Breakers, when set, skips sites that failed repeatedly. Shared
	// across queries.
	Breakers *Breakers

	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.PerSource <= 0 {
		o.PerSource = 20 * time.Second
	}
	if o.Global <= 0 {
		o.Global = 30 * time.Second
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = o.PerSource
	}
	if o.Attempts <= 0 {
		o.Attempts = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine runs adapters against a shared session pool.
type Engine struct {
	pool Acquirer
	opts Options
}

// New creates an engine.
func New(p Acquirer, opts Options) *Engine {
	opts.defaults()
	return &Engine{pool: p, opts: opts}
}

// errPanic marks an adapter that panicked.
var errPanic = errors.New("adapter panicked")

// Fuse runs every adapter concurrently and always returns a ResultSet.
// Sources still running when the global deadline passes are cancelled and
// reported timed-out; their sessions go back to the pool as their tasks
// unwind. q.Filters.Limit overrides the engine limit when positive.
func (e *Engine) Fuse(ctx context.Context, q record.Query, adapters []site.Adapter) *record.ResultSet {
	start := time.Now()
	gctx, cancel := context.WithTimeout(ctx, e.opts.Global)
	defer cancel()

	outcomes := make([]Outcome, len(adapters))
	reports := make(chan report, len(adapters))
	pending := 0

	for i, a := range adapters {
		outcomes[i] = Outcome{Site: a.ID(), Order: -1}
		if e.opts.Breakers != nil && !e.opts.Breakers.For(a.ID()).Allow() {
			outcomes[i].State = record.StateSkipped
			outcomes[i].Message = "circuit open after repeated failures"
			continue
		}
		pending++
		go func(i int, a site.Adapter) {
			reports <- report{idx: i, out: e.run(gctx, q, a)}
		}(i, a)
	}

	collect(gctx, reports, pending, outcomes)
	for i := range outcomes {
		if outcomes[i].State == "" {
			outcomes[i].State = record.StateTimedOut
			outcomes[i].Message = fmt.Sprintf("no answer within the %s query deadline", e.opts.Global)
			outcomes[i].Elapsed = time.Since(start)
		}
	}

	if e.opts.Breakers != nil {
		for _, o := range outcomes {
			e.feedBreaker(o)
		}
	}

	limit := e.opts.Limit
	if q.Filters.Limit > 0 {
		limit = q.Filters.Limit
	}
	rs := Merge(q, outcomes, MergeOptions{Limit: limit, Now: e.opts.Now()})
	rs.ElapsedMs = time.Since(start).Milliseconds()
	return rs
}

type report struct {
	idx int
	out Outcome
}

// collect stores reports into outcomes in arrival order until pending
// reaches zero or ctx ends. Reports already buffered when ctx ends are kept.
func collect(ctx context.Context, reports <-chan report, pending int, outcomes []Outcome) {
	order := 0
	take := func(r report) {
		r.out.Order = order
		order++
		outcomes[r.idx] = r.out
		pending--
	}
	for pending > 0 {
		select {
		case r := <-reports:
			take(r)
		case <-ctx.Done():
			for pending > 0 {
				select {
				case r := <-reports:
					take(r)
				default:
					return
				}
			}
		}
	}
}

// feedBreaker feeds one outcome to the site's breaker. Capacity failures are
// ours, not the site's, and do not count.
func (e *Engine) feedBreaker(o Outcome) {
	switch o.State {
	case record.StateOK:
		e.opts.Breakers.For(o.Site).RecordSuccess()
	case record.StateSkipped, record.StatePoolExhausted, record.StateSessionFailed:
	default:
		e.opts.Breakers.For(o.Site).RecordFailure()
	}
}

// run executes one adapter task under its own deadline, retrying NETWORK
// failures with backoff.
func (e *Engine) run(ctx context.Context, q record.Query, a site.Adapter) Outcome {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, e.opts.PerSource)
	defer cancel()

	out := Outcome{Site: a.ID()}
	var listings []record.RawListing
	err := retry.Do(
		func() error {
			out.Attempts++
			l, err := e.attempt(sctx, q, a)
			listings = l
			return err
		},
		retry.Context(sctx),
		retry.Attempts(uint(e.opts.Attempts)),
		retry.Delay(e.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			e.opts.Logger.Debug("fusion: retrying source", "site", a.ID(), "attempt", n+1, "error", err)
		}),
	)
	out.Elapsed = time.Since(start)
	out.State, out.Message = classify(err)
	if err == nil {
		out.Listings = listings
	}

	lvl := slog.LevelDebug
	if err != nil {
		lvl = slog.LevelWarn
	}
	e.opts.Logger.Log(ctx, lvl, "fusion: source done",
		"site", a.ID(), "state", out.State, "listings", len(out.Listings),
		"attempts", out.Attempts, "elapsed_ms", out.Elapsed.Milliseconds(), "error", err)
	return out
}

// attempt borrows a session, runs the adapter once and always gives the
// session back, panics included.
func (e *Engine) attempt(ctx context.Context, q record.Query, a site.Adapter) (listings []record.RawListing, err error) {
	s, err := e.pool.Acquire(ctx, e.opts.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer e.pool.Release(s)

	var pc panics.Catcher
	pc.Try(func() { listings, err = a.Fetch(ctx, q, s) })
	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("%w: %v", errPanic, r.Value)
	}
	return listings, err
}

func retryable(err error) bool {
	if errors.Is(err, pool.ErrExhausted) || errors.Is(err, pool.ErrSessionUnavailable) ||
		errors.Is(err, pool.ErrClosed) || errors.Is(err, errPanic) {
		return false
	}
	return site.KindOf(err) == site.KindNetwork
}

// classify maps a task error to the reported source state.
func classify(err error) (record.State, string) {
	if err == nil {
		return record.StateOK, ""
	}
	msg := err.Error()
	switch {
	case errors.Is(err, pool.ErrExhausted):
		return record.StatePoolExhausted, msg
	case errors.Is(err, pool.ErrSessionUnavailable), errors.Is(err, pool.ErrClosed):
		return record.StateSessionFailed, msg
	case errors.Is(err, errPanic):
		return record.StateExtractionFailed, msg
	}
	switch site.KindOf(err) {
	case site.KindTimeout:
		return record.StateTimedOut, msg
	case site.KindBlocked:
		return record.StateBlocked, msg
	case site.KindLayoutMismatch:
		return record.StateExtractionFailed, msg
	default:
		return record.StateNetworkError, msg
	}
}
