// CLAUDE:SUMMARY Bounded session pool: Acquire blocks up to a timeout, Release probes health, resets or destroys, recreates lazily, a janitor retires expired idle sessions.
// CLAUDE:DEPENDS scout/internal/browser
// CLAUDE:EXPORTS Pool, New, Config, Stats, ErrExhausted, ErrClosed, ErrSessionUnavailable
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/torscout/scout/internal/browser"
)

var (
	// ErrExhausted is returned when no slot frees up within the acquire
	// timeout. Transient: the caller may retry.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("pool: closed")

	// ErrSessionUnavailable wraps a provisioner failure to create a session.
	ErrSessionUnavailable = errors.New("pool: session unavailable")
)

// Config sizes the pool.
type Config struct {
	// Size is the maximum number of live sessions. Default: 2.
	Size int
	// MaxSessionAge retires idle sessions older than this. Default: 30m.
	MaxSessionAge time.Duration
	// ProbeTimeout bounds the health probe and reset done on Release. Default: 5s.
	ProbeTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Size <= 0 {
		c.Size = 2
	}
	if c.MaxSessionAge <= 0 {
		c.MaxSessionAge = 30 * time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats is a point-in-time view of pool accounting.
type Stats struct {
	Size      int   `json:"size"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	Waiting   int   `json:"waiting"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
	Acquired  int64 `json:"acquired"`
	Released  int64 `json:"released"`
	Exhausted int64 `json:"exhausted"`
}

// Pool lends sessions from a Provisioner. A slot is held from Acquire until
// the matching Release has finished probing the session, so the number of
// live sessions never exceeds Size.
type Pool struct {
	cfg   Config
	prov  browser.Provisioner
	slots chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	idle    []browser.Session
	inUse   map[string]browser.Session
	waiting int
	closed  bool

	created, destroyed, acquired, released, exhausted int64
}

// New creates a pool. Sessions are created lazily on first Acquire. Idle
// sessions past MaxSessionAge are retired in the background until Close.
func New(prov browser.Provisioner, cfg Config) *Pool {
	cfg.defaults()
	p := &Pool{
		cfg:   cfg,
		prov:  prov,
		slots: make(chan struct{}, cfg.Size),
		done:  make(chan struct{}),
		inUse: make(map[string]browser.Session),
	}
	go p.janitor(janitorInterval(cfg.MaxSessionAge))
	return p
}

// janitorInterval sweeps twice per session lifetime, within [10ms, 1m].
func janitorInterval(maxAge time.Duration) time.Duration {
	d := maxAge / 2
	if d > time.Minute {
		d = time.Minute
	}
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// janitor retires expired idle sessions, so a quiet pool holds no session
// longer than about MaxSessionAge.
func (p *Pool) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			for _, s := range p.expiredIdle() {
				p.destroy(s, "expired")
			}
		}
	}
}

// expiredIdle removes and returns the idle sessions past MaxSessionAge.
func (p *Pool) expiredIdle() []browser.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []browser.Session
	kept := p.idle[:0]
	for _, s := range p.idle {
		if time.Since(s.CreatedAt()) > p.cfg.MaxSessionAge {
			expired = append(expired, s)
		} else {
			kept = append(kept, s)
		}
	}
	p.idle = kept
	return expired
}

// Acquire borrows a session, waiting at most timeout (zero = until ctx ends)
// for a free slot. Every successful Acquire must be paired with Release.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (browser.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.waiting++
	p.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case p.slots <- struct{}{}:
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	case <-expired:
		p.mu.Lock()
		p.waiting--
		p.exhausted++
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: no session within %s", ErrExhausted, timeout)
	case <-ctx.Done():
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
		return nil, fmt.Errorf("pool: acquire: %w", ctx.Err())
	case <-p.done:
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
		return nil, ErrClosed
	}

	s, err := p.take(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.inUse[s.ID()] = s
	p.acquired++
	p.mu.Unlock()
	return s, nil
}

// take reuses a fresh idle session or creates one. Caller holds a slot.
func (p *Pool) take(ctx context.Context) (browser.Session, error) {
	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if time.Since(s.CreatedAt()) > p.cfg.MaxSessionAge {
			p.destroy(s, "expired")
			continue
		}
		return s, nil
	}

	s, err := p.prov.CreateSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pool: create: %w", ctx.Err())
		}
		p.cfg.Logger.Error("pool: session create failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	return s, nil
}

// Release returns a borrowed session. It probes health and resets the
// session before it can be lent again; sessions that fail either step are
// destroyed and replaced on a later Acquire. Release ignores its caller's
// context: it runs on cancellation paths and must finish.
func (p *Pool) Release(s browser.Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.inUse[s.ID()]; !ok {
		p.mu.Unlock()
		p.cfg.Logger.Warn("pool: release of unknown session", "session", s.ID())
		return
	}
	delete(p.inUse, s.ID())
	p.released++
	closed := p.closed
	p.mu.Unlock()

	defer func() { <-p.slots }()

	if closed {
		p.destroy(s, "pool closed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		p.destroy(s, "unhealthy: "+err.Error())
		return
	}
	if time.Since(s.CreatedAt()) > p.cfg.MaxSessionAge {
		p.destroy(s, "expired")
		return
	}
	if err := s.Reset(ctx); err != nil {
		p.destroy(s, "reset failed: "+err.Error())
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(s, "pool closed")
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

func (p *Pool) destroy(s browser.Session, reason string) {
	if err := p.prov.DestroySession(s); err != nil {
		p.cfg.Logger.Warn("pool: destroy failed", "session", s.ID(), "error", err)
	}
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
	p.cfg.Logger.Debug("pool: session destroyed", "session", s.ID(), "reason", reason)
}

// Stats returns current accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:      p.cfg.Size,
		InUse:     len(p.inUse),
		Idle:      len(p.idle),
		Waiting:   p.waiting,
		Created:   p.created,
		Destroyed: p.destroyed,
		Acquired:  p.acquired,
		Released:  p.released,
		Exhausted: p.exhausted,
	}
}

// Close destroys idle sessions and fails waiting and future Acquires.
// Borrowed sessions are destroyed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, s := range idle {
		p.destroy(s, "pool closed")
	}
	return nil
}
