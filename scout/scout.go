// CLAUDE:SUMMARY Query orchestrator: validates queries, selects sites, runs the fusion engine over the session pool, maps capacity failures to errors.
// CLAUDE:DEPENDS scout/internal/{browser,pool,site,fusion,record}, idgen
// CLAUDE:EXPORTS Service, New, Open, Option, WithLogger, WithAdapters, WithClock
//
// Package scout searches several torrent index sites at once and returns one
// deduplicated, ranked ResultSet with a status line per site.
//
// Pipeline:
//
//	Search → validate → fusion.Fuse → (per site) pool.Acquire → adapter.Fetch → pool.Release
//	       → normalize → dedup → rank → ResultSet
//
// Usage:
//
//	svc, err := scout.Open(ctx, cfg, scout.WithLogger(logger))
//	defer svc.Close()
//	rs, err := svc.Search(ctx, scout.Query{Text: "ubuntu"})
//	svc.RegisterMCP(mcpServer)
package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/torscout/horosafe"
	"github.com/hazyhaar/torscout/idgen"
	"github.com/hazyhaar/torscout/scout/internal/browser"
	"github.com/hazyhaar/torscout/scout/internal/fusion"
	"github.com/hazyhaar/torscout/scout/internal/pool"
	"github.com/hazyhaar/torscout/scout/internal/record"
	"github.com/hazyhaar/torscout/scout/internal/site"
)

// Service is the public entry point. It is safe for concurrent use; the
// session pool is the only state shared between queries.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	pool     *pool.Pool
	engine   *fusion.Engine
	breakers *fusion.Breakers
	adapters []site.Adapter
	byID     map[string]site.Adapter
	closers  []func() error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAdapters replaces the adapters built from cfg.Sites. The site list
// of the config is then ignored.
func WithAdapters(adapters ...Adapter) Option {
	return func(s *Service) {
		s.adapters = adapters
		s.cfg.Sites = nil
	}
}

// WithClock sets the clock used for relative dates and age filters.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service drawing sessions from prov. The caller keeps
// ownership of prov.
func New(prov Provisioner, cfg Config, opts ...Option) (*Service, error) {
	cfg.defaults()
	s := &Service{cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.adapters == nil {
		adapters, err := site.Build(s.cfg.Sites, s.logger)
		if err != nil {
			return nil, err
		}
		s.adapters = adapters
	}
	s.byID = make(map[string]site.Adapter, len(s.adapters))
	for _, a := range s.adapters {
		if err := horosafe.ValidateIdentifier(a.ID()); err != nil {
			return nil, fmt.Errorf("scout: adapter id: %w", err)
		}
		if _, dup := s.byID[a.ID()]; dup {
			return nil, fmt.Errorf("scout: duplicate adapter id %q", a.ID())
		}
		s.byID[a.ID()] = a
	}

	s.pool = pool.New(prov, pool.Config{
		Size:          cfg.Pool.Size,
		MaxSessionAge: cfg.Pool.MaxSessionAge,
		ProbeTimeout:  cfg.Pool.ProbeTimeout,
		Logger:        s.logger,
	})

	if cfg.Search.BreakerThreshold > 0 {
		bopts := []fusion.BreakerOption{
			fusion.WithBreakerThreshold(cfg.Search.BreakerThreshold),
			fusion.WithBreakerResetTimeout(cfg.Search.BreakerCooldown),
		}
		if cfg.Search.BreakerHalfOpen > 0 {
			bopts = append(bopts, fusion.WithBreakerHalfOpenMax(cfg.Search.BreakerHalfOpen))
		}
		s.breakers = fusion.NewBreakers(append(bopts, fusion.WithBreakerClock(s.now))...)
	}
	s.engine = fusion.New(s.pool, fusion.Options{
		PerSource:      cfg.Search.PerSourceTimeout,
		Global:         cfg.Search.GlobalTimeout,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		Attempts:       cfg.Search.Attempts,
		RetryDelay:     cfg.Search.RetryDelay,
		Limit:          cfg.Search.DefaultLimit,
		Breakers:       s.breakers,
		Logger:         s.logger,
		Now:            s.now,
	})

	s.logger.Info("scout: ready", "sites", len(s.adapters), "pool_size", cfg.Pool.Size,
		"per_source", cfg.Search.PerSourceTimeout, "global", cfg.Search.GlobalTimeout)
	return s, nil
}

// Open provisions sessions as cfg.Browser says (launching Chrome unless the
// stealth level is http) and returns a Service that owns the provisioner.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()

	probe := &Service{logger: slog.Default()}
	for _, o := range opts {
		o(probe)
	}
	prov, closeProv, err := provision(ctx, cfg.Browser, probe.logger)
	if err != nil {
		return nil, err
	}
	s, err := New(prov, *cfg, opts...)
	if err != nil {
		closeProv()
		return nil, err
	}
	s.closers = append(s.closers, closeProv)
	return s, nil
}

func provision(ctx context.Context, bc BrowserConfig, logger *slog.Logger) (Provisioner, func() error, error) {
	level := browser.ParseStealth(bc.Stealth)
	if level == browser.LevelHTTP {
		p := browser.NewHTTPProvisioner(browser.HTTPConfig{
			UserAgent: bc.UserAgent,
			Timeout:   bc.NavigationTimeout,
			Logger:    logger,
		})
		return p, func() error { return nil }, nil
	}

	m := browser.NewManager(browser.Config{
		RemoteURL:         bc.Remote,
		MemoryLimit:       bc.MemoryLimit,
		RecycleInterval:   bc.RecycleInterval,
		ResourceBlocking:  bc.ResourceBlocking,
		Stealth:           level,
		XvfbDisplay:       bc.XvfbDisplay,
		UserAgent:         bc.UserAgent,
		NavigationTimeout: bc.NavigationTimeout,
		Logger:            logger,
	})
	if err := m.Start(ctx); err != nil {
		return nil, nil, errors.Join(ErrSessionUnavailable, err)
	}
	return m, m.Close, nil
}

// Search runs q against the selected sites. A ResultSet is returned whenever
// the query was valid, even alongside ErrPoolExhausted or
// ErrSessionUnavailable; per-site failures are only reported in its Sources.
func (s *Service) Search(ctx context.Context, q Query) (*ResultSet, error) {
	q, err := s.validate(q)
	if err != nil {
		return nil, err
	}

	adapters := s.adapters
	if len(q.Sources) > 0 {
		adapters = make([]site.Adapter, 0, len(q.Sources))
		for _, id := range q.Sources {
			adapters = append(adapters, s.byID[id])
		}
	}
	if len(adapters) == 0 {
		return nil, ErrNoSources
	}

	id := idgen.Query()
	rs := s.engine.Fuse(ctx, q, adapters)
	rs.QueryID = id

	s.logger.Info("scout: search done",
		"query_id", id, "query", q.Text, "results", len(rs.Results),
		"partial", rs.Partial, "elapsed_ms", rs.ElapsedMs, "sources", summarize(rs.Sources))

	return rs, capacityError(rs)
}

// capacityError reports a query-level failure when no site could even be
// tried for lack of sessions.
func capacityError(rs *ResultSet) error {
	if len(rs.Sources) == 0 {
		return nil
	}
	unavailable := false
	for _, st := range rs.Sources {
		switch st.State {
		case record.StatePoolExhausted:
		case record.StateSessionFailed:
			unavailable = true
		default:
			return nil
		}
	}
	if unavailable {
		return ErrSessionUnavailable
	}
	return ErrPoolExhausted
}

func summarize(sources []SourceStatus) map[string]string {
	out := make(map[string]string, len(sources))
	for _, st := range sources {
		out[st.Site] = string(st.State)
	}
	return out
}

// Sources lists every configured site with its enabled flag and, when
// breakers are on, the breaker state.
func (s *Service) Sources() []SourceInfo {
	var states map[string]fusion.BreakerState
	if s.breakers != nil {
		states = s.breakers.States()
	}

	var out []SourceInfo
	listed := make(map[string]bool)
	for _, c := range s.cfg.Sites {
		_, enabled := s.byID[c.ID]
		info := SourceInfo{ID: c.ID, Kind: c.Kind, BaseURL: c.BaseURL, Enabled: enabled}
		if s.breakers != nil && enabled {
			info.Breaker = states[c.ID].String()
		}
		out = append(out, info)
		listed[c.ID] = true
	}
	for _, a := range s.adapters {
		if listed[a.ID()] {
			continue
		}
		info := SourceInfo{ID: a.ID(), Kind: "custom", Enabled: true}
		if s.breakers != nil {
			info.Breaker = states[a.ID()].String()
		}
		out = append(out, info)
	}
	return out
}

// PoolStats reports session pool accounting.
func (s *Service) PoolStats() PoolStats { return s.pool.Stats() }

// Close releases the pool and, for Services built by Open, the browser.
func (s *Service) Close() error {
	errs := []error{s.pool.Close()}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
