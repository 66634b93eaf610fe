// CLAUDE:SUMMARY Chrome lifecycle for the session pool: launch or attach, recycle on age or heap, hand out incognito sessions.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/torscout/idgen"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelHTTP     StealthLevel = 0 // No browser: plain HTTP sessions
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + Xvfb
)

// ParseStealth maps the config spelling to a level. Unknown values fall back
// to headless.
func ParseStealth(s string) StealthLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http", "0":
		return LevelHTTP
	case "headful", "2":
		return LevelHeadful
	default:
		return LevelHeadless
	}
}

func (l StealthLevel) String() string {
	switch l {
	case LevelHTTP:
		return "http"
	case LevelHeadful:
		return "headful"
	default:
		return "headless"
	}
}

// Config configures the browser manager. Zero values take defaults.
type Config struct {
	RemoteURL         string        // ws:// URL of a running Chrome; empty launches one
	MemoryLimit       int64         // JS heap bytes before a recycle (1 GiB)
	RecycleInterval   time.Duration // max Chrome process age (4h)
	ResourceBlocking  []string      // resource types aborted on every page
	Stealth           StealthLevel  // headless or headful; http is promoted to headless
	XvfbDisplay       string        // display for headful (":99")
	UserAgent         string
	NavigationTimeout time.Duration // per Navigate call (30s)
	Logger            *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30 // 1GB
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Stealth == LevelHTTP {
		c.Stealth = LevelHeadless
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process and provisions incognito sessions on it.
// Sessions created before a recycle die with the old process; their Ping
// fails and the pool discards them on release.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	live    map[string]*RodSession
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, live: make(map[string]*RodSession)}
}

// Start launches Chrome (or connects to a remote instance) and starts the
// recycle monitor. The monitor stops when ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return nil
}

// CreateSession opens a fresh incognito context with one stealth page.
func (m *Manager) CreateSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	s, err := newRodSession(ctx, m.browser, idgen.Session(), m.cfg)
	if err != nil {
		return nil, err
	}
	m.live[s.id] = s
	m.cfg.Logger.Debug("browser: session created", "session", s.id, "live", len(m.live))
	return s, nil
}

// DestroySession disposes the session's incognito context.
func (m *Manager) DestroySession(s Session) error {
	rs, ok := s.(*RodSession)
	if !ok {
		return fmt.Errorf("browser: foreign session type %T", s)
	}
	m.mu.Lock()
	delete(m.live, rs.id)
	live := len(m.live)
	m.mu.Unlock()

	err := rs.close()
	m.cfg.Logger.Debug("browser: session destroyed", "session", rs.id, "live", live, "error", err)
	return err
}

// Recycle kills Chrome and starts a new process. Live sessions are orphaned.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	return m.recycleLocked()
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	if m.cfg.Stealth == LevelHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, err
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(m.cfg.Stealth != LevelHeadful).
			Set("disable-blink-features", "AutomationControlled").
			Set("no-first-run").
			Set("window-size", "1366,768")
		if m.cfg.Stealth == LevelHeadful {
			l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch chrome: %w", err)
		}
		wsURL = u
		m.lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect %s: %w", wsURL, err)
	}
	m.cfg.Logger.Info("browser: chrome ready", "remote", m.cfg.RemoteURL != "", "stealth", m.cfg.Stealth.String())
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt), "orphaned_sessions", len(m.live))

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()

	log.Info("browser: recycled successfully")
	return nil
}

func (m *Manager) cleanup() error {
	for id, s := range m.live {
		s.markClosed()
		delete(m.live, id)
	}
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			if m.closed || m.browser == nil {
				m.mu.RUnlock()
				return
			}
			startAt := m.startAt
			idle := len(m.live) == 0
			b := m.browser
			m.mu.RUnlock()

			// Recycling kills borrowed sessions mid-query, so the age-based
			// recycle waits until no session is alive. The pool retires idle
			// sessions after their max age, which lets a quiet service reach
			// that point.
			if time.Since(startAt) > m.cfg.RecycleInterval && idle {
				log.Info("browser: recycle interval reached")
				if err := m.Recycle(); err != nil {
					log.Error("browser: recycle failed", "error", err)
				}
				continue
			}

			used, err := jsHeapUsage(b)
			if err != nil {
				log.Debug("browser: heap check failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryLimit {
				log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
				if err := m.Recycle(); err != nil {
					log.Error("browser: recycle failed", "error", err)
				}
			}
		}
	}
}

// jsHeapUsage sums the JS heap of every open page.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}

	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
