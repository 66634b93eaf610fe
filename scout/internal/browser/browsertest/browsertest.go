// Package browsertest provides in-memory sessions and a provisioner for
// tests of the pool, the adapters and the fusion engine.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torscout/scout/internal/browser"
)

// Page is a canned answer for one URL.
type Page struct {
	HTML   string
	Status int           // 0 or 2xx = success
	Err    error         // returned by Navigate when set
	Delay  time.Duration // Navigate blocks this long (or until ctx ends)
}

// Session serves canned pages. Pages are matched by exact URL first, then by
// the longest registered prefix.
type Session struct {
	id      string
	created time.Time
	pages   map[string]Page

	mu        sync.Mutex
	current   string
	visited   []string
	resets    int
	healthy   bool
	resetErr  error
	destroyed bool
}

// NewSession creates a healthy session serving pages.
func NewSession(id string, pages map[string]Page) *Session {
	if pages == nil {
		pages = map[string]Page{}
	}
	return &Session{id: id, created: time.Now(), pages: pages, healthy: true}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.created }

// SetHealthy toggles the Ping answer.
func (s *Session) SetHealthy(ok bool) {
	s.mu.Lock()
	s.healthy = ok
	s.mu.Unlock()
}

// SetResetError makes Reset fail with err.
func (s *Session) SetResetError(err error) {
	s.mu.Lock()
	s.resetErr = err
	s.mu.Unlock()
}

// Visited returns the URLs navigated so far.
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Resets returns how many times Reset succeeded.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Destroyed reports whether the provisioner destroyed the session.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Session) lookup(rawURL string) (Page, bool) {
	if p, ok := s.pages[rawURL]; ok {
		return p, true
	}
	best, found := "", false
	for prefix := range s.pages {
		if strings.HasPrefix(rawURL, prefix) && len(prefix) > len(best) {
			best, found = prefix, true
		}
	}
	return s.pages[best], found
}

func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.visited = append(s.visited, rawURL)
	page, ok := s.lookup(rawURL)
	s.mu.Unlock()

	if !ok {
		return &browser.StatusError{URL: rawURL, Code: 404}
	}
	if page.Delay > 0 {
		select {
		case <-time.After(page.Delay):
		case <-ctx.Done():
			return fmt.Errorf("browsertest: navigate %s: %w", rawURL, ctx.Err())
		}
	}
	if page.Err != nil {
		return page.Err
	}

	s.mu.Lock()
	s.current = page.HTML
	s.mu.Unlock()

	if page.Status >= 400 {
		return &browser.StatusError{URL: rawURL, Code: page.Status}
	}
	return nil
}

func (s *Session) WaitVisible(_ context.Context, selector string) error {
	html, err := s.HTML(context.Background())
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return nil
}

func (s *Session) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return "", browser.ErrSessionClosed
	}
	return s.current, nil
}

func (s *Session) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	s.current = ""
	s.resets++
	return nil
}

func (s *Session) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return browser.ErrSessionClosed
	}
	if !s.healthy {
		return errors.New("browsertest: unhealthy")
	}
	return nil
}

// Provisioner creates Sessions sharing one page table and counts lifecycle
// calls so tests can assert accounting.
type Provisioner struct {
	Pages map[string]Page

	// CreateErr, when set, fails every CreateSession.
	CreateErr error

	created   atomic.Int64
	destroyed atomic.Int64

	mu       sync.Mutex
	sessions []*Session
}

// NewProvisioner returns a provisioner serving pages.
func NewProvisioner(pages map[string]Page) *Provisioner {
	return &Provisioner{Pages: pages}
}

func (p *Provisioner) CreateSession(_ context.Context) (browser.Session, error) {
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	n := p.created.Add(1)
	s := NewSession(fmt.Sprintf("fake-%d", n), p.Pages)
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *Provisioner) DestroySession(bs browser.Session) error {
	s, ok := bs.(*Session)
	if !ok {
		return fmt.Errorf("browsertest: foreign session %T", bs)
	}
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	p.destroyed.Add(1)
	return nil
}

// Created returns the number of sessions created.
func (p *Provisioner) Created() int64 { return p.created.Load() }

// Destroyed returns the number of sessions destroyed.
func (p *Provisioner) Destroyed() int64 { return p.destroyed.Load() }

// Sessions returns every session created so far.
func (p *Provisioner) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}
