package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodSession is a Rod page inside its own incognito browser context, so
// cookies and storage never leak between borrowers of different sessions.
type RodSession struct {
	id      string
	created time.Time
	inc     *rod.Browser
	page    *rod.Page
	navTO   time.Duration

	mu      sync.Mutex
	closed  bool
	origins map[string]struct{} // visited origins, cleared on Reset
}

func newRodSession(ctx context.Context, b *rod.Browser, id string, cfg Config) (*RodSession, error) {
	inc, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}

	var page *rod.Page
	if cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(inc)
	} else {
		page, err = inc.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		inc.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			cfg.Logger.Warn("browser: user agent override failed", "session", id, "error", err)
		}
	}
	if len(cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, cfg.ResourceBlocking); err != nil {
			cfg.Logger.Warn("browser: resource blocking failed", "session", id, "error", err)
		}
	}

	return &RodSession{
		id:      id,
		created: time.Now(),
		inc:     inc,
		page:    page,
		navTO:   cfg.NavigationTimeout,
		origins: make(map[string]struct{}),
	}, nil
}

func (s *RodSession) ID() string           { return s.id }
func (s *RodSession) CreatedAt() time.Time { return s.created }

func (s *RodSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *RodSession) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Navigate loads rawURL, records the document's HTTP status and waits for
// the load event. A 4xx/5xx document answer returns *StatusError.
func (s *RodSession) Navigate(ctx context.Context, rawURL string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	navCtx, cancel := context.WithTimeout(ctx, s.navTO)
	defer cancel()

	page := s.page.Context(navCtx)

	var status int
	waitDoc := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status = e.Response.Status
			return true
		}
		return false
	})

	if err := page.Navigate(rawURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", rawURL, err)
	}
	waitDoc()
	if err := navCtx.Err(); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", rawURL, err)
	}

	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		s.mu.Lock()
		s.origins[u.Scheme+"://"+u.Host] = struct{}{}
		s.mu.Unlock()
	}

	if status >= 400 {
		return &StatusError{URL: rawURL, Code: status}
	}

	// Slow trackers and ads keep the load event pending; the adapter waits
	// for its own selector anyway.
	_ = page.WaitLoad()
	return nil
}

// WaitVisible polls for selector until it matches or ctx ends.
func (s *RodSession) WaitVisible(ctx context.Context, selector string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if _, err := s.page.Context(ctx).Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return nil
}

func (s *RodSession) HTML(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return html, nil
}

// Reset drops cookies, per-origin storage and the HTTP cache, then parks
// the page on about:blank.
func (s *RodSession) Reset(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	page := s.page.Context(ctx)

	if err := s.inc.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("browser: clear cookies: %w", err)
	}

	s.mu.Lock()
	origins := make([]string, 0, len(s.origins))
	for o := range s.origins {
		origins = append(origins, o)
	}
	s.origins = make(map[string]struct{})
	s.mu.Unlock()

	for _, o := range origins {
		err := proto.StorageClearDataForOrigin{Origin: o, StorageTypes: "all"}.Call(page)
		if err != nil {
			return fmt.Errorf("browser: clear storage %s: %w", o, err)
		}
	}
	if err := (proto.NetworkClearBrowserCache{}).Call(page); err != nil {
		return fmt.Errorf("browser: clear cache: %w", err)
	}
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("browser: blank: %w", err)
	}
	return nil
}

// Ping evaluates a trivial expression; a crashed renderer or a dead Chrome
// fails it.
func (s *RodSession) Ping(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(`() => 1`)
	if err != nil {
		return fmt.Errorf("browser: ping: %w", err)
	}
	if res.Value.Int() != 1 {
		return fmt.Errorf("browser: ping: unexpected answer %v", res.Value)
	}
	return nil
}

func (s *RodSession) close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return nil
	}
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, err)
	}
	// Closing an incognito Browser disposes its browser context.
	if err := s.inc.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
