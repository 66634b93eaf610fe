package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/torscout/horosafe"
	"github.com/hazyhaar/torscout/idgen"
)

// maxBody caps a result page read. Listing pages are well under 2MB.
const maxBody = 10 << 20

// HTTPConfig configures plain HTTP sessions (stealth level 0).
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper // nil = http.DefaultTransport
	Logger    *slog.Logger
}

// HTTPProvisioner hands out HTTPSessions. No browser, no JS: fine for sites
// that render their listing server-side.
type HTTPProvisioner struct {
	cfg HTTPConfig
}

// NewHTTPProvisioner creates a provisioner with sensible defaults.
func NewHTTPProvisioner(cfg HTTPConfig) *HTTPProvisioner {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPProvisioner{cfg: cfg}
}

func (p *HTTPProvisioner) CreateSession(_ context.Context) (Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("browser: cookie jar: %w", err)
	}
	s := &HTTPSession{
		id:      idgen.Session(),
		created: time.Now(),
		ua:      p.cfg.UserAgent,
		client: &http.Client{
			Timeout:   p.cfg.Timeout,
			Transport: p.cfg.Transport,
			Jar:       jar,
		},
	}
	p.cfg.Logger.Debug("browser: http session created", "session", s.id)
	return s, nil
}

func (p *HTTPProvisioner) DestroySession(s Session) error {
	hs, ok := s.(*HTTPSession)
	if !ok {
		return fmt.Errorf("browser: foreign session type %T", s)
	}
	hs.mu.Lock()
	hs.closed = true
	hs.body = ""
	hs.mu.Unlock()
	hs.client.CloseIdleConnections()
	return nil
}

// HTTPSession fetches documents with a private cookie jar. WaitVisible checks
// the last fetched document once: static HTML does not change.
type HTTPSession struct {
	id      string
	created time.Time
	ua      string
	client  *http.Client

	mu     sync.Mutex
	body   string
	closed bool
}

func (s *HTTPSession) ID() string           { return s.id }
func (s *HTTPSession) CreatedAt() time.Time { return s.created }

func (s *HTTPSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("browser: new request: %w", err)
	}
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("browser: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, maxBody)
	if err != nil {
		return fmt.Errorf("browser: read body: %w", err)
	}

	s.mu.Lock()
	s.body = string(body)
	s.mu.Unlock()

	if resp.StatusCode >= 400 {
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return nil
}

func (s *HTTPSession) WaitVisible(_ context.Context, selector string) error {
	html, err := s.HTML(context.Background())
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("browser: parse: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (s *HTTPSession) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.body, nil
}

// Reset swaps in an empty cookie jar and forgets the last document.
func (s *HTTPSession) Reset(_ context.Context) error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("browser: cookie jar: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.client.Jar = jar
	s.body = ""
	return nil
}

func (s *HTTPSession) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
