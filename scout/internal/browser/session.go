// Package browser provisions isolated browsing sessions for site adapters:
// Rod incognito contexts on a managed Chrome, or plain HTTP sessions with
// their own cookie jar when no browser is wanted.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrElementNotFound is returned by WaitVisible when the selector did not
// match before the wait context ended.
var ErrElementNotFound = errors.New("browser: element not found")

// ErrSessionClosed is returned by any call on a destroyed session.
var ErrSessionClosed = errors.New("browser: session closed")

// StatusError reports a non-2xx HTTP answer to a navigation.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("browser: %s answered %d", e.URL, e.Code)
}

// Session is one isolated browsing context. A session is used by a single
// goroutine at a time; the pool guarantees that.
type Session interface {
	ID() string
	CreatedAt() time.Time

	// Navigate loads rawURL and waits for the load event.
	Navigate(ctx context.Context, rawURL string) error
	// WaitVisible blocks until selector matches an element in the current
	// document. A CSS selector group ("a, b") waits for whichever comes first.
	WaitVisible(ctx context.Context, selector string) error
	// HTML returns the current document as serialised outer HTML.
	HTML(ctx context.Context) (string, error)

	// Reset clears cookies, storage and cache so the next borrower starts clean.
	Reset(ctx context.Context) error
	// Ping is the health probe: it fails when the underlying context crashed
	// or stopped answering.
	Ping(ctx context.Context) error
}

// Provisioner creates and destroys sessions. It owns the process-level
// lifecycle of whatever runs them.
type Provisioner interface {
	CreateSession(ctx context.Context) (Session, error)
	DestroySession(s Session) error
}
