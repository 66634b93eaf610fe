package site

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torscout/scout/internal/browser"
)

// loadPage navigates to rawURL, waits up to wait for ready to match and
// parses the rendered DOM. Every failure comes back as an *Error:
//   - an anti-bot page is BLOCKED whatever the status code;
//   - a ready selector that never matched while ctx is still alive is
//     LAYOUT_MISMATCH (markup drifted);
//   - ctx expiring is TIMEOUT.
func loadPage(ctx context.Context, s browser.Session, siteID, rawURL, ready string, wait time.Duration) (*goquery.Document, error) {
	if err := s.Navigate(ctx, rawURL); err != nil {
		if html, herr := s.HTML(ctx); herr == nil && isChallenge(html) {
			return nil, Errorf(KindBlocked, siteID, "anti-bot challenge at %s: %v", rawURL, err)
		}
		return nil, Wrap(siteID, err)
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	waitErr := s.WaitVisible(wctx, ready)
	cancel()

	if ctx.Err() != nil {
		return nil, &Error{Kind: KindTimeout, Site: siteID, Err: ctx.Err()}
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return nil, Wrap(siteID, err)
	}
	if isChallenge(html) {
		return nil, Errorf(KindBlocked, siteID, "anti-bot challenge at %s", rawURL)
	}
	if waitErr != nil {
		if errors.Is(waitErr, browser.ErrElementNotFound) {
			return nil, Errorf(KindLayoutMismatch, siteID, "no element matches %q at %s", ready, rawURL)
		}
		return nil, Wrap(siteID, waitErr)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, Errorf(KindLayoutMismatch, siteID, "parse %s: %v", rawURL, err)
	}
	return doc, nil
}

// cellText returns the collapsed text of sel.
func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
