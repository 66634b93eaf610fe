package site

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hazyhaar/torscout/scout/internal/browser"
)

// Classify maps a raw navigation or extraction error to a failure kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	if errors.Is(err, browser.ErrElementNotFound) {
		return KindLayoutMismatch
	}

	var se *browser.StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}

	msg := strings.ToLower(err.Error())
	if isTimeoutMessage(msg) {
		return KindTimeout
	}
	return KindNetwork
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusTooManyRequests, code == 451:
		return KindBlocked
	case code == http.StatusNotFound, code == http.StatusGone:
		// The search endpoint moved: the site changed under us.
		return KindLayoutMismatch
	default:
		return KindNetwork
	}
}

func isTimeoutMessage(msg string) bool {
	for _, p := range []string{
		"deadline exceeded",
		"timeout",
		"timed out",
		"net::err_timed_out",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// challengeMarkers betray an anti-bot interstitial instead of results.
var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-platform",
	"cf-chl-",
	"<title>just a moment...</title>",
	"attention required! | cloudflare",
	"ddos-guard",
	"g-recaptcha",
	"h-captcha",
	"id=\"captcha",
	"verify you are human",
}

// isChallenge reports whether html is an anti-bot or captcha page.
func isChallenge(html string) bool {
	if html == "" {
		return false
	}
	lower := strings.ToLower(html)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
