// CLAUDE:SUMMARY Input guards for operator-supplied site config and bounded reads of remote pages.
// Package horosafe holds small guards applied to values that come from
// configuration or from remote sites before torscout trusts them.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme rejects anything but http and https.
	ErrUnsafeScheme = errors.New("horosafe: only http and https URLs are allowed")

	// ErrTooLarge is returned by LimitedReadAll when the cap is exceeded.
	ErrTooLarge = errors.New("horosafe: body exceeds limit")
)

// MaxIdentifier bounds identifiers such as site ids.
const MaxIdentifier = 128

// ValidateIdentifier accepts non-empty ids made of letters, digits and
// "_-.". Site ids are usually host names, so dots are allowed.
func ValidateIdentifier(s string) error {
	if s == "" {
		return errors.New("horosafe: empty identifier")
	}
	if len(s) > MaxIdentifier {
		return fmt.Errorf("horosafe: identifier longer than %d bytes", MaxIdentifier)
	}
	for _, r := range s {
		if !identRune(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier %q", r, s)
		}
	}
	return nil
}

func identRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
		r == '_' || r == '-' || r == '.'
}

// CheckBaseURL requires an absolute http(s) URL with a host and no query or
// fragment, the shape every site adapter appends its search path to.
func CheckBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("horosafe: parse %q: %w", raw, err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("%w: %q", ErrUnsafeScheme, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("horosafe: %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("horosafe: %q must not carry a query or fragment", raw)
	}
	return nil
}

// LimitedReadAll reads r up to max bytes and fails with ErrTooLarge beyond.
func LimitedReadAll(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, max)
	}
	return data, nil
}
