package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"nyaa.si", "thepiratebay.org", "my_mirror-2"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", "x/y", "é", strings.Repeat("a", MaxIdentifier+1)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestCheckBaseURL(t *testing.T) {
	for _, ok := range []string{"https://nyaa.si", "http://127.0.0.1:8080", "https://mirror.test/tpb"} {
		if err := CheckBaseURL(ok); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	if err := CheckBaseURL("ftp://nyaa.si"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("ftp: got %v", err)
	}
	for _, bad := range []string{"nyaa.si", "https://", "https://nyaa.si/?q=x", "https://nyaa.si/#top"} {
		if err := CheckBaseURL(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("123456"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: %v", err)
	}
}
