package util

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseMediaURL parses raw as an absolute http(s) URL. A missing scheme is
// assumed to be https.
func ParseMediaURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		if u2, e2 := url.Parse("https://" + raw); e2 == nil {
			u = u2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") && !strings.HasPrefix(u.Host, "localhost") && !strings.HasPrefix(u.Host, "127.") {
		return nil, fmt.Errorf("invalid URL host in %q", raw)
	}
	return u, nil
}
