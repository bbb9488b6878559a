package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateBaseURL normalizes and validates a custom provider base URL.
// http:// schemes are rejected unless allowInsecure is set; anything
// other than http/https, or a URL without a host, is always rejected.
// The validation runs both at remote setup and again at provider
// construction.
func ValidateBaseURL(raw string, allowInsecure bool) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("provider URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL %q: %w", raw, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecure {
			return nil, fmt.Errorf("insecure provider URL %q: http is refused unless security.allow_insecure_http is enabled", raw)
		}
	default:
		return nil, fmt.Errorf("invalid provider URL %q: scheme must be https", raw)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid provider URL %q: missing host", raw)
	}
	if u.User != nil {
		return nil, fmt.Errorf("invalid provider URL %q: embedded credentials are refused", raw)
	}

	// Normalize: drop trailing slash, query, fragment.
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
