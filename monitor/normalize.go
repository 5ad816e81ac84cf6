package monitor

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a subscription URL: lowercases scheme and
// host and removes the fragment. The result is the URL that gets fetched,
// so path, trailing slash and the raw query are kept exactly as given.
// Only http and https are accepted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidInput)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidInput)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidInput)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String(), nil
}
