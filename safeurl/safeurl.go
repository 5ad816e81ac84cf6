// Package safeurl guards outbound fetches and local writes driven by
// user-supplied input: URL scheme and SSRF checks, redirect policing,
// bounded body reads and path traversal rejection.
package safeurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxRedirects bounds the redirect chain followed by CheckRedirect.
const MaxRedirects = 10

var (
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("safeurl: URL targets a private or loopback address")

	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("safeurl: only http and https schemes are allowed")

	// ErrNoHost is returned when a URL has no hostname.
	ErrNoHost = errors.New("safeurl: URL has no host")

	// ErrPathTraversal is returned when a derived path escapes its base.
	ErrPathTraversal = errors.New("safeurl: path traversal detected")

	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("safeurl: body exceeds limit")
)

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"fc00::/7",
	"::1/128",
)

func mustCIDRs(specs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(specs))
	for _, s := range specs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// CheckScheme verifies that rawURL parses, uses http or https and names a
// host. It does no DNS resolution.
func CheckScheme(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("safeurl: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return nil, ErrNoHost
	}
	return u, nil
}

// ValidateURL checks the scheme and host of rawURL and rejects hosts that
// are, or resolve to, private or loopback addresses.
func ValidateURL(rawURL string) error {
	return ValidateURLContext(context.Background(), rawURL)
}

// ValidateURLContext is ValidateURL with a context bounding DNS resolution.
func ValidateURLContext(ctx context.Context, rawURL string) error {
	u, err := CheckScheme(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrSSRF
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		// Unresolvable now does not mean unsafe; the fetch fails later anyway.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// CheckRedirect is an http.Client.CheckRedirect that re-validates every hop.
func CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("safeurl: stopped after %d redirects", MaxRedirects)
	}
	return ValidateURLContext(req.Context(), req.URL.String())
}

// IsPrivateIP reports whether ip is loopback, link-local, unspecified or in
// a private range.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// SafePath joins base and name and rejects results that escape base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, filepath.Clean("/"+name))
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}
