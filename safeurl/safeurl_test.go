package safeurl

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://93.184.216.34/pricing", nil},
		{"http://8.8.8.8", nil},
		{"ftp://example.com/file", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"https:///nohost", ErrNoHost},
		{"http://127.0.0.1:8080/", ErrSSRF},
		{"http://10.1.2.3/", ErrSSRF},
		{"http://192.168.1.1/", ErrSSRF},
		{"http://[::1]/", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://localhost:3000/", ErrSSRF},
		{"http://api.localhost/", ErrSSRF},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"127.0.0.1", "10.0.0.1", "172.16.5.4", "192.168.0.10", "100.64.0.1", "0.0.0.0", "fd00::1", "::1", "fe80::1"}
	public := []string{"8.8.8.8", "93.184.216.34", "2606:4700::1111"}
	for _, s := range private {
		if !IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = false, want true", s)
		}
	}
	for _, s := range public {
		if IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = true, want false", s)
		}
	}
}

// WHAT: a redirect into the private network is refused.
// WHY: a public pricing URL must not bounce the fetcher onto internal hosts.
func TestCheckRedirect(t *testing.T) {
	target, _ := url.Parse("http://10.0.0.5/admin")
	req := &http.Request{URL: target}
	if err := CheckRedirect(req.WithContext(t.Context()), nil); !errors.Is(err, ErrSSRF) {
		t.Fatalf("CheckRedirect to private = %v, want ErrSSRF", err)
	}

	public, _ := url.Parse("https://8.8.8.8/")
	via := make([]*http.Request, MaxRedirects)
	if err := CheckRedirect((&http.Request{URL: public}).WithContext(t.Context()), via); err == nil {
		t.Fatal("expected error past MaxRedirects")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader(strings.Repeat("x", 11)), 10); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/archive", "abc/def.md", false},
		{"/data/archive", "../etc/passwd", true},
		{"/data/archive", "abc/../../outside", true},
		{"/data/archive", "0192f1a2-7b7c.md", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}
