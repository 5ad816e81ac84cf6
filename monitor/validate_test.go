package monitor

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	good := []string{"ops@acme.test", "first.last+pricing@sub.acme.io"}
	for _, e := range good {
		if _, err := validateEmail(e); err != nil {
			t.Errorf("validateEmail(%q): %v", e, err)
		}
	}
	bad := []string{
		"",
		"plain",
		"@acme.test",
		"ops@localhost",
		"Ops <ops@acme.test>",
		"ops@acme.test, other@acme.test",
		strings.Repeat("a", 250) + "@acme.test",
	}
	for _, e := range bad {
		if _, err := validateEmail(e); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("validateEmail(%q): got %v", e, err)
		}
	}
}
