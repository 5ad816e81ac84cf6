package monitor

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
)

const (
	maxEmailLen = 254
	maxURLLen   = 4096
)

// validateEmail accepts a bare address ("a@b.c"), not a display-name form.
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(email) > maxEmailLen {
		return "", fmt.Errorf("%w: email exceeds %d characters", ErrInvalidInput, maxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	at := strings.LastIndexByte(email, '@')
	if !strings.Contains(email[at+1:], ".") {
		return "", fmt.Errorf("%w: email domain must be qualified", ErrInvalidInput)
	}
	return email, nil
}

// validateURL normalizes raw and runs the SSRF check.
func (s *Service) validateURL(ctx context.Context, raw string) (string, error) {
	if len(raw) > maxURLLen {
		return "", fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	u, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	if err := s.urlValidator(ctx, u); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return u, nil
}
