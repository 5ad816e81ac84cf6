// Package idgen generates the identifiers used by pricewatch: target ids,
// run ids and archive file names.
//
// Every constructor that needs ids accepts a Generator so tests can pin
// deterministic values.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so targets and runs list in creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID
// (e.g. "run_" for run log entries).
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator yielding prefix-1, prefix-2, ... Not safe
// for concurrent use; meant for tests.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
