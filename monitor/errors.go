package monitor

import "errors"

// ErrInvalidInput is returned when a subscription fails validation.
var ErrInvalidInput = errors.New("monitor: invalid input")

// ErrNotFound is returned when a run or target does not exist.
var ErrNotFound = errors.New("monitor: not found")
