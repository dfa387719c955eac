package rules

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrCodeTaken    = errors.New("event code already taken")
	ErrEventExpired = errors.New("event has expired")
	ErrEventFull    = errors.New("event has reached maximum number of photos")
	ErrUpstream     = errors.New("image host failure")

	// ErrQuotaExceeded matches both quota kinds below; compare against the
	// specific sentinel to tell them apart.
	ErrQuotaExceeded = errors.New("quota exceeded")

	ErrOwnerEventQuota     = fmt.Errorf("%w: event limit reached for this account", ErrQuotaExceeded)
	ErrDeviceQuotaExceeded = fmt.Errorf("%w: you have reached the maximum number of photos allowed for this event", ErrQuotaExceeded)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
