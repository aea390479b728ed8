package store

import "errors"

var (
	// ErrNotFound is returned when a notification ID has no matching record.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalidSubscription is returned when a subscription is rejected
	// before any store mutation (e.g. missing endpoint).
	ErrInvalidSubscription = errors.New("invalid subscription data")
)
