package service

import "errors"

var (
	// ErrInvalidRecipient indicates a malformed recipient address.
	ErrInvalidRecipient = errors.New("service: invalid recipient address")

	// ErrEmptySubject indicates a missing subject line.
	ErrEmptySubject = errors.New("service: subject is required")

	// ErrEmptyDocument indicates a block tree with no content.
	ErrEmptyDocument = errors.New("service: document has no content")

	// ErrPastTargetTime indicates a target time that is not strictly in
	// the future.
	ErrPastTargetTime = errors.New("service: target time must be in the future")

	// ErrNotCancellable indicates a cancel on a record that already
	// reached a terminal status. The wrapped message carries the current
	// status.
	ErrNotCancellable = errors.New("service: schedule is not cancellable")
)
