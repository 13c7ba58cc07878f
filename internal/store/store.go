// Package store persists schedule records: one entry per deferred delivery
// request, with a three-state lifecycle (scheduled, then sent or cancelled).
//
// Two implementations exist. FileStore keeps the collection in a single JSON
// file with all writers serialized behind a lock, which is the whole
// consistency story for single-process deployments. Postgres backs the
// collection with a table and enforces transitions with a compare-and-set
// UPDATE, so concurrent writers to the same record cannot lose updates.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a schedule id does not exist.
	ErrNotFound = errors.New("store: schedule not found")

	// ErrAlreadyExists is returned when creating a record whose schedule
	// id is already present.
	ErrAlreadyExists = errors.New("store: schedule already exists")

	// ErrIllegalTransition is returned when a status transition is
	// attempted from a state other than the expected one. The wrapped
	// message carries the record's current status.
	ErrIllegalTransition = errors.New("store: illegal status transition")
)

// Store is the persistence contract for schedule records.
//
// Transition is the only mutation of record status: it moves a record from
// the expected current status to the next one atomically, stamping the
// matching terminal timestamp. Callers that need "write cancelled unless the
// record was already sent" get that check for free.
type Store interface {
	// Create persists a new record. The record must carry a unique
	// ScheduleID and StatusScheduled.
	Create(ctx context.Context, rec Record) error

	// Get returns the record with the given schedule id.
	Get(ctx context.Context, scheduleID string) (Record, error)

	// List returns all records in the collection, in no particular order.
	List(ctx context.Context) ([]Record, error)

	// SetHandle stores the orchestrator handle on an existing record.
	// The handle is only known after the suspended unit has been started.
	SetHandle(ctx context.Context, scheduleID, handle string) error

	// Transition atomically moves a record from status `from` to status
	// `to`, setting SentAt or CancelledAt to `at` for terminal targets.
	// It returns ErrNotFound for unknown ids and ErrIllegalTransition
	// (wrapping the current status) when the record is not in `from`.
	// The updated record is returned on success.
	Transition(ctx context.Context, scheduleID string, from, to Status, at time.Time) (Record, error)
}
