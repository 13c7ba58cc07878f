package store

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a schedule record.
type Status string

const (
	// StatusScheduled is the initial state: the delivery is parked and
	// waiting for its target time.
	StatusScheduled Status = "scheduled"
	// StatusSent is terminal: the delivery activity transmitted the
	// compiled document.
	StatusSent Status = "sent"
	// StatusCancelled is terminal: the request was cancelled before the
	// orchestrator fired.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusSent, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// Record is one deferred delivery request. ScheduleID, Recipient, Subject,
// Payload, and TargetTime are immutable after creation; only the status and
// its terminal timestamp change, and only through Transition.
type Record struct {
	ScheduleID  string          `json:"scheduleId"`
	Handle      string          `json:"orchestratorHandle"`
	Recipient   string          `json:"recipient"`
	Subject     string          `json:"subject"`
	Payload     json.RawMessage `json:"payload"`
	TargetTime  time.Time       `json:"targetTime"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	SentAt      *time.Time      `json:"sentAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
}
