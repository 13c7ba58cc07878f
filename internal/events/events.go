// Package events publishes schedule lifecycle events for downstream
// consumers (audit trails, dashboards). Publishing is best-effort: a failed
// publish is logged by the caller and never blocks the delivery pipeline.
package events

import (
	"context"
	"time"
)

// Event types emitted over the schedule lifecycle.
const (
	TypeScheduled = "delivery.scheduled"
	TypeSent      = "delivery.sent"
	TypeCancelled = "delivery.cancelled"
)

// Event describes one schedule lifecycle change.
type Event struct {
	Type       string    `json:"type"`
	ScheduleID string    `json:"scheduleId"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	TargetTime time.Time `json:"targetTime"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards all events. Used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }
