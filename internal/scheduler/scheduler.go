// Package scheduler abstracts the durable-execution substrate that parks a
// delivery until its target time and fires it exactly once.
//
// Two implementations satisfy Scheduler: the River-backed queue manager
// (internal/queue), which persists the parked unit in Postgres and survives
// process restarts, and Memory, an in-process orchestrator for
// single-process deployments and tests that is re-armed from the schedule
// store on startup.
package scheduler

import (
	"context"
	"encoding/json"
	"time"
)

// Input carries everything a delivery needs at fire time. The payload stays
// raw JSON so the substrate can persist it without caring about its shape.
type Input struct {
	ScheduleID string          `json:"scheduleId"`
	Recipient  string          `json:"recipient"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	TargetTime time.Time       `json:"targetTime"`
}

// Deliverer is the unit of work a scheduler invokes when a parked delivery
// reaches its target time.
type Deliverer interface {
	Deliver(ctx context.Context, in Input) error
}

// Scheduler starts and cancels suspended delivery units.
type Scheduler interface {
	// Start parks a delivery until in.TargetTime and returns the stable
	// handle that addresses the suspended unit. A target time at or
	// before now fires immediately.
	Start(ctx context.Context, in Input) (string, error)

	// Cancel signals the suspended unit to terminate without firing.
	// Cancelling a unit that has already fired, finished, or does not
	// exist is a no-op; whether the business record becomes cancelled is
	// decided by the caller against the record's current status, never
	// here.
	Cancel(ctx context.Context, handle string) error
}
