// Package queue holds deep-work items: requests the budget arbiter routed
// away from the synchronous path. Items are durable, leased by workers, and
// carry the decision that queued them so the eventual answer can cite it.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no item matches the query.
var ErrNotFound = errors.New("queue: item not found")

// ErrLeaseHeld is returned when another worker holds a live lease.
var ErrLeaseHeld = errors.New("queue: lease held by another worker")

// ErrEmpty is returned by LeaseNext when nothing is queued.
var ErrEmpty = errors.New("queue: no queued items")

// State is the lifecycle of a deep-work item.
type State string

const (
	StateQueued    State = "QUEUED"
	StateLeased    State = "LEASED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Item is one queued deep-work request.
type Item struct {
	ID         string    `json:"id"`
	DecisionID string    `json:"decision_id"`
	Question   string    `json:"question"`
	Reason     string    `json:"reason"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Lease metadata for worker coordination.
	LeasedBy    string    `json:"leased_by,omitempty"`
	LeasedUntil time.Time `json:"leased_until,omitempty"`
	Attempts    int       `json:"attempts"`
}

// Queue is the durable interface for deep-work coordination.
type Queue interface {
	// Enqueue persists a new item in state QUEUED.
	Enqueue(ctx context.Context, item Item) error

	// Get retrieves an item by ID.
	Get(ctx context.Context, id string) (Item, error)

	// Lease locks a specific item for work. Re-leasing by the same
	// worker extends the lease; a live lease from another worker fails.
	Lease(ctx context.Context, id, workerID string, duration time.Duration) (Item, error)

	// LeaseNext locks the oldest queued item, or returns ErrEmpty.
	LeaseNext(ctx context.Context, workerID string, duration time.Duration) (Item, error)

	// SetState transitions the item to a new state.
	SetState(ctx context.Context, id string, state State) error

	// ListQueued retrieves items still waiting for a worker.
	ListQueued(ctx context.Context) ([]Item, error)

	// ListAll retrieves every item for observability.
	ListAll(ctx context.Context) ([]Item, error)
}
