package bus

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the broker cannot be reached. Callers on
// startup-critical paths retry with capped backoff; the probe registry
// serves its last good cache instead of raising.
var ErrUnavailable = errors.New("message transport unavailable")

// ErrTimeout maps a synchronous query expiring to a distinct condition.
var ErrTimeout = errors.New("request timed out")

// Delivery is one message handed to a subscriber. Handle identifies the
// underlying publication for revocation; Attempts counts deliveries
// (the transport is at-least-once, handlers must stay idempotent).
type Delivery struct {
	Handle   string
	Queue    string
	Attempts int
	Msg      Message
}

// Handler consumes one delivery. A returned error requeues the delivery
// per the transport's bounded redelivery policy.
type Handler func(ctx context.Context, d Delivery) error

// Bus is the message transport port. Topic = probe name is a routing
// convention: one queue per probe plus the reserved control queues.
type Bus interface {
	// Publish emits one message and returns its delivery handle.
	Publish(ctx context.Context, queue string, msg Message) (string, error)
	// Subscribe registers a consumer for a queue until ctx is done.
	Subscribe(ctx context.Context, queue string, h Handler) error
	// Queues lists queues that currently have a live consumer.
	Queues(ctx context.Context) ([]string, error)
	// Revoke drops not-yet-delivered publications by handle.
	Revoke(ctx context.Context, handles []string) error
}
