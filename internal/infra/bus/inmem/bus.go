// Package inmem is the channel-backed message transport used by the
// single-node deployment and by tests. Delivery is at-least-once: a
// handler error requeues the message up to a bounded attempt count, so
// handlers must stay idempotent.
package inmem

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	busdomain "github.com/bryanwahyu/scanfleet/internal/domain/bus"
)

const (
	queueDepth  = 256
	maxAttempts = 3
)

type queue struct {
	ch   chan busdomain.Delivery
	subs int
}

// Bus implements the transport port with one buffered channel per queue.
type Bus struct {
	mu      sync.Mutex
	queues  map[string]*queue
	revoked map[string]struct{}
}

func New() *Bus {
	return &Bus{
		queues:  make(map[string]*queue),
		revoked: make(map[string]struct{}),
	}
}

func (b *Bus) queueFor(name string) *queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = &queue{ch: make(chan busdomain.Delivery, queueDepth)}
		b.queues[name] = q
	}
	return q
}

// Publish enqueues one message and returns its delivery handle.
func (b *Bus) Publish(ctx context.Context, name string, msg busdomain.Message) (string, error) {
	q := b.queueFor(name)
	d := busdomain.Delivery{
		Handle: uuid.New().String(),
		Queue:  name,
		Msg:    msg,
	}
	select {
	case q.ch <- d:
		return d.Handle, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe registers a consumer; the consumer loop runs until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, name string, h busdomain.Handler) error {
	q := b.queueFor(name)
	b.mu.Lock()
	q.subs++
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			q.subs--
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-q.ch:
				if b.isRevoked(d.Handle) {
					continue
				}
				d.Attempts++
				if err := h(ctx, d); err != nil {
					b.redeliver(q, d, err)
				}
			}
		}
	}()
	return nil
}

func (b *Bus) redeliver(q *queue, d busdomain.Delivery, cause error) {
	if d.Attempts >= maxAttempts {
		log.Printf("bus: dropping %s on %s after %d attempts: %v", d.Msg.Op, d.Queue, d.Attempts, cause)
		return
	}
	select {
	case q.ch <- d:
	default:
		log.Printf("bus: queue %s full, dropping redelivery of %s", d.Queue, d.Msg.Op)
	}
}

// Queues lists queues that currently have a live consumer.
func (b *Bus) Queues(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for name, q := range b.queues {
		if q.subs > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Revoke drops not-yet-delivered publications by handle.
func (b *Bus) Revoke(_ context.Context, handles []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range handles {
		b.revoked[h] = struct{}{}
	}
	return nil
}

func (b *Bus) isRevoked(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.revoked[handle]
	return ok
}
