package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Request publishes msg and waits for one reply on an ephemeral queue.
// Expiry surfaces as ErrTimeout, never as an orchestration error. This is
// the only synchronous wait in the system, used by caller-facing status
// and probe-list queries.
func Request(ctx context.Context, b Bus, queue string, msg Message, timeout time.Duration) (Message, error) {
	replyQueue := ReplyPrefix + uuid.New().String()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan Message, 1)
	err := b.Subscribe(ctx, replyQueue, func(_ context.Context, d Delivery) error {
		select {
		case replies <- d.Msg:
		default:
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	msg.ReplyTo = replyQueue
	if _, err := b.Publish(ctx, queue, msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
