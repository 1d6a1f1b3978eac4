package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/scanfleet/internal/application"
	"github.com/bryanwahyu/scanfleet/internal/domain/users"
)

// Unlimited is the sentinel returned when quota enforcement is disabled.
const Unlimited = -1

// JobCounter is the slice of the job repository the tracker needs.
type JobCounter interface {
	CountByUserSince(ctx context.Context, user string, since time.Time) (int, error)
}

// Tracker computes the remaining dispatch budget for a submitter over a
// rolling time window. The dispatcher consults it once per batch and
// decrements a local view; the persisted count is authoritative only at
// the next dispatch.
type Tracker struct {
	Users  users.Repository
	Jobs   JobCounter
	Clock  application.Clock
	Window time.Duration // trailing window, 24h by default
}

// Remaining returns the submitter's remaining job budget, or Unlimited.
func (t *Tracker) Remaining(ctx context.Context, userKey string) (int, error) {
	u, err := t.Users.Get(ctx, userKey)
	if err != nil {
		return 0, fmt.Errorf("quota: load user %s: %w", userKey, err)
	}
	if u.Unlimited() {
		return Unlimited, nil
	}

	since := t.Clock.Now().Add(-t.Window)
	used, err := t.Jobs.CountByUserSince(ctx, userKey, since)
	if err != nil {
		return 0, fmt.Errorf("quota: count jobs for %s: %w", userKey, err)
	}

	remaining := u.Quota - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
