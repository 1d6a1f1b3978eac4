package probes

import (
	"context"
	"time"
)

// Repository port (durable Probe table plus the shared discovery marker).
// LastDiscovery returns the zero time when no discovery has run yet.
type Repository interface {
	Upsert(ctx context.Context, p *Probe) error
	Get(ctx context.Context, name string) (*Probe, error)
	List(ctx context.Context) ([]*Probe, error)
	SetOnline(ctx context.Context, name string, online bool) error
	LastDiscovery(ctx context.Context) (time.Time, error)
	SetLastDiscovery(ctx context.Context, at time.Time) error
}
