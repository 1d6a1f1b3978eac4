package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bryanwahyu/scanfleet/internal/application"
	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// Locker port: cross-process mutual exclusion for discovery. Running the
// queue listing concurrently from multiple worker processes is not safe.
type Locker interface {
	// Acquire blocks until the named lock is held and returns its release.
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// ActiveJobs is the slice of the job repository the registry needs: a probe
// that vanished from discovery keeps its online flag while jobs still run.
type ActiveJobs interface {
	CountRunningByProbe(ctx context.Context, probe string) (int, error)
}

const discoveryLock = "scanfleet.probe.discovery"

// Service is the probe registry: discovery cache plus durable Probe table.
type Service struct {
	Probes probes.Repository
	Bus    bus.Bus
	Lock   Locker
	Jobs   ActiveJobs
	Clock  application.Clock

	// TTL bounds cache freshness; MaxStale bounds how long the last good
	// cache may be served while the transport is unreachable.
	TTL      time.Duration
	MaxStale time.Duration

	mu          sync.Mutex
	seen        map[string]time.Time
	lastRefresh time.Time
}

// Register upserts the durable probe record and marks it online
// synchronously; it does not wait for the next cache refresh.
func (s *Service) Register(ctx context.Context, p *probes.Probe) error {
	if p.Name == "" {
		return domain.Validationf("probe name is required")
	}
	if bus.Reserved(p.Name) {
		return domain.Validationf("probe name %q is reserved", p.Name)
	}
	p.Online = true
	if err := s.Probes.Upsert(ctx, p); err != nil {
		return fmt.Errorf("register probe %s: %w", p.Name, err)
	}

	s.mu.Lock()
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	s.seen[p.Name] = s.Clock.Now()
	s.mu.Unlock()
	return nil
}

// List returns the names of probes currently online, refreshing the
// discovery cache first when it is older than the TTL.
func (s *Service) List(ctx context.Context) ([]string, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.seen))
	for name := range s.seen {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	return names, nil
}

// Resolve returns the ordered set of online probes applicable to the file,
// intersecting the live set with the mimetype pattern of each probe.
func (s *Service) Resolve(ctx context.Context, f *domain.File) ([]string, error) {
	online, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(online))
	for _, name := range online {
		live[name] = true
	}

	known, err := s.Probes.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range known {
		if live[p.Name] && p.Matches(f.Mimetype) {
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RefreshWithRetry performs the startup-critical initial discovery,
// retrying transport failures with capped exponential backoff.
func (s *Service) RefreshWithRetry(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	return backoff.Retry(func() error {
		err := s.refresh(ctx)
		if errors.Is(err, bus.ErrUnavailable) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// refresh replaces the cache wholesale from the transport's live queue
// list, at most once per TTL window across all processes.
func (s *Service) refresh(ctx context.Context) error {
	s.mu.Lock()
	fresh := s.freshLocked()
	s.mu.Unlock()
	if fresh {
		return nil
	}

	release, err := s.Lock.Acquire(ctx, discoveryLock)
	if err != nil {
		return fmt.Errorf("acquire discovery lock: %w", err)
	}
	defer release()

	// Another caller in this process may have refreshed while we waited.
	s.mu.Lock()
	if s.freshLocked() {
		s.mu.Unlock()
		return nil
	}
	last := s.lastRefresh
	s.mu.Unlock()

	// Another process may have run discovery while we waited; the durable
	// marker is only trustworthy while the lock is held.
	if stamp, merr := s.Probes.LastDiscovery(ctx); merr == nil &&
		!stamp.IsZero() && s.Clock.Now().Sub(stamp) <= s.TTL {
		return s.adoptDurable(ctx, stamp)
	}

	queues, err := s.Bus.Queues(ctx)
	if err != nil {
		if errors.Is(err, bus.ErrUnavailable) && !last.IsZero() {
			if age := s.Clock.Now().Sub(last); age <= s.MaxStale {
				log.Printf("probe discovery unavailable, serving cache age=%s", age)
				return nil
			}
		}
		return err
	}

	now := s.Clock.Now()
	next := make(map[string]time.Time)
	for _, q := range queues {
		if bus.Reserved(q) {
			continue
		}
		next[q] = now
	}

	s.mu.Lock()
	previous := s.seen
	s.seen = next
	s.lastRefresh = now
	s.mu.Unlock()

	s.markOffline(ctx, previous, next)
	for name := range next {
		if err := s.Probes.SetOnline(ctx, name, true); err != nil {
			log.Printf("probe %s: mark online: %v", name, err)
		}
	}
	if err := s.Probes.SetLastDiscovery(ctx, now); err != nil {
		log.Printf("record discovery time: %v", err)
	}
	return nil
}

// adoptDurable rebuilds the cache from the probe rows written by whichever
// process ran the discovery the marker records.
func (s *Service) adoptDurable(ctx context.Context, stamp time.Time) error {
	known, err := s.Probes.List(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]time.Time)
	for _, p := range known {
		if p.Online {
			next[p.Name] = stamp
		}
	}

	s.mu.Lock()
	s.seen = next
	s.lastRefresh = stamp
	s.mu.Unlock()
	return nil
}

// markOffline flips the durable online flag for probes that disappeared
// from discovery and have no active job referencing them.
func (s *Service) markOffline(ctx context.Context, previous, current map[string]time.Time) {
	for name := range previous {
		if _, still := current[name]; still {
			continue
		}
		running, err := s.Jobs.CountRunningByProbe(ctx, name)
		if err != nil {
			log.Printf("probe %s: count running jobs: %v", name, err)
			continue
		}
		if running > 0 {
			continue
		}
		if err := s.Probes.SetOnline(ctx, name, false); err != nil {
			log.Printf("probe %s: mark offline: %v", name, err)
		}
	}
}

// freshLocked is true only after a refresh has happened; a cache refreshed
// at the current clock instant is fresh, an untouched one never is.
func (s *Service) freshLocked() bool {
	return !s.lastRefresh.IsZero() && s.Clock.Now().Sub(s.lastRefresh) <= s.TTL
}
