package probe_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	probesdomain "github.com/bryanwahyu/scanfleet/internal/domain/probes"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/infra/bus/inmem"
	"github.com/bryanwahyu/scanfleet/internal/probe"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (s *memBlobs) key(ns, handle string) string { return ns + "/" + handle }

func (s *memBlobs) Upload(_ context.Context, ns, localPath, handle string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[s.key(ns, handle)] = data
	s.mu.Unlock()
	return nil
}

func (s *memBlobs) Download(_ context.Context, ns, handle string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(ns, handle)]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (s *memBlobs) Stat(_ context.Context, ns, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[s.key(ns, handle)]; !ok {
		return errors.New("no such object")
	}
	return nil
}

func (s *memBlobs) RemovePrefix(_ context.Context, ns, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, s.key(ns, prefix)) {
			delete(s.objects, key)
		}
	}
	return nil
}

func awaitDelivery(t *testing.T, ch <-chan bus.Delivery) bus.Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
		return bus.Delivery{}
	}
}

func TestWorkerReportsResult(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	blobs := newMemBlobs()
	ctx := context.Background()

	registrations := make(chan bus.Delivery, 1)
	require.NoError(t, b.Subscribe(ctx, bus.QueueRegister, func(_ context.Context, d bus.Delivery) error {
		registrations <- d
		return nil
	}))
	results := make(chan bus.Delivery, 1)
	require.NoError(t, b.Subscribe(ctx, bus.QueueResults, func(_ context.Context, d bus.Delivery) error {
		results <- d
		return nil
	}))

	w := &probe.Worker{
		Probe: probesdomain.Probe{
			Name:        "wordcount",
			DisplayName: "Word Count",
			Category:    probesdomain.CategoryMetadata,
		},
		Bus:   b,
		Blobs: blobs,
		Analyze: func(_ context.Context, data []byte) (*probe.Analysis, error) {
			require.Equal(t, []byte("abc"), data)
			return &probe.Analysis{Doc: `{"words":1}`}, nil
		},
	}
	require.NoError(t, w.Start(ctx))

	reg := awaitDelivery(t, registrations)
	assert.Equal(t, bus.OpRegisterProbe, reg.Msg.Op)
	name, err := reg.Msg.StringArg(0)
	require.NoError(t, err)
	assert.Equal(t, "wordcount", name)

	// Stage the blob and dispatch a work item the way the orchestrator does.
	blobs.mu.Lock()
	blobs.objects["ns-alice/s1/f1"] = []byte("abc")
	blobs.mu.Unlock()

	ref := domain.FileRef{Scan: "s1", File: "f1", Blob: "s1/f1"}
	msg, err := bus.New(bus.OpProbeScan, "ns-alice", ref)
	require.NoError(t, err)
	_, err = b.Publish(ctx, "wordcount", msg)
	require.NoError(t, err)

	res := awaitDelivery(t, results)
	assert.Equal(t, bus.OpScanResult, res.Msg.Op)

	var gotRef domain.FileRef
	require.NoError(t, res.Msg.Arg(0, &gotRef))
	assert.Equal(t, ref, gotRef)

	probeName, err := res.Msg.StringArg(1)
	require.NoError(t, err)
	assert.Equal(t, "wordcount", probeName)

	var result domain.Result
	require.NoError(t, res.Msg.Arg(2, &result))
	assert.Zero(t, result.StatusCode)
	assert.NotEmpty(t, result.Doc)
}

func TestWorkerReportsErrorWhenBlobMissing(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	results := make(chan bus.Delivery, 1)
	require.NoError(t, b.Subscribe(ctx, bus.QueueResults, func(_ context.Context, d bus.Delivery) error {
		results <- d
		return nil
	}))

	w := &probe.Worker{
		Probe: probesdomain.Probe{Name: "wordcount"},
		Bus:   b,
		Blobs: newMemBlobs(),
		Analyze: func(_ context.Context, _ []byte) (*probe.Analysis, error) {
			t.Fatal("analyze must not run without content")
			return nil, nil
		},
	}
	require.NoError(t, w.Start(ctx))

	msg, err := bus.New(bus.OpProbeScan, "ns-alice", domain.FileRef{Scan: "s1", File: "gone", Blob: "s1/gone"})
	require.NoError(t, err)
	_, err = b.Publish(ctx, "wordcount", msg)
	require.NoError(t, err)

	res := awaitDelivery(t, results)
	assert.Equal(t, bus.OpScanResultError, res.Msg.Op)

	var result domain.Result
	require.NoError(t, res.Msg.Arg(2, &result))
	assert.Equal(t, 1, result.StatusCode)
}

func TestWorkerRejectsReservedName(t *testing.T) {
	t.Parallel()
	w := &probe.Worker{
		Probe: probesdomain.Probe{Name: bus.QueueControl},
		Bus:   inmem.New(),
		Blobs: newMemBlobs(),
	}
	require.Error(t, w.Start(context.Background()))
}
