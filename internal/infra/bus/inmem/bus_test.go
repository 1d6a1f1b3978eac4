package inmem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busdomain "github.com/bryanwahyu/scanfleet/internal/domain/bus"
	"github.com/bryanwahyu/scanfleet/internal/infra/bus/inmem"
)

func mustMsg(t *testing.T, op string, args ...any) busdomain.Message {
	t.Helper()
	m, err := busdomain.New(op, args...)
	require.NoError(t, err)
	return m
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	got := make(chan busdomain.Delivery, 1)
	require.NoError(t, b.Subscribe(ctx, "clamav", func(_ context.Context, d busdomain.Delivery) error {
		got <- d
		return nil
	}))

	handle, err := b.Publish(ctx, "clamav", mustMsg(t, "probe_scan", "ns", "payload"))
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	select {
	case d := <-got:
		assert.Equal(t, handle, d.Handle)
		assert.Equal(t, "clamav", d.Queue)
		assert.Equal(t, 1, d.Attempts)
		assert.Equal(t, "probe_scan", d.Msg.Op)
		s, err := d.Msg.StringArg(0)
		require.NoError(t, err)
		assert.Equal(t, "ns", s)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
	}
}

func TestQueuesListsOnlyLiveConsumers(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	// Publishing creates the queue, but without a consumer it must not
	// show up in discovery.
	_, err := b.Publish(ctx, "orphan", mustMsg(t, "probe_scan"))
	require.NoError(t, err)

	require.NoError(t, b.Subscribe(ctx, "clamav", func(context.Context, busdomain.Delivery) error { return nil }))
	require.NoError(t, b.Subscribe(ctx, "exif", func(context.Context, busdomain.Delivery) error { return nil }))

	queues, err := b.Queues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"clamav", "exif"}, queues)
}

func TestRevokedDeliveryIsSkipped(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	handle, err := b.Publish(ctx, "slow", mustMsg(t, "probe_scan", "first"))
	require.NoError(t, err)
	require.NoError(t, b.Revoke(ctx, []string{handle}))

	got := make(chan busdomain.Delivery, 2)
	require.NoError(t, b.Subscribe(ctx, "slow", func(_ context.Context, d busdomain.Delivery) error {
		got <- d
		return nil
	}))

	// A later publication still flows; the revoked one never surfaces.
	marker, err := b.Publish(ctx, "slow", mustMsg(t, "probe_scan", "second"))
	require.NoError(t, err)

	select {
	case d := <-got:
		assert.Equal(t, marker, d.Handle)
	case <-time.After(2 * time.Second):
		t.Fatal("marker delivery never arrived")
	}
}

func TestRequestReply(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	require.NoError(t, b.Subscribe(ctx, "scan.control", func(ctx context.Context, d busdomain.Delivery) error {
		reply := mustMsg(t, d.Msg.Op, map[string]int{"dispatched": 4})
		_, err := b.Publish(ctx, d.Msg.ReplyTo, reply)
		return err
	}))

	reply, err := busdomain.Request(ctx, b, "scan.control", mustMsg(t, "scan_launch", "s1"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "scan_launch", reply.Op)

	var payload map[string]int
	require.NoError(t, reply.Arg(0, &payload))
	assert.Equal(t, 4, payload["dispatched"])
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	// Consumer that never replies.
	require.NoError(t, b.Subscribe(ctx, "scan.control", func(context.Context, busdomain.Delivery) error {
		return nil
	}))

	_, err := busdomain.Request(ctx, b, "scan.control", mustMsg(t, "scan_progress", "s1"), 50*time.Millisecond)
	require.ErrorIs(t, err, busdomain.ErrTimeout)
}

func TestHandlerErrorRedeliversBounded(t *testing.T) {
	t.Parallel()
	b := inmem.New()
	ctx := context.Background()

	attempts := make(chan int, 8)
	require.NoError(t, b.Subscribe(ctx, "flaky", func(_ context.Context, d busdomain.Delivery) error {
		attempts <- d.Attempts
		return errors.New("handler failure")
	}))

	_, err := b.Publish(ctx, "flaky", mustMsg(t, "scan_result"))
	require.NoError(t, err)

	var seen []int
	timeout := time.After(3 * time.Second)
	for len(seen) < 3 {
		select {
		case a := <-attempts:
			seen = append(seen, a)
		case <-timeout:
			t.Fatalf("got %v deliveries, want 3", seen)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, seen)

	select {
	case a := <-attempts:
		t.Fatalf("unexpected delivery attempt %d past the bound", a)
	case <-time.After(200 * time.Millisecond):
	}
}
