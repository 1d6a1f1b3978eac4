package bus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
)

func TestMessageArgsRoundTrip(t *testing.T) {
	t.Parallel()

	type ref struct {
		Scan string `json:"scan"`
		File string `json:"file"`
	}

	m, err := bus.New(bus.OpProbeScan, "ns-alice", ref{Scan: "s1", File: "f1"}, true)
	require.NoError(t, err)
	require.Len(t, m.Args, 3)

	ns, err := m.StringArg(0)
	require.NoError(t, err)
	assert.Equal(t, "ns-alice", ns)

	var got ref
	require.NoError(t, m.Arg(1, &got))
	assert.Equal(t, ref{Scan: "s1", File: "f1"}, got)

	var flag bool
	require.NoError(t, m.Arg(2, &flag))
	assert.True(t, flag)
}

func TestMessageMissingArg(t *testing.T) {
	t.Parallel()

	m, err := bus.New(bus.OpScanCancel, "s1")
	require.NoError(t, err)

	var out string
	assert.Error(t, m.Arg(1, &out))
	assert.Error(t, m.Arg(-1, &out))
}

func TestReserved(t *testing.T) {
	t.Parallel()

	assert.True(t, bus.Reserved(bus.QueueControl))
	assert.True(t, bus.Reserved(bus.QueueRegister))
	assert.True(t, bus.Reserved(bus.QueueResults))
	assert.True(t, bus.Reserved(bus.ReplyPrefix+"0c7dd1f2"))
	assert.False(t, bus.Reserved("clamav"))
	assert.False(t, bus.Reserved("replying"))
}
