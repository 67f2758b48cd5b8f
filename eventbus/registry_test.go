package eventbus_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"mulex/eventbus"
	"mulex/internal/xerrors"
)

func newTestBus(t *testing.T) *eventbus.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return eventbus.New(ln)
}

func TestRegisterAssignsSequentialIds(t *testing.T) {
	bus := newTestBus(t)

	require.Zero(t, bus.GetId("unregistered::name"))

	require.True(t, bus.Register("demo::a"))
	require.True(t, bus.Register("demo::b"))
	require.False(t, bus.Register("demo::a"), "re-registering an existing name reports false")

	idA := bus.GetId("demo::a")
	idB := bus.GetId("demo::b")
	require.NotZero(t, idA)
	require.NotZero(t, idB)
	require.NotEqual(t, idA, idB)
}

func TestSubscribeRejectsServerAndUnregisteredEvents(t *testing.T) {
	bus := newTestBus(t)

	require.ErrorIs(t, bus.Subscribe(0, "demo::whatever"), xerrors.ErrServerCannotSubscribe)
	require.ErrorIs(t, bus.Unsubscribe(0, "demo::whatever"), xerrors.ErrServerCannotSubscribe)

	require.ErrorIs(t, bus.Subscribe(7, "demo::never-registered"), xerrors.ErrUnknownEvent)

	bus.Register("demo::known")
	require.NoError(t, bus.Subscribe(7, "demo::known"))

	// Unsubscribing a client that was never in the set is a silent no-op.
	require.NoError(t, bus.Unsubscribe(9, "demo::known"))
}
