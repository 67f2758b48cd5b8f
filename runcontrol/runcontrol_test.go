package runcontrol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mulex/rdb"
)

func TestStartStopTransitions(t *testing.T) {
	store := rdb.NewStore(1 << 12)
	ctrl := New(store)

	require.Equal(t, StatusStopped, ctrl.Status())
	require.NoError(t, ctrl.Start())
	require.Equal(t, StatusRunning, ctrl.Status())

	require.Error(t, ctrl.Start(), "starting twice must be rejected")

	require.NoError(t, ctrl.Stop())
	require.Equal(t, StatusStopped, ctrl.Status())
	require.Error(t, ctrl.Stop(), "stopping twice must be rejected")
}

func TestStartBumpsRunNumberAndTimestamp(t *testing.T) {
	store := rdb.NewStore(1 << 12)
	ctrl := New(store)

	require.NoError(t, ctrl.Start())
	require.NoError(t, ctrl.Stop())
	require.NoError(t, ctrl.Start())

	v, _, err := store.Read("/system/run/number")
	require.NoError(t, err)
	require.Len(t, v, 4)

	ts, _, err := store.Read("/system/run/timestamp")
	require.NoError(t, err)
	require.Len(t, ts, 8)
}
