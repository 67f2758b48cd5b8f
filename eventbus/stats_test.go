package eventbus_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mulex/eventbus"
	"mulex/internal/wire"
	"mulex/rdb"
)

type fakeStatsSource struct {
	clients map[uint64][2]uint64 // clientId -> {read, written}
}

func (f *fakeStatsSource) ConnectedClients() []uint64 {
	ids := make([]uint64, 0, len(f.clients))
	for id := range f.clients {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeStatsSource) StatsFor(clientId uint64) (uint64, uint64, bool) {
	v, ok := f.clients[clientId]
	return v[0], v[1], ok
}

func TestStatsBridgeSkipsGhostClients(t *testing.T) {
	evLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer evLn.Close()

	bus := eventbus.New(evLn)
	go bus.Serve()

	store := rdb.NewStore(1 << 12)
	src := &fakeStatsSource{clients: map[uint64][2]uint64{100: {10, 20}}}

	// Mark client 100 as ghost by driving the getclientmeta hook through a
	// real connection, the same path a client uses.
	conn, err := net.Dial("tcp", evLn.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	h := wire.EventHeader{ClientId: 100, EventId: bus.GetId("mxevt::getclientmeta")}
	_, err = conn.Write(h.Encode())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bus.IsGhost(100) }, time.Second, 10*time.Millisecond)

	stop := make(chan struct{})
	go bus.RunStatsBridge(src, store, stop)
	time.Sleep(1200 * time.Millisecond)
	close(stop)

	_, err = store.Read("/system/backends/0000000000000064/statistics/event/read")
	require.Error(t, err, "ghost client must not get a statistics row")
}
