package eventbus_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mulex/eventbus"
	"mulex/eventclient"
	"mulex/internal/idalloc"
	"mulex/internal/permission"
	"mulex/rpcclient"
	"mulex/rpcserver"
)

// The subscribe/unsubscribe procedures live in the process-wide
// proctable, bound by closure to one *eventbus.Server — exactly like
// production, where a single process runs exactly one bus. Tests share
// one bus+server pair instead of each minting its own, and rely on
// distinct ClientIds/event names to stay independent of each other.
var (
	startOnce          sync.Once
	sharedRPCAddr      string
	sharedEventAddr    string
	sharedBus          *eventbus.Server
)

func startServers(t *testing.T) (rpcAddr, eventAddr string, bus *eventbus.Server) {
	t.Helper()
	startOnce.Do(func() {
		rpcLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		evLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		rpc := rpcserver.New(rpcLn, permission.New(), idalloc.New())
		sharedBus = eventbus.New(evLn)
		eventbus.RegisterProcedures(sharedBus)

		go rpc.Serve()
		go sharedBus.Serve()

		sharedRPCAddr = rpcLn.Addr().String()
		sharedEventAddr = evLn.Addr().String()
	})
	return sharedRPCAddr, sharedEventAddr, sharedBus
}

func TestSubscribeDeliversAcrossClients(t *testing.T) {
	rpcAddr, eventAddr, _ := startServers(t)

	rpcA, err := rpcclient.Dial(rpcAddr, 1)
	require.NoError(t, err)
	defer rpcA.Close()
	rpcB, err := rpcclient.Dial(rpcAddr, 2)
	require.NoError(t, err)
	defer rpcB.Close()

	evA, err := eventclient.Dial(eventAddr, 1, rpcA, []byte("producer"))
	require.NoError(t, err)
	defer evA.Close()
	evB, err := eventclient.Dial(eventAddr, 2, rpcB, []byte("consumer"))
	require.NoError(t, err)
	defer evB.Close()

	require.NoError(t, evA.Register("demo::tick"))

	received := make(chan []byte, 1)
	require.NoError(t, evB.On("demo::tick", func(payload []byte) {
		received <- payload
	}))
	evB.Start()
	evA.Start()

	// give the subscribe RPC time to land before the first emit
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, evA.Emit("demo::tick", []byte("42")))

	select {
	case payload := <-received:
		require.Equal(t, "42", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	rpcAddr, eventAddr, _ := startServers(t)

	rpcA, err := rpcclient.Dial(rpcAddr, 3)
	require.NoError(t, err)
	defer rpcA.Close()
	rpcB, err := rpcclient.Dial(rpcAddr, 4)
	require.NoError(t, err)
	defer rpcB.Close()

	evA, err := eventclient.Dial(eventAddr, 3, rpcA, nil)
	require.NoError(t, err)
	defer evA.Close()
	evB, err := eventclient.Dial(eventAddr, 4, rpcB, []byte("consumer"))
	require.NoError(t, err)
	defer evB.Close()

	require.NoError(t, evA.Register("demo::once"))

	received := make(chan []byte, 4)
	require.NoError(t, evB.On("demo::once", func(payload []byte) { received <- payload }))
	evB.Start()
	evA.Start()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, evA.Emit("demo::once", []byte("a")))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected first emit to be delivered")
	}

	require.NoError(t, evB.Off("demo::once"))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, evA.Emit("demo::once", []byte("b")))

	select {
	case payload := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %s", payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGhostClientFlagged(t *testing.T) {
	rpcAddr, eventAddr, bus := startServers(t)

	rpcA, err := rpcclient.Dial(rpcAddr, 5)
	require.NoError(t, err)
	defer rpcA.Close()

	evA, err := eventclient.Dial(eventAddr, 5, rpcA, nil)
	require.NoError(t, err)
	defer evA.Close()
	evA.Start()

	require.Eventually(t, func() bool {
		return bus.IsGhost(5)
	}, time.Second, 10*time.Millisecond)
}
