package rpcserver_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"mulex/internal/idalloc"
	"mulex/internal/permission"
	"mulex/internal/proctable"
	"mulex/internal/wire"
	"mulex/rpcclient"
	"mulex/rpcserver"
)

func init() {
	proctable.Register(proctable.Descriptor{
		Id: 9001, Name: "test::echo",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			out := make([]byte, len(payload))
			copy(out, payload)
			return out, nil
		},
	})
}

func TestEchoRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpcserver.New(ln, permission.New(), idalloc.New())
	go srv.Serve()
	defer ln.Close()

	client, err := rpcclient.Dial(ln.Addr().String(), 7)
	require.NoError(t, err)
	defer client.Close()

	resp, status, err := client.Call("test::echo", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, status)
	require.Equal(t, "hello", string(resp))
}

func TestUnknownProcedureReturnsWrongArgs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpcserver.New(ln, permission.New(), idalloc.New())
	go srv.Serve()
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// ProcedureId 65000 was never registered — bypass the client's
	// name-resolution (which would fail locally) to exercise the server's
	// own unknown-procedure handling.
	req := wire.RPCRequestHeader{ClientId: 8, ProcedureId: 65000, MessageId: 1, PayloadSize: 0}
	_, err = conn.Write(req.Encode())
	require.NoError(t, err)

	respHeader := make([]byte, wire.RPCResponseHeaderSize)
	_, err = readFull(conn, respHeader)
	require.NoError(t, err)

	h, err := wire.DecodeRPCResponseHeader(respHeader)
	require.NoError(t, err)
	require.Equal(t, wire.StatusWrongArgs, h.Status)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSerialCallsDoNotInterleave(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpcserver.New(ln, permission.New(), idalloc.New())
	go srv.Serve()
	defer ln.Close()

	client, err := rpcclient.Dial(ln.Addr().String(), 9)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 20; i++ {
		resp, status, err := client.Call("test::echo", []byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, wire.StatusOK, status)
		require.Equal(t, []byte{byte(i)}, resp)
	}
}
