// Package rpcclient is the RPC transport's client half (§4.3): one socket,
// a strict call/response ordering guarantee (a client never has more than
// one RPC in flight at a time, so responses never need their own
// correlation id — they are matched purely by arrival order), and a thin
// per-procedure Call wrapper resolving names through proctable.
package rpcclient

import (
	"net"
	"sync"
	"sync/atomic"

	"mulex/internal/bytestream"
	"mulex/internal/netutil"
	"mulex/internal/proctable"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
)

// Client holds one RPC connection. Call serializes access: the teacher's
// connection pool (core/redis_pool.go) hands out exclusive leases for the
// same reason — a single physical connection cannot interleave two
// request/response pairs.
type Client struct {
	ClientId uint64

	conn net.Conn
	in   *bytestream.ByteStream

	callMu  sync.Mutex
	nextMsg uint64
}

// Dial connects to an RPC server and assumes clientId has already been
// obtained from the handshake port.
func Dial(addr string, clientId uint64) (*Client, error) {
	conn, err := netutil.DialTimeout(addr, 0)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ClientId: clientId,
		conn:     conn,
		in:       bytestream.New(1 << 20),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if !c.in.Append(buf[:n]) {
				return
			}
		}
		if err != nil {
			c.in.Unblock()
			return
		}
	}
}

// Call invokes a procedure by name, blocking until the matching response
// arrives. Only one Call may be in flight per Client at a time (enforced
// by callMu), matching the wire protocol's no-correlation-id design.
func (c *Client) Call(name string, payload []byte) ([]byte, wire.Status, error) {
	procId, ok := proctable.Id(name)
	if !ok {
		return nil, wire.StatusWrongArgs, xerrors.ErrUnknownProcedure
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	msgId := atomic.AddUint64(&c.nextMsg, 1)
	req := wire.RPCRequestHeader{
		ClientId: c.ClientId, ProcedureId: procId, MessageId: msgId,
		PayloadSize: uint32(len(payload)),
	}
	frame := make([]byte, wire.RPCHeaderSize+len(payload))
	copy(frame, req.Encode())
	copy(frame[wire.RPCHeaderSize:], payload)
	if _, err := c.conn.Write(frame); err != nil {
		return nil, wire.StatusWrongArgs, err
	}

	info := bytestream.HeaderInfo{
		HeaderSize: wire.RPCResponseHeaderSize,
		PayloadSize: func(header []byte) (int, error) {
			h, err := wire.DecodeRPCResponseHeader(header)
			if err != nil {
				return 0, err
			}
			return int(h.PayloadSize), nil
		},
	}
	respFrame, ok := c.in.Fetch(info)
	if !ok {
		return nil, wire.StatusWrongArgs, xerrors.ErrDisconnected
	}
	respHeader, err := wire.DecodeRPCResponseHeader(respFrame[:wire.RPCResponseHeaderSize])
	if err != nil {
		return nil, wire.StatusWrongArgs, err
	}
	return respFrame[wire.RPCResponseHeaderSize:], respHeader.Status, nil
}

// CallBlob is Call for procedures whose argument/return is a GenericBlob
// (§4.3's variable-length encoding).
func (c *Client) CallBlob(name string, value []byte) ([]byte, wire.Status, error) {
	resp, status, err := c.Call(name, wire.EncodeGenericBlob(value))
	if err != nil || status != wire.StatusOK {
		return nil, status, err
	}
	out, err := wire.DecodeGenericBlob(resp)
	return out, status, err
}

func (c *Client) Close() error {
	c.in.Unblock()
	return c.conn.Close()
}
