// Package transport implements the connection state machine shared by the
// RPC and event subsystems (spec §4.6/§5): one socket, one receiver
// goroutine feeding a ByteStream, one sender goroutine draining an
// outbound Stack. States move Accepted -> Running -> Draining -> Closed;
// Draining unblocks both the stream and the stack so their goroutines can
// exit, and Closed is terminal.
package transport

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"mulex/internal/bytestream"
	"mulex/internal/logging"
	"mulex/internal/netutil"
	"mulex/internal/outqueue"
)

type State int32

const (
	Accepted State = iota
	Running
	Draining
	Closed
)

// DefaultStreamCapacity bounds a single connection's receive buffer.
const DefaultStreamCapacity = 1 << 20

// recvChunkSize is how much is read off the socket per syscall before
// handing it to the ByteStream.
const recvChunkSize = 64 * 1024

// recvBufPool pools the scratch buffers runReceiver reads into. A chunk is
// only ever read into and handed to ByteStream.Append, which copies it out
// synchronously before returning, so it's safe to return the chunk to the
// pool as soon as Append is back — replaces the teacher's bespoke byte-slice
// pool (core's bsPool) with the same pooling idiom for the same reason: a
// connection that sits open for a long time shouldn't keep re-allocating its
// read buffer on every syscall.
var recvBufPool bytebufferpool.Pool

// Conn bundles a socket with the byte-stream/outbound-stack pair the rest
// of the server dispatches against. ClientId is set once, at connection
// establishment (spec §3), and never changes.
type Conn struct {
	Net      net.Conn
	ClientId uint64

	In  *bytestream.ByteStream
	Out *outqueue.Stack

	state     int32
	drainOnce sync.Once
	wg        sync.WaitGroup
}

// New wraps an already-accepted or already-dialed socket.
func New(conn net.Conn, clientId uint64) *Conn {
	netutil.SetNoDelay(conn)
	return &Conn{
		Net:      conn,
		ClientId: clientId,
		In:       bytestream.New(DefaultStreamCapacity),
		Out:      outqueue.New(),
		state:    int32(Accepted),
	}
}

func (c *Conn) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Start transitions Accepted -> Running and launches the receiver/sender
// goroutines. When the socket read fails or returns EOF, the receiver
// goroutine calls Drain itself.
func (c *Conn) Start() {
	atomic.StoreInt32(&c.state, int32(Running))
	c.wg.Add(2)
	go c.runReceiver()
	go c.runSender()
}

func (c *Conn) runReceiver() {
	defer c.wg.Done()
	for {
		bb := recvBufPool.Get()
		if cap(bb.B) < recvChunkSize {
			bb.B = make([]byte, recvChunkSize)
		} else {
			bb.B = bb.B[:recvChunkSize]
		}

		n, err := c.Net.Read(bb.B)
		if n > 0 {
			ok := c.In.Append(bb.B[:n])
			recvBufPool.Put(bb)
			if !ok {
				return
			}
		} else {
			recvBufPool.Put(bb)
		}
		if err != nil {
			c.Drain()
			return
		}
	}
}

func (c *Conn) runSender() {
	defer c.wg.Done()
	for {
		frame, ok := c.Out.Pop()
		if !ok {
			return
		}
		if _, err := c.Net.Write(frame); err != nil {
			logging.Debugf("[%d] write failed, err: %s", c.ClientId, err)
			c.Drain()
			return
		}
	}
}

// Drain moves Running -> Draining exactly once: unblocks the stream and
// stack so both goroutines exit, and closes the socket. Safe to call from
// any goroutine, any number of times.
func (c *Conn) Drain() {
	c.drainOnce.Do(func() {
		atomic.StoreInt32(&c.state, int32(Draining))
		c.In.Unblock()
		c.Out.Unblock()
		_ = c.Net.Close()
	})
}

// Close drains the connection (if not already), waits for both goroutines
// to exit, and marks the connection Closed. Call once the owning
// subsystem has removed the connection from its tables.
func (c *Conn) Close() {
	c.Drain()
	c.wg.Wait()
	atomic.StoreInt32(&c.state, int32(Closed))
}
