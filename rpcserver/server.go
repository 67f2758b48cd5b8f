// Package rpcserver implements the RPC transport's server half (§4.3):
// one blocking receiver/sender goroutine pair per connection (transport.Conn),
// a request/response loop keyed by ProcedureId against the shared
// proctable, and per-client upload/download accounting of RPC traffic,
// readable through StatsFor.
package rpcserver

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mulex/internal/bytestream"
	"mulex/internal/idalloc"
	"mulex/internal/logging"
	"mulex/internal/metrics"
	"mulex/internal/permission"
	"mulex/internal/proctable"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
	"mulex/transport"
)

// ClientStats accumulates a connection's RPC byte counters, drained and
// reset through StatsFor. The "/system/backends/<hex cid>/statistics/event"
// rows in RDB are fed from the event bus's own counters, not from these.
type ClientStats struct {
	BytesRead    uint64
	BytesWritten uint64
}

func (c *ClientStats) addRead(n int)  { atomic.AddUint64(&c.BytesRead, uint64(n)) }
func (c *ClientStats) addWrite(n int) { atomic.AddUint64(&c.BytesWritten, uint64(n)) }

// Snapshot returns and resets the counters atomically enough for a once-a-
// second flush (exact interleaving with a concurrent request doesn't
// matter; the bridge only needs eventually-consistent totals).
func (c *ClientStats) Snapshot() (read, written uint64) {
	return atomic.SwapUint64(&c.BytesRead, 0), atomic.SwapUint64(&c.BytesWritten, 0)
}

// Server is the RPC acceptor and per-connection dispatcher.
type Server struct {
	ln    net.Listener
	perms *permission.Registry
	ids   *idalloc.Allocator

	mu      sync.RWMutex
	clients map[uint64]*clientConn

	onConnect    func(clientId uint64)
	onDisconnect func(clientId uint64)
}

type clientConn struct {
	conn  *transport.Conn
	stats ClientStats
}

// New wraps an already-listening socket. ids is the same handshake
// allocator the handshake.Server hands ClientIds out of, so connections
// accepted here trust the ClientId each request frame carries rather than
// assigning one of their own (§3: one logical client, many sockets).
func New(ln net.Listener, perms *permission.Registry, ids *idalloc.Allocator) *Server {
	return &Server{
		ln:      ln,
		perms:   perms,
		ids:     ids,
		clients: map[uint64]*clientConn{},
	}
}

// OnConnect/OnDisconnect install callbacks run when a ClientId is first
// seen on this transport and when its connection ends.
func (s *Server) OnConnect(fn func(clientId uint64))    { s.onConnect = fn }
func (s *Server) OnDisconnect(fn func(clientId uint64)) { s.onDisconnect = fn }

// Serve accepts connections until the listener closes.
func (s *Server) Serve() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			logging.Debugf("rpcserver: accept stopped, err: %s", err)
			return
		}
		go s.handleConn(nc)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	c := transport.New(nc, 0)
	c.Start()
	metrics.Global.TotalConnections.WithLabelValues("rpc").Inc()
	metrics.Global.CurrConnections.WithLabelValues("rpc").Inc()
	defer metrics.Global.CurrConnections.WithLabelValues("rpc").Dec()

	cc := &clientConn{conn: c}
	var registered uint64

	info := bytestream.HeaderInfo{
		HeaderSize: wire.RPCHeaderSize,
		PayloadSize: func(header []byte) (int, error) {
			h, err := wire.DecodeRPCRequestHeader(header)
			if err != nil {
				return 0, err
			}
			return int(h.PayloadSize), nil
		},
	}

	for {
		frame, ok := c.In.Fetch(info)
		if !ok {
			break
		}
		cc.stats.addRead(len(frame))

		header, err := wire.DecodeRPCRequestHeader(frame[:wire.RPCHeaderSize])
		if err != nil {
			c.Drain()
			break
		}
		payload := frame[wire.RPCHeaderSize:]

		if registered == 0 && header.ClientId != 0 {
			registered = header.ClientId
			s.mu.Lock()
			s.clients[registered] = cc
			s.mu.Unlock()
			if s.onConnect != nil {
				s.onConnect(registered)
			}
		}

		resp, status := s.dispatch(header, payload)
		respHeader := wire.RPCResponseHeader{Status: status, PayloadSize: uint32(len(resp))}
		out := make([]byte, wire.RPCResponseHeaderSize+len(resp))
		copy(out, respHeader.Encode())
		copy(out[wire.RPCResponseHeaderSize:], resp)
		cc.stats.addWrite(len(out))
		c.Out.Push(out)
	}

	c.Close()
	if registered != 0 {
		s.mu.Lock()
		delete(s.clients, registered)
		s.mu.Unlock()
		if s.onDisconnect != nil {
			s.onDisconnect(registered)
		}
	}
}

func (s *Server) dispatch(h wire.RPCRequestHeader, payload []byte) (resp []byte, status wire.Status) {
	start := time.Now()
	desc, ok := proctable.Lookup(h.ProcedureId)
	if !ok {
		logging.Warnf("rpcserver: unknown procedure id %d from client %d", h.ProcedureId, h.ClientId)
		return nil, wire.StatusWrongArgs
	}
	if !s.perms.Allow(h.ClientId, desc.Permission) {
		metrics.Global.RPCWrongArgs.WithLabelValues(desc.Name).Inc()
		return nil, wire.StatusWrongArgs
	}

	// A procedure handler is third-party as far as the dispatch loop is
	// concerned: it must not be able to take the whole process down.
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("rpcserver: procedure %q panicked, recovered: %v", desc.Name, r)
			metrics.Global.RPCWrongArgs.WithLabelValues(desc.Name).Inc()
			resp, status = nil, wire.StatusWrongArgs
		}
	}()

	var err error
	resp, err = desc.Handler(h.ClientId, payload)
	metrics.Global.RPCRequests.WithLabelValues(desc.Name).Inc()
	metrics.Global.RPCLatency.WithLabelValues(desc.Name).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if err == xerrors.ErrWrongByteCount {
			metrics.Global.RPCWrongArgs.WithLabelValues(desc.Name).Inc()
			return nil, wire.StatusWrongArgs
		}
		logging.ErrIf(err)
		return nil, wire.StatusWrongArgs
	}
	return resp, wire.StatusOK
}

// StatsFor returns a snapshot of (and resets) a connected client's RPC byte
// counters.
func (s *Server) StatsFor(clientId uint64) (read, written uint64, ok bool) {
	s.mu.RLock()
	cc, found := s.clients[clientId]
	s.mu.RUnlock()
	if !found {
		return 0, 0, false
	}
	r, w := cc.stats.Snapshot()
	return r, w, true
}

// ConnectedClients lists every ClientId currently registered on this
// transport, for the stats bridge's once-a-second sweep.
func (s *Server) ConnectedClients() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	return out
}
