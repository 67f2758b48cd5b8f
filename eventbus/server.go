// Package eventbus implements the event transport's server half (§4.4):
// a publish/subscribe fabric over the same blocking-thread connection
// model as rpcserver, a server-assigned event name/id registry, the
// reserved "mxevt::getclientmeta" hook that distinguishes ghost clients
// from named ones, and the once-a-second bridge that drains the bus's own
// per-client byte counters into RDB.
package eventbus

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mulex/internal/bytestream"
	"mulex/internal/logging"
	"mulex/internal/metrics"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
	"mulex/rdb"
	"mulex/transport"
)

// reservedGetClientMeta is the hook a client calls once, right after
// connecting its event socket, to announce itself. A zero-length payload
// marks a "ghost" client (§6/§9 Supplemented Features, grounded on
// capi/mxcapi.cpp and network/mxevt.cpp): one that exists on the wire but
// is excluded from presence and statistics bookkeeping — used by internal
// tooling connections that don't want to show up in operator-facing views.
const reservedGetClientMeta = "mxevt::getclientmeta"

// KVWriter is the small surface the statistics and lifecycle bridges need
// from RDB. Defined here, implemented by *rdb.Store, so eventbus depends
// only on this interface's shape — matching rdb.Store's method set
// structurally.
type KVWriter interface {
	CreateIfAbsent(key string, t rdb.ValueType, count uint32, value []byte) error
	Write(key string, value []byte) error
	Erase(key string) error
}

// StatsSource is the per-client byte-counter source the stats bridge polls.
// *Server satisfies it with its own event-frame counters, and that is the
// source cmd/mxserver wires in; rpcserver.Server has the same method set.
type StatsSource interface {
	ConnectedClients() []uint64
	StatsFor(clientId uint64) (read, written uint64, ok bool)
}

type subscriberSet = map[uint64]struct{}

// eventClientStats accumulates a connection's event-frame byte counters,
// the same shape as rpcserver.ClientStats but independent of it: the event
// bus's "/system/backends/<hex-cid>/statistics/event/*" mirror (§8
// invariant 4) is defined over event-frame bytes the bus itself observed,
// not RPC traffic.
type eventClientStats struct {
	bytesRead    uint64
	bytesWritten uint64
}

func (c *eventClientStats) addRead(n int)  { atomic.AddUint64(&c.bytesRead, uint64(n)) }
func (c *eventClientStats) addWrite(n int) { atomic.AddUint64(&c.bytesWritten, uint64(n)) }

func (c *eventClientStats) snapshot() (read, written uint64) {
	return atomic.SwapUint64(&c.bytesRead, 0), atomic.SwapUint64(&c.bytesWritten, 0)
}

type eventConn struct {
	conn  *transport.Conn
	stats eventClientStats
}

// Server is the event bus's connection acceptor, subscription table, and
// ghost-client registry.
type Server struct {
	ln net.Listener
	ev *registry

	// reservedGetClientMetaId is the id the getclientmeta hook was
	// assigned when New registered it, exactly like any other event name
	// (RegisterServerSideEvents in the original does this through the
	// same registry rather than a hash).
	reservedGetClientMetaId uint16

	mu     sync.RWMutex
	conns  map[uint64]*eventConn
	subs   map[uint16]subscriberSet
	ghosts map[uint64]bool
}

func New(ln net.Listener) *Server {
	s := &Server{
		ln:     ln,
		ev:     newRegistry(),
		conns:  map[uint64]*eventConn{},
		subs:   map[uint16]subscriberSet{},
		ghosts: map[uint64]bool{},
	}
	s.ev.register(reservedGetClientMeta)
	s.reservedGetClientMetaId = s.ev.idFor(reservedGetClientMeta)
	return s
}

func (s *Server) Serve() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			logging.Debugf("eventbus: accept stopped, err: %s", err)
			return
		}
		go s.handleConn(nc)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	c := transport.New(nc, 0)
	c.Start()
	metrics.Global.TotalConnections.WithLabelValues("event").Inc()
	metrics.Global.CurrConnections.WithLabelValues("event").Inc()
	defer metrics.Global.CurrConnections.WithLabelValues("event").Dec()

	ec := &eventConn{conn: c}
	var registered uint64
	info := bytestream.HeaderInfo{
		HeaderSize: wire.EventHeaderSize,
		PayloadSize: func(header []byte) (int, error) {
			h, err := wire.DecodeEventHeader(header)
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
		ec.stats.addRead(len(frame))

		header, err := wire.DecodeEventHeader(frame[:wire.EventHeaderSize])
		if err != nil {
			c.Drain()
			break
		}
		payload := frame[wire.EventHeaderSize:]

		if registered == 0 && header.ClientId != 0 {
			registered = header.ClientId
			s.mu.Lock()
			s.conns[registered] = ec
			s.mu.Unlock()
		}

		s.handleEmit(header, payload)
	}

	c.Close()
	if registered != 0 {
		s.cleanup(registered)
	}
}

func (s *Server) handleEmit(h wire.EventHeader, payload []byte) {
	if h.EventId == s.reservedGetClientMetaId {
		s.mu.Lock()
		s.ghosts[h.ClientId] = len(payload) == 0
		s.mu.Unlock()
		return
	}

	name, ok := s.ev.nameOf(h.EventId)
	if !ok {
		name = "unregistered"
	}
	metrics.Global.EventFramesIn.WithLabelValues(name).Inc()
	s.relay(h.EventId, name, h.ClientId, h.MessageId, payload)
}

// relay fans a payload out to every subscriber of eventId, excluding the
// publisher itself (a client never echoes its own emit back to itself).
func (s *Server) relay(eventId uint16, name string, publisher uint64, msgId uint64, payload []byte) bool {
	s.mu.RLock()
	subs := s.subs[eventId]
	targets := make([]*eventConn, 0, len(subs))
	for cid := range subs {
		if cid == publisher {
			continue
		}
		if ec, ok := s.conns[cid]; ok {
			targets = append(targets, ec)
		}
	}
	s.mu.RUnlock()

	metrics.Global.EventEmits.WithLabelValues(name).Inc()
	if len(targets) == 0 {
		return false
	}

	out := wire.EventHeader{ClientId: publisher, EventId: eventId, MessageId: msgId, PayloadSize: uint32(len(payload))}
	frame := make([]byte, wire.EventHeaderSize+len(payload))
	copy(frame, out.Encode())
	copy(frame[wire.EventHeaderSize:], payload)

	for _, ec := range targets {
		ec.conn.Out.Push(frame)
		ec.stats.addWrite(len(frame))
		metrics.Global.EventFramesOut.WithLabelValues(name).Inc()
	}
	return true
}

// StatsFor returns a snapshot of (and resets) a connected client's
// event-frame byte counters, satisfying StatsSource for the once-a-second
// bridge into RDB.
func (s *Server) StatsFor(clientId uint64) (read, written uint64, ok bool) {
	s.mu.RLock()
	ec, found := s.conns[clientId]
	s.mu.RUnlock()
	if !found {
		return 0, 0, false
	}
	r, w := ec.stats.snapshot()
	return r, w, true
}

// ConnectedClients lists every ClientId currently registered on the event
// transport, for the stats bridge's once-a-second sweep.
func (s *Server) ConnectedClients() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.conns))
	for id := range s.conns {
		out = append(out, id)
	}
	return out
}

// Emit is the rdb.EmitFunc hook: RDB lifecycle/watch events are delivered
// exactly like client-originated ones, just without a publishing client.
func (s *Server) Emit(eventName string, payload []byte) bool {
	id := s.ev.idFor(eventName)
	return s.relay(id, eventName, 0, 0, payload)
}

// Register backs the "mxevt::register" RPC procedure: it assigns
// eventName the next sequential id if it hasn't been seen before, mirroring
// EvtRegister. Returns false if the name was already registered, matching
// the original's "already registered" return value — callers should treat
// that as success, not failure.
func (s *Server) Register(eventName string) bool {
	return s.ev.register(eventName)
}

// GetId backs the "mxevt::get_id" RPC procedure: it returns eventName's
// assigned id, or 0 if it was never registered (mirrors EvtGetId).
func (s *Server) GetId(eventName string) uint16 {
	return s.ev.idFor(eventName)
}

// Subscribe/Unsubscribe back the "mxevt::subscribe"/"mxevt::unsubscribe"
// RPC procedures (rpcserver dispatch, proctable-registered). Both reject
// clientId 0 (the server itself never subscribes, per EvtSubscribe's check
// in the original) and an unregistered event name (ErrUnknownEvent);
// Unsubscribe treats "caller wasn't subscribed" as a silent no-op rather
// than an error.
func (s *Server) Subscribe(clientId uint64, eventName string) error {
	if clientId == 0 {
		return xerrors.ErrServerCannotSubscribe
	}
	id := s.ev.idFor(eventName)
	if id == 0 {
		return xerrors.ErrUnknownEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.subs[id]
	if !ok {
		set = subscriberSet{}
		s.subs[id] = set
	}
	set[clientId] = struct{}{}
	return nil
}

func (s *Server) Unsubscribe(clientId uint64, eventName string) error {
	if clientId == 0 {
		return xerrors.ErrServerCannotSubscribe
	}
	id := s.ev.idFor(eventName)
	if id == 0 {
		return xerrors.ErrUnknownEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[id]; ok {
		delete(set, clientId)
	}
	return nil
}

// IsGhost reports whether clientId identified itself with a zero-length
// getclientmeta payload (§9 Supplemented Features).
func (s *Server) IsGhost(clientId uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ghosts[clientId]
}

func (s *Server) cleanup(clientId uint64) {
	s.mu.Lock()
	delete(s.conns, clientId)
	delete(s.ghosts, clientId)
	for _, set := range s.subs {
		delete(set, clientId)
	}
	s.mu.Unlock()
}

// statsFlushInterval is how often the byte-counter bridge drains the
// event bus's per-client accumulators into RDB (§6 reserved statistics
// paths).
const statsFlushInterval = time.Second
