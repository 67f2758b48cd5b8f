// Package eventclient is the event transport's client half (§4.4): connect,
// resolve/register event ids against the event bus's control-plane RPCs,
// subscribe/unsubscribe, emit, and dispatch inbound frames to locally
// registered callbacks.
package eventclient

import (
	"encoding/binary"
	"net"
	"sync"

	"mulex/internal/bytestream"
	"mulex/internal/netutil"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
	"mulex/rpcclient"
)

// Handler receives an event's raw payload.
type Handler func(payload []byte)

// Client holds one event connection plus the RPC connection used for
// register/get_id/subscribe/unsubscribe control calls (§4.4 splits
// data-plane emit/deliver from control-plane subscription management,
// mirroring the RPC/event port split at the transport level). Unlike the
// teacher's redis codec, event ids are never computed locally: they are
// server-assigned on registration and cached here exactly like
// EvtClientThread::_evt_registry does in the original source.
type Client struct {
	ClientId uint64

	conn net.Conn
	in   *bytestream.ByteStream
	rpc  *rpcclient.Client

	mu       sync.RWMutex
	ids      map[string]uint16
	handlers map[uint16]Handler
}

// Dial connects the event socket and announces clientId via the
// getclientmeta hook, which the server registers at startup so its id is
// always resolvable. A non-empty meta marks this as a named (non-ghost)
// client; pass nil for a ghost connection.
func Dial(addr string, clientId uint64, rpc *rpcclient.Client, meta []byte) (*Client, error) {
	conn, err := netutil.DialTimeout(addr, 0)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ClientId: clientId,
		conn:     conn,
		in:       bytestream.New(1 << 20),
		rpc:      rpc,
		ids:      map[string]uint16{},
		handlers: map[uint16]Handler{},
	}
	go c.readLoop()

	id, err := c.resolveId("mxevt::getclientmeta")
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.emitRaw(id, meta); err != nil {
		conn.Close()
		return nil, err
	}
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

func (c *Client) dispatchLoop() {
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
		frame, ok := c.in.Fetch(info)
		if !ok {
			return
		}
		h, err := wire.DecodeEventHeader(frame[:wire.EventHeaderSize])
		if err != nil {
			continue
		}
		payload := frame[wire.EventHeaderSize:]

		c.mu.RLock()
		fn, ok := c.handlers[h.EventId]
		c.mu.RUnlock()
		if ok {
			fn(payload)
		}
	}
}

// resolveId returns eventName's server-assigned id, consulting the local
// cache first and falling back to a "mxevt::get_id" round-trip (mirrors
// EvtClientThread::findEvent). It does not register the name: an
// unregistered event resolves to ErrUnknownEvent, exactly like the
// original's EvtGetId returning 0.
func (c *Client) resolveId(eventName string) (uint16, error) {
	c.mu.RLock()
	if id, ok := c.ids[eventName]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	resp, _, err := c.rpc.Call("mxevt::get_id", encodeEventName(eventName))
	if err != nil {
		return 0, err
	}
	if len(resp) < 2 {
		return 0, xerrors.ErrIncompleteFrame
	}
	id := binary.LittleEndian.Uint16(resp)
	if id == 0 {
		return 0, xerrors.ErrUnknownEvent
	}

	c.mu.Lock()
	c.ids[eventName] = id
	c.mu.Unlock()
	return id, nil
}

// Register announces eventName to the server (idempotent: a second caller
// registering the same name just resolves the existing id) and caches the
// resulting id locally. This is the producer-side call
// (EvtClientThread::regist in the original) normally made once at startup,
// before the first Emit of a new event name.
func (c *Client) Register(eventName string) error {
	if _, _, err := c.rpc.Call("mxevt::register", encodeEventName(eventName)); err != nil {
		return err
	}
	_, err := c.resolveId(eventName)
	return err
}

// On resolves eventName's id (never auto-registering — the producer must
// have called Register first) and asks the server to subscribe this client
// to it.
func (c *Client) On(eventName string, fn Handler) error {
	id, err := c.resolveId(eventName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.handlers[id] = fn
	c.mu.Unlock()

	_, _, err = c.rpc.Call("mxevt::subscribe", encodeEventName(eventName))
	return err
}

// Off unsubscribes and forgets the local callback.
func (c *Client) Off(eventName string) error {
	id, err := c.resolveId(eventName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()

	_, _, err = c.rpc.Call("mxevt::unsubscribe", encodeEventName(eventName))
	return err
}

// Emit publishes payload under eventName. Subscribers (including other
// clients on the same event bus) receive it via their dispatch loop. Like
// the original's EvtClientThread::emit, this never auto-registers: the
// event must already be locally cached or resolvable via get_id.
func (c *Client) Emit(eventName string, payload []byte) error {
	id, err := c.resolveId(eventName)
	if err != nil {
		return err
	}
	return c.emitRaw(id, payload)
}

func (c *Client) emitRaw(eventId uint16, payload []byte) error {
	h := wire.EventHeader{
		ClientId: c.ClientId, EventId: eventId,
		MessageId: 0, PayloadSize: uint32(len(payload)),
	}
	frame := make([]byte, wire.EventHeaderSize+len(payload))
	copy(frame, h.Encode())
	copy(frame[wire.EventHeaderSize:], payload)
	_, err := c.conn.Write(frame)
	return err
}

func encodeEventName(name string) []byte {
	return wire.EncodeGenericBlob([]byte(name))
}

// Start launches the dispatch loop; call once after registering initial
// handlers with On.
func (c *Client) Start() {
	go c.dispatchLoop()
}

func (c *Client) Close() error {
	c.in.Unblock()
	return c.conn.Close()
}
