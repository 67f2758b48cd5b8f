// Package handshake implements the tiny fixed protocol on the handshake
// port (§6, default 5700): a peer connects, receives its freshly assigned
// eight-byte little-endian ClientId, and disconnects. The client then
// stamps that id on every frame it sends over the RPC and event
// connections it opens afterward — one logical client, multiple sockets,
// no further coordination required between them.
package handshake

import (
	"encoding/binary"
	"io"
	"net"

	"mulex/internal/idalloc"
	"mulex/internal/logging"
)

type Server struct {
	ln    net.Listener
	alloc *idalloc.Allocator
}

func New(ln net.Listener, alloc *idalloc.Allocator) *Server {
	return &Server{ln: ln, alloc: alloc}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			logging.Debugf("handshake: accept stopped, err: %s", err)
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	id := s.alloc.Next()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	if _, err := conn.Write(buf[:]); err != nil {
		logging.Debugf("handshake: write failed, err: %s", err)
		return
	}
	logging.Debugf("handshake: assigned client id %d", id)
}

// RequestClientId is the client-side half of the same exchange.
func RequestClientId(addr string) (uint64, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	var buf [8]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
