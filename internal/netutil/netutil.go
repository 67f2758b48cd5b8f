// Package netutil holds the socket-option plumbing spec §4.2 calls the
// "socket layer": bind+listen with SO_REUSEADDR, connect with a timeout,
// and TCP_NODELAY on every accepted/dialed connection. Grounded on
// rcproxy's core/listener.go and core/acceptor.go, which set the same
// options (SetReuseAddr, SetNoDelay) through golang.org/x/sys/unix before
// handing the fd to its event loop; here the listener is a plain
// net.Listener and the options are applied via SyscallConn since the
// blocking-thread model (§5) means there is no raw fd to manage directly.
package netutil

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listen binds :port with SO_REUSEADDR set, matching the teacher's
// initListener behavior of always enabling address reuse.
func Listen(port int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
}

// DialTimeout connects to addr, applying TCP_NODELAY the way the teacher's
// engine.Dial does for every outbound connection.
func DialTimeout(addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	SetNoDelay(conn)
	return conn, nil
}

// SetNoDelay applies TCP_NODELAY to a connection, ignoring non-TCP conns
// (used directly in tests against net.Pipe).
func SetNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
