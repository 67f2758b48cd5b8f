// Package bytestream implements the bounded ring-buffer described in
// spec §4.1: a fixed-capacity buffer fed by a single receiver goroutine,
// drained one complete frame at a time by a single consumer goroutine.
// The producer blocks when the buffer would overflow; the consumer blocks
// until a full frame (header + payload) is present. Both sides also wake
// on Unblock and return their sentinel zero value so the owning goroutine
// can exit cleanly — the Go equivalent of the teacher's condition-variable
// "unblock flag" pattern used throughout rcproxy's connection teardown.
package bytestream

import (
	"sync"

	"mulex/internal/xerrors"
)

// HeaderInfo is supplied by a protocol (RPC or event) so Fetch can find the
// payload-size field without the byte-stream knowing the wire format.
type HeaderInfo struct {
	// Size of the fixed header portion.
	HeaderSize int
	// PayloadSize extracts the payload length from a HeaderSize-byte header.
	PayloadSize func(header []byte) (int, error)
}

// ByteStream is a bounded ring buffer guarded by a mutex/condition-variable
// pair. It is not safe for more than one concurrent producer or more than
// one concurrent consumer (by design — one socket receiver, one dispatcher).
type ByteStream struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte
	n        int // valid bytes currently in buf[0:n]
	unblocked bool
}

func New(capacity int) *ByteStream {
	bs := &ByteStream{buf: make([]byte, capacity)}
	bs.cond = sync.NewCond(&bs.mu)
	return bs
}

// Append adds data to the stream, blocking while it would overflow
// capacity. Returns false (instead of blocking forever) once Unblock has
// been called.
func (bs *ByteStream) Append(data []byte) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	for len(data) > 0 {
		for bs.n+len(data) > len(bs.buf) && !bs.unblocked {
			bs.cond.Wait()
		}
		if bs.unblocked {
			return false
		}
		copy(bs.buf[bs.n:], data)
		bs.n += len(data)
		bs.cond.Broadcast()
		return true
	}
	return true
}

// Fetch waits until a complete frame (header+payload, per info) is
// present, copies it out, compacts the remainder, and returns it. It
// returns (nil, false) once Unblock has been called with nothing more to
// deliver.
func (bs *ByteStream) Fetch(info HeaderInfo) ([]byte, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	for {
		if bs.n >= info.HeaderSize {
			payloadSize, err := info.PayloadSize(bs.buf[:info.HeaderSize])
			if err == nil {
				total := info.HeaderSize + payloadSize
				if total < 0 || total > len(bs.buf) {
					// Malformed, or a frame that could never fit this stream's
					// fixed capacity: unrecoverable for this stream, same
					// outcome as disconnect (§7 protocol error) rather than a
					// permanent deadlock on Append.
					bs.unblocked = true
					bs.cond.Broadcast()
					return nil, false
				}
				if bs.n >= total {
					frame := make([]byte, total)
					copy(frame, bs.buf[:total])
					copy(bs.buf, bs.buf[total:bs.n])
					bs.n -= total
					bs.cond.Broadcast()
					return frame, true
				}
			}
		}
		if bs.unblocked {
			return nil, false
		}
		bs.cond.Wait()
	}
}

// Unblock wakes any blocked Append/Fetch call; both return their sentinel
// zero value so the owning goroutine can exit. Idempotent.
func (bs *ByteStream) Unblock() {
	bs.mu.Lock()
	bs.unblocked = true
	bs.cond.Broadcast()
	bs.mu.Unlock()
}

// ErrMalformedLength is returned by a PayloadSize callback when the header
// decodes to a negative or otherwise invalid payload length.
var ErrMalformedLength = xerrors.ErrIncompleteFrame
