// Package xerrors collects the sentinel errors for the five failure kinds
// the server distinguishes (§7): transport, protocol, shape, resource and
// permission. Kept as a flat block per kind, the same shape the teacher
// repo uses for its codec/engine sentinels.
package xerrors

import "errors"

var (
	// ErrShuttingDown occurs when the server is tearing down a subsystem.
	ErrShuttingDown = errors.New("server is shutting down")
	// ErrAlreadyShuttingDown occurs on a second shutdown signal.
	ErrAlreadyShuttingDown = errors.New("server is already shutting down")
	// ErrDisconnected occurs when a peer closed the socket.
	ErrDisconnected = errors.New("peer disconnected")
)

// ==================================== Protocol errors (§7) ====================================

var (
	ErrUnknownProcedure = errors.New("unknown procedure id")
	ErrUnknownEvent      = errors.New("unknown event id")
	ErrZeroLengthFrame   = errors.New("zero-length frame")
	ErrFrameTooLarge     = errors.New("frame exceeds maximum payload size")
	ErrIncompleteFrame   = errors.New("incomplete frame, waiting for more bytes")
)

// ==================================== Shape errors (RDB, §7) ====================================

var (
	ErrWrongByteCount  = errors.New("write size does not match entry shape")
	ErrKeyExists       = errors.New("key already exists")
	ErrKeyNotFound     = errors.New("key not found")
	ErrReshapeNotAllowed = errors.New("entry type/shape is fixed at creation")
)

// ==================================== Resource errors ====================================

var (
	ErrArenaExhausted = errors.New("arena allocation failed after grow")
)

// ==================================== Run-control errors ====================================

var (
	ErrInvalidRunTransition = errors.New("run-control state does not allow this transition")
)

// ==================================== Permission errors ====================================

var (
	ErrPermissionDenied = errors.New("caller lacks required permission tag")
)

// ==================================== Event-bus errors (§4.4) ====================================

var (
	// ErrServerCannotSubscribe occurs when a subscribe/unsubscribe call
	// carries ClientId 0 — the server itself, which never subscribes.
	ErrServerCannotSubscribe = errors.New("the server cannot subscribe to or unsubscribe from events")
)
