// Package wire defines the length-framed wire format shared by the RPC and
// event transports (spec §4.3/§4.4/§6). Every integer is encoded explicit
// little-endian — the spec notes the original is host-endian with implicit
// struct layout and calls that out as a portability wart to fix (§9); this
// is that fix.
package wire

import (
	"encoding/binary"

	"mulex/internal/xerrors"
)

// MaxPayloadSize is a nominal upper limit on a single frame's payload. The
// decoders here do not check it; on the receive side a frame is bounded by
// the byte stream's capacity, which bytestream.Fetch enforces.
const MaxPayloadSize = 64 << 20

// RPCHeaderSize is the encoded size of an RPCRequestHeader.
const RPCHeaderSize = 8 + 2 + 8 + 4

// RPCRequestHeader is {ClientId:u64, ProcedureId:u16, MessageId:u64, PayloadSize:u32}.
type RPCRequestHeader struct {
	ClientId    uint64
	ProcedureId uint16
	MessageId   uint64
	PayloadSize uint32
}

func (h RPCRequestHeader) Encode() []byte {
	buf := make([]byte, RPCHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.ClientId)
	binary.LittleEndian.PutUint16(buf[8:10], h.ProcedureId)
	binary.LittleEndian.PutUint64(buf[10:18], h.MessageId)
	binary.LittleEndian.PutUint32(buf[18:22], h.PayloadSize)
	return buf
}

func DecodeRPCRequestHeader(buf []byte) (RPCRequestHeader, error) {
	if len(buf) < RPCHeaderSize {
		return RPCRequestHeader{}, xerrors.ErrIncompleteFrame
	}
	return RPCRequestHeader{
		ClientId:    binary.LittleEndian.Uint64(buf[0:8]),
		ProcedureId: binary.LittleEndian.Uint16(buf[8:10]),
		MessageId:   binary.LittleEndian.Uint64(buf[10:18]),
		PayloadSize: binary.LittleEndian.Uint32(buf[18:22]),
	}, nil
}

// Status values for an RPC response (§4.3).
type Status uint32

const (
	StatusOK Status = iota
	StatusWrongArgs
	StatusTimeout
)

// RPCResponseHeaderSize is the encoded size of an RPCResponseHeader.
const RPCResponseHeaderSize = 4 + 4

// RPCResponseHeader is {Status:u32, PayloadSize:u32}.
type RPCResponseHeader struct {
	Status      Status
	PayloadSize uint32
}

func (h RPCResponseHeader) Encode() []byte {
	buf := make([]byte, RPCResponseHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Status))
	binary.LittleEndian.PutUint32(buf[4:8], h.PayloadSize)
	return buf
}

func DecodeRPCResponseHeader(buf []byte) (RPCResponseHeader, error) {
	if len(buf) < RPCResponseHeaderSize {
		return RPCResponseHeader{}, xerrors.ErrIncompleteFrame
	}
	return RPCResponseHeader{
		Status:      Status(binary.LittleEndian.Uint32(buf[0:4])),
		PayloadSize: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// EventHeaderSize is the encoded size of an EventHeader.
const EventHeaderSize = 8 + 2 + 8 + 4

// EventHeader is {ClientId:u64, EventId:u16, MessageId:u64, PayloadSize:u32},
// identical on both directions of the event connection (§4.4).
type EventHeader struct {
	ClientId    uint64
	EventId     uint16
	MessageId   uint64
	PayloadSize uint32
}

func (h EventHeader) Encode() []byte {
	buf := make([]byte, EventHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.ClientId)
	binary.LittleEndian.PutUint16(buf[8:10], h.EventId)
	binary.LittleEndian.PutUint64(buf[10:18], h.MessageId)
	binary.LittleEndian.PutUint32(buf[18:22], h.PayloadSize)
	return buf
}

func DecodeEventHeader(buf []byte) (EventHeader, error) {
	if len(buf) < EventHeaderSize {
		return EventHeader{}, xerrors.ErrIncompleteFrame
	}
	return EventHeader{
		ClientId:    binary.LittleEndian.Uint64(buf[0:8]),
		EventId:     binary.LittleEndian.Uint16(buf[8:10]),
		MessageId:   binary.LittleEndian.Uint64(buf[10:18]),
		PayloadSize: binary.LittleEndian.Uint32(buf[18:22]),
	}, nil
}

// EncodeGenericBlob encodes a variable-length value as {Size:u64, Bytes[Size]}
// (§4.3), the encoding used for all event payloads and dynamically-sized
// RPC arguments.
func EncodeGenericBlob(b []byte) []byte {
	out := make([]byte, 8+len(b))
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(b)))
	copy(out[8:], b)
	return out
}

// DecodeGenericBlob reverses EncodeGenericBlob.
func DecodeGenericBlob(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return nil, xerrors.ErrIncompleteFrame
	}
	n := binary.LittleEndian.Uint64(buf[0:8])
	if uint64(len(buf)-8) < n {
		return nil, xerrors.ErrIncompleteFrame
	}
	return buf[8 : 8+n], nil
}
