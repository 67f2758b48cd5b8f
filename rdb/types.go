// Package rdb is the typed in-memory key-value store described in spec
// §3/§4.5: a contiguous arena of typed entries, each with its own
// readers-writer lock, reachable through a name map guarded by a global
// readers-writer lock, plus glob-watch-to-event bridging and flat-file
// snapshotting.
package rdb

import "mulex/internal/xerrors"

// ValueType enumerates the fixed-width scalar/array element types an entry
// can hold (§3/§4.5).
type ValueType uint8

const (
	TypeI8 ValueType = iota
	TypeU8
	TypeI16
	TypeU16
	TypeI32
	TypeU32
	TypeI64
	TypeU64
	TypeF32
	TypeF64
	TypeBool
	TypeString // bounded string, fixed 512-byte element
)

// BoundedStringSize is the fixed element size of TypeString (§4.5).
const BoundedStringSize = 512

// ElemSize returns the per-element byte width for t.
func (t ValueType) ElemSize() (uint32, error) {
	switch t {
	case TypeI8, TypeU8, TypeBool:
		return 1, nil
	case TypeI16, TypeU16:
		return 2, nil
	case TypeI32, TypeU32, TypeF32:
		return 4, nil
	case TypeI64, TypeU64, TypeF64:
		return 8, nil
	case TypeString:
		return BoundedStringSize, nil
	default:
		return 0, xerrors.ErrReshapeNotAllowed
	}
}

func (t ValueType) Valid() bool {
	return t <= TypeString
}

// ValueLen computes size*max(count,1), the number of value bytes an entry
// of this shape must carry (§3 invariant).
func ValueLen(elemSize uint32, count uint32) uint32 {
	n := count
	if n == 0 {
		n = 1
	}
	return elemSize * n
}
