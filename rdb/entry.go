package rdb

import "sync"

// entryRef is the name map's value: a pointer to an arena-resident entry
// plus the per-entry readers-writer lock §3 requires ("Each entry
// additionally carries its own readers-writer lock, so independent keys
// never contend"). Type, ElemSize and Count are fixed at creation and
// cached here to avoid decoding the in-arena header on every access; they
// are also the authoritative copy written into the snapshot's map record.
type entryRef struct {
	mu sync.RWMutex

	offset   int
	elemSize uint32
	count    uint32
	typ      ValueType
	created  int64

	block int // total arena block length (header + value), for release()
}

func (e *entryRef) valueLen() uint32 {
	return ValueLen(e.elemSize, e.count)
}
