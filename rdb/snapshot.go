package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"mulex/internal/logging"
)

// Snapshot wire format (§4.5/§6), a flat file with no endianness
// normalization beyond the little-endian convention used everywhere else
// in this module:
//
//	MapSize    uint64        number of map records
//	ArenaUsed  uint64        bytes of the arena image that follow
//	MapBytes   [MapSize]mapRecord
//	ArenaBytes [ArenaUsed]byte
//
// Each mapRecord is:
//
//	KeyLen   uint32
//	Key      [KeyLen]byte
//	Offset   uint64
//	ElemSize uint32
//	Count    uint32
//	Type     uint8
//	Created  int64

// Save writes a consistent point-in-time snapshot to path.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "rdb: create snapshot file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s.entries))); err != nil {
		return errors.Wrap(err, "rdb: write map size")
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(s.arena.used)); err != nil {
		return errors.Wrap(err, "rdb: write arena used")
	}
	for key, ref := range s.entries {
		ref.mu.RLock()
		rec := struct {
			Offset   uint64
			ElemSize uint32
			Count    uint32
			Type     uint8
			Created  int64
		}{
			Offset: uint64(ref.offset), ElemSize: ref.elemSize, Count: ref.count,
			Type: uint8(ref.typ), Created: ref.created,
		}
		ref.mu.RUnlock()

		if err := binary.Write(w, binary.LittleEndian, uint32(len(key))); err != nil {
			return errors.Wrap(err, "rdb: write key length")
		}
		if _, err := w.WriteString(key); err != nil {
			return errors.Wrap(err, "rdb: write key")
		}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return errors.Wrap(err, "rdb: write map record")
		}
	}
	if _, err := w.Write(s.arena.buf[:s.arena.used]); err != nil {
		return errors.Wrap(err, "rdb: write arena image")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "rdb: flush snapshot")
	}
	logging.Infof("rdb: snapshot written to %s (%d keys, %d arena bytes)", path, len(s.entries), s.arena.used)
	return nil
}

// Load replaces the store's contents with a previously saved snapshot.
// Arena capacity grows to at least the image size, 1024-byte aligned, and
// the free list starts empty: every byte up to ArenaUsed is considered
// live until proven otherwise by the restored map (matching the original's
// no-compaction-on-restore behavior, §9 Supplemented Features).
func (s *Store) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "rdb: open snapshot file")
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var mapSize, arenaUsed uint64
	if err := binary.Read(r, binary.LittleEndian, &mapSize); err != nil {
		return errors.Wrap(err, "rdb: read map size")
	}
	if err := binary.Read(r, binary.LittleEndian, &arenaUsed); err != nil {
		return errors.Wrap(err, "rdb: read arena used")
	}

	type rawRec struct {
		Offset   uint64
		ElemSize uint32
		Count    uint32
		Type     uint8
		Created  int64
	}
	type loaded struct {
		key string
		rec rawRec
	}
	records := make([]loaded, 0, mapSize)
	for i := uint64(0); i < mapSize; i++ {
		var keyLen uint32
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return errors.Wrap(err, "rdb: read key length")
		}
		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return errors.Wrap(err, "rdb: read key")
		}
		var rec rawRec
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return errors.Wrap(err, "rdb: read map record")
		}
		records = append(records, loaded{key: string(keyBuf), rec: rec})
	}

	aligned := alignUp(int(arenaUsed), 1024)
	a := newArena(aligned)
	if _, err := io.ReadFull(r, a.buf[:arenaUsed]); err != nil {
		return errors.Wrap(err, "rdb: read arena image")
	}
	a.used = int(arenaUsed)

	entries := make(map[string]*entryRef, len(records))
	for _, l := range records {
		total := entryHeaderSize + int(ValueLen(l.rec.ElemSize, l.rec.Count))
		entries[l.key] = &entryRef{
			offset: int(l.rec.Offset), elemSize: l.rec.ElemSize, count: l.rec.Count,
			typ: ValueType(l.rec.Type), created: l.rec.Created, block: total,
		}
	}

	s.mu.Lock()
	s.arena = a
	s.entries = entries
	s.mu.Unlock()

	logging.Infof("rdb: snapshot loaded from %s (%d keys, %d arena bytes)", path, len(entries), arenaUsed)
	return nil
}

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}
