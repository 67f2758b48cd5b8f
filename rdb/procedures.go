package rdb

import (
	"encoding/binary"

	"mulex/internal/proctable"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
)

// Reserved procedure ids for the RDB subsystem (§6). Numbered in a block
// of their own so other subsystems (runcontrol, the statistics bridge)
// can claim neighboring ranges without collision.
const (
	ProcCreate  proctable.ProcedureId = 100
	ProcRead    proctable.ProcedureId = 101
	ProcWrite   proctable.ProcedureId = 102
	ProcErase   proctable.ProcedureId = 103
	ProcStat    proctable.ProcedureId = 104
	ProcWatch   proctable.ProcedureId = 105
	ProcUnwatch proctable.ProcedureId = 106
)

// RegisterProcedures installs the RDB's RPC surface into the shared
// proctable. Called once at startup after the store is constructed.
func RegisterProcedures(store *Store) {
	proctable.Register(proctable.Descriptor{
		Id: ProcCreate, Name: "mxrdb::create", Permission: "rdb.write",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			key, rest, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			if len(rest) < 5 {
				return nil, xerrors.ErrWrongByteCount
			}
			typ := ValueType(rest[0])
			count := binary.LittleEndian.Uint32(rest[1:5])
			value, err := wire.DecodeGenericBlob(rest[5:])
			if err != nil {
				return nil, err
			}
			if err := store.Create(key, typ, count, value); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcRead, Name: "mxrdb::read", Permission: "rdb.read",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			key, _, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			value, _, err := store.Read(key)
			if err != nil {
				return nil, err
			}
			return wire.EncodeGenericBlob(value), nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcWrite, Name: "mxrdb::write", Permission: "rdb.write",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			key, rest, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			value, err := wire.DecodeGenericBlob(rest)
			if err != nil {
				return nil, err
			}
			if err := store.Write(key, value); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcErase, Name: "mxrdb::erase", Permission: "rdb.write", Void: true,
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			key, _, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			return nil, store.Erase(key)
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcStat, Name: "mxrdb::stat", Permission: "rdb.read",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			key, _, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			meta, err := store.Stat(key)
			if err != nil {
				return nil, err
			}
			return encodeMeta(meta), nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcWatch, Name: "mxrdb::watch", Permission: "rdb.read",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			pat, _, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			eventName := store.Watch(pat)
			return wire.EncodeGenericBlob([]byte(eventName)), nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcUnwatch, Name: "mxrdb::unwatch", Permission: "rdb.read", Void: true,
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			pat, _, err := decodeKey(payload)
			if err != nil {
				return nil, err
			}
			store.Unwatch(pat)
			return nil, nil
		},
	})
}

// decodeKey reads a {KeyLen:u32, Key[KeyLen]} prefix and returns the
// remaining bytes for the caller to decode further.
func decodeKey(payload []byte) (key string, rest []byte, err error) {
	if len(payload) < 4 {
		return "", nil, xerrors.ErrWrongByteCount
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	if uint32(len(payload)-4) < n {
		return "", nil, xerrors.ErrWrongByteCount
	}
	key = string(payload[4 : 4+n])
	rest = payload[4+n:]
	return key, rest, nil
}

func encodeMeta(m Meta) []byte {
	buf := make([]byte, 1+4+4+8+8)
	buf[0] = byte(m.Type)
	binary.LittleEndian.PutUint32(buf[1:5], m.ElemSize)
	binary.LittleEndian.PutUint32(buf[5:9], m.Count)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(m.Created))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(m.Modified))
	return buf
}
