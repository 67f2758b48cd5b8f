package rdb

import (
	"encoding/binary"

	"mulex/internal/wire"
	"mulex/internal/xerrors"
	"mulex/rpcclient"
)

// Proxy is the client-side handle onto a remote RDB (§4.5): Go has no
// operator overloading for the original's map-like indexing sugar, so a
// Key() call stands in for it.
type Proxy struct {
	rpc *rpcclient.Client
}

func NewProxy(rpc *rpcclient.Client) *Proxy {
	return &Proxy{rpc: rpc}
}

// KeyHandle is a bound reference to one RDB path, grouping the handful of
// RPCs that operate on it.
type KeyHandle struct {
	proxy *Proxy
	path  string
}

func (p *Proxy) Key(path string) *KeyHandle {
	return &KeyHandle{proxy: p, path: path}
}

func encodeKeyArg(key string) []byte {
	buf := make([]byte, 4+len(key))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	copy(buf[4:], key)
	return buf
}

func (k *KeyHandle) Create(t ValueType, count uint32, value []byte) error {
	payload := encodeKeyArg(k.path)
	payload = append(payload, byte(t))
	cbuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(cbuf, count)
	payload = append(payload, cbuf...)
	payload = append(payload, wire.EncodeGenericBlob(value)...)

	_, status, err := k.proxy.rpc.Call("mxrdb::create", payload)
	return statusErr(status, err)
}

func (k *KeyHandle) Read() ([]byte, error) {
	resp, status, err := k.proxy.rpc.Call("mxrdb::read", encodeKeyArg(k.path))
	if err := statusErr(status, err); err != nil {
		return nil, err
	}
	return wire.DecodeGenericBlob(resp)
}

func (k *KeyHandle) Write(value []byte) error {
	payload := append(encodeKeyArg(k.path), wire.EncodeGenericBlob(value)...)
	_, status, err := k.proxy.rpc.Call("mxrdb::write", payload)
	return statusErr(status, err)
}

func (k *KeyHandle) Erase() error {
	_, status, err := k.proxy.rpc.Call("mxrdb::erase", encodeKeyArg(k.path))
	return statusErr(status, err)
}

func (k *KeyHandle) Stat() (Meta, error) {
	resp, status, err := k.proxy.rpc.Call("mxrdb::stat", encodeKeyArg(k.path))
	if err := statusErr(status, err); err != nil {
		return Meta{}, err
	}
	if len(resp) < 25 {
		return Meta{}, xerrors.ErrWrongByteCount
	}
	return Meta{
		Type:     ValueType(resp[0]),
		ElemSize: binary.LittleEndian.Uint32(resp[1:5]),
		Count:    binary.LittleEndian.Uint32(resp[5:9]),
		Created:  int64(binary.LittleEndian.Uint64(resp[9:17])),
		Modified: int64(binary.LittleEndian.Uint64(resp[17:25])),
	}, nil
}

// Watch registers a glob pattern and returns the event name to subscribe
// to for change notifications (§4.5).
func (k *KeyHandle) Watch() (string, error) {
	resp, status, err := k.proxy.rpc.Call("mxrdb::watch", encodeKeyArg(k.path))
	if err := statusErr(status, err); err != nil {
		return "", err
	}
	name, err := wire.DecodeGenericBlob(resp)
	if err != nil {
		return "", err
	}
	return string(name), nil
}

func (k *KeyHandle) Unwatch() error {
	_, status, err := k.proxy.rpc.Call("mxrdb::unwatch", encodeKeyArg(k.path))
	return statusErr(status, err)
}

func statusErr(status wire.Status, err error) error {
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOK:
		return nil
	case wire.StatusWrongArgs:
		return xerrors.ErrWrongByteCount
	case wire.StatusTimeout:
		return xerrors.ErrDisconnected
	default:
		return nil
	}
}
