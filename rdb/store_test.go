package rdb

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestCreateReadWriteScalar(t *testing.T) {
	s := NewStore(1 << 12)

	require.NoError(t, s.Create("/test/value", TypeU32, 0, u32(42)))
	v, meta, err := s.Read("/test/value")
	require.NoError(t, err)
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(v))
	require.Equal(t, TypeU32, meta.Type)
	require.Equal(t, uint32(0), meta.Count)

	require.NoError(t, s.Write("/test/value", u32(7)))
	v, _, err = s.Read("/test/value")
	require.NoError(t, err)
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(v))
}

func TestCreateTwiceFails(t *testing.T) {
	s := NewStore(1 << 12)
	require.NoError(t, s.Create("/dup", TypeI8, 0, []byte{1}))
	err := s.Create("/dup", TypeI8, 0, []byte{2})
	require.Error(t, err)
}

func TestWriteWrongSizeRejected(t *testing.T) {
	s := NewStore(1 << 12)
	require.NoError(t, s.Create("/num", TypeU32, 0, u32(1)))
	err := s.Write("/num", []byte{1, 2})
	require.Error(t, err)

	// the rejected write must not have touched the value
	v, _, err := s.Read("/num")
	require.NoError(t, err)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(v))
}

func TestArrayShape(t *testing.T) {
	s := NewStore(1 << 12)
	values := make([]byte, 4*5)
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint32(values[i*4:], uint32(i))
	}
	require.NoError(t, s.Create("/arr", TypeU32, 5, values))

	out, meta, err := s.Read("/arr")
	require.NoError(t, err)
	require.Equal(t, uint32(5), meta.Count)
	require.Equal(t, values, out)
}

func TestEraseFreesAndRejectsFurtherAccess(t *testing.T) {
	s := NewStore(1 << 12)
	require.NoError(t, s.Create("/gone", TypeBool, 0, []byte{1}))
	require.NoError(t, s.Erase("/gone"))

	_, _, err := s.Read("/gone")
	require.Error(t, err)

	// the freed block should be reusable by a new create of equal size
	require.NoError(t, s.Create("/gone", TypeBool, 0, []byte{0}))
}

func TestWatchFiresOnMatchingWrite(t *testing.T) {
	s := NewStore(1 << 12)
	var delivered []byte
	var eventName string
	s.SetEmitter(func(name string, payload []byte) bool {
		// Create also emits mxrdb::keycreated through this emitter; only
		// the watch event is of interest here.
		if name == eventName {
			delivered = payload
		}
		return true
	})

	eventName = s.Watch("/system/run/*")
	require.Contains(t, eventName, "mxevt::rdbw-")

	require.NoError(t, s.Create("/system/run/status", TypeU32, 0, u32(1)))
	require.NotNil(t, delivered)

	key, value, err := DecodeWatchPayload(delivered)
	require.NoError(t, err)
	require.Equal(t, "/system/run/status", key)
	require.Equal(t, u32(1), value)

	delivered = nil
	require.NoError(t, s.Create("/other/key", TypeU32, 0, u32(1)))
	require.Nil(t, delivered)
}

func TestDanglingWatchGarbageCollected(t *testing.T) {
	s := NewStore(1 << 12)
	s.watches.danglingWindowForTest(10 * time.Millisecond)
	s.SetEmitter(func(name string, payload []byte) bool { return false })

	s.Watch("/gc/*")
	require.NoError(t, s.Create("/gc/one", TypeU8, 0, []byte{1}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Create("/gc/two", TypeU8, 0, []byte{1}))

	s.watches.mu.Lock()
	_, stillWatched := s.watches.byName["/gc/*"]
	s.watches.mu.Unlock()
	require.False(t, stillWatched)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewStore(1 << 12)
	require.NoError(t, s.Create("/a", TypeU32, 0, u32(11)))
	require.NoError(t, s.Create("/b", TypeI64, 0, make([]byte, 8)))

	path := t.TempDir() + "/snap.bin"
	require.NoError(t, s.Save(path))
	defer os.Remove(path)

	loaded := NewStore(1 << 12)
	require.NoError(t, loaded.Load(path))

	v, meta, err := loaded.Read("/a")
	require.NoError(t, err)
	require.Equal(t, uint32(11), binary.LittleEndian.Uint32(v))
	require.Equal(t, TypeU32, meta.Type)
	require.Equal(t, 2, loaded.KeyCount())
}
