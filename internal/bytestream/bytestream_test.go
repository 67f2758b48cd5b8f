package bytestream

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lenPrefixedInfo() HeaderInfo {
	return HeaderInfo{
		HeaderSize: 4,
		PayloadSize: func(header []byte) (int, error) {
			return int(binary.LittleEndian.Uint32(header)), nil
		},
	}
}

func TestFetchWholeFrameInOneAppend(t *testing.T) {
	bs := New(64)
	frame := make([]byte, 4+3)
	binary.LittleEndian.PutUint32(frame, 3)
	copy(frame[4:], "abc")

	require.True(t, bs.Append(frame))

	out, ok := bs.Fetch(lenPrefixedInfo())
	require.True(t, ok)
	require.Equal(t, frame, out)
}

func TestFetchBlocksUntilFrameComplete(t *testing.T) {
	bs := New(64)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 3)

	done := make(chan []byte, 1)
	go func() {
		out, ok := bs.Fetch(lenPrefixedInfo())
		if ok {
			done <- out
		} else {
			done <- nil
		}
	}()

	require.True(t, bs.Append(header))
	select {
	case <-done:
		t.Fatal("Fetch returned before the payload arrived")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, bs.Append([]byte("xyz")))
	select {
	case out := <-done:
		require.Equal(t, append(header, []byte("xyz")...), out)
	case <-time.After(time.Second):
		t.Fatal("Fetch never returned")
	}
}

func TestUnblockWakesBlockedFetch(t *testing.T) {
	bs := New(64)
	done := make(chan bool, 1)
	go func() {
		_, ok := bs.Fetch(lenPrefixedInfo())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	bs.Unblock()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Fetch did not wake on Unblock")
	}
}

func TestAppendReturnsFalseAfterUnblock(t *testing.T) {
	bs := New(4)
	bs.Unblock()
	require.False(t, bs.Append([]byte("too big for this stream")))
}

func TestFetchRejectsFrameLargerThanCapacity(t *testing.T) {
	bs := New(8)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 1000)
	require.True(t, bs.Append(header))

	_, ok := bs.Fetch(lenPrefixedInfo())
	require.False(t, ok)
}
