package outqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushPopIsLIFO(t *testing.T) {
	s := New()
	s.Push([]byte("first"))
	s.Push([]byte("second"))
	s.Push([]byte("third"))

	v, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, "third", string(v))

	v, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, "second", string(v))

	v, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, "first", string(v))

	require.Equal(t, 0, s.Len())
}

func TestPopBlocksUntilPush(t *testing.T) {
	s := New()
	done := make(chan []byte, 1)
	go func() {
		v, ok := s.Pop()
		if ok {
			done <- v
		} else {
			done <- nil
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(30 * time.Millisecond):
	}

	s.Push([]byte("value"))
	select {
	case v := <-done:
		require.Equal(t, "value", string(v))
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}

func TestUnblockWakesPop(t *testing.T) {
	s := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := s.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	s.Unblock()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Unblock")
	}
}
