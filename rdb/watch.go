package rdb

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/petar/GoLLRB/llrb"

	"mulex/internal/xerrors"
	"mulex/pattern"
)

// encodeWatchPayload builds the {Key:bounded-string, Size:u64, Bytes[Size]}
// wire shape a watch-triggered event carries (§4.5, §8 scenario 5): key is
// packed into the same fixed BoundedStringSize-byte, NUL-padded buffer
// TypeString entries use, followed by the value's length and bytes.
func encodeWatchPayload(key string, value []byte) []byte {
	out := make([]byte, BoundedStringSize+8+len(value))
	copy(out[:BoundedStringSize], key)
	binary.LittleEndian.PutUint64(out[BoundedStringSize:BoundedStringSize+8], uint64(len(value)))
	copy(out[BoundedStringSize+8:], value)
	return out
}

// DecodeWatchPayload reverses encodeWatchPayload: it is exported so a
// subscriber (or a test standing in for one) can recover the triggering key
// and value from a watch event's raw payload.
func DecodeWatchPayload(payload []byte) (key string, value []byte, err error) {
	if len(payload) < BoundedStringSize+8 {
		return "", nil, xerrors.ErrIncompleteFrame
	}
	key = boundedStringToGo(payload[:BoundedStringSize])
	size := binary.LittleEndian.Uint64(payload[BoundedStringSize : BoundedStringSize+8])
	rest := payload[BoundedStringSize+8:]
	if uint64(len(rest)) < size {
		return "", nil, xerrors.ErrIncompleteFrame
	}
	return key, rest[:size], nil
}

// boundedStringToGo trims the NUL padding off a fixed-width bounded-string
// buffer.
func boundedStringToGo(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// danglingWatchTTL is the grace period spec §4.5 gives a pattern with no
// live subscriber before it is garbage-collected: "a dangling watch older
// than 5s with no subscribers is removed on the next emit attempt."
const danglingWatchTTL = 5 * time.Second

// watchItem is one registered glob pattern, ordered by lastActivity in the
// watchSet's tree so a future sweep (or inspection) can find the stalest
// entries without a full map scan — the ordering rcproxy's message.go
// keeps for its request-timeout tree, repurposed here for watch patterns.
type watchItem struct {
	pattern      string
	lastActivity time.Time
}

func (w *watchItem) Less(than llrb.Item) bool {
	o := than.(*watchItem)
	if w.lastActivity.Equal(o.lastActivity) {
		return w.pattern < o.pattern
	}
	return w.lastActivity.Before(o.lastActivity)
}

// watchSet tracks every pattern a client has asked to watch and bridges
// RDB mutations to the event bus via an injected emit function (§9 Design
// Note: the RDB never imports the event bus directly).
type watchSet struct {
	mu      sync.Mutex
	byName  map[string]*watchItem
	byOrder *llrb.LLRB
	ttl     time.Duration
}

func newWatchSet() *watchSet {
	return &watchSet{
		byName:  map[string]*watchItem{},
		byOrder: llrb.New(),
		ttl:     danglingWatchTTL,
	}
}

// danglingWindowForTest shortens the GC grace period so tests don't need
// to sleep for the production 5s default.
func (w *watchSet) danglingWindowForTest(d time.Duration) {
	w.mu.Lock()
	w.ttl = d
	w.mu.Unlock()
}

// Add registers a pattern if it isn't already watched. Idempotent.
func (w *watchSet) Add(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byName[p]; ok {
		return
	}
	item := &watchItem{pattern: p, lastActivity: time.Now()}
	w.byName[p] = item
	w.byOrder.InsertNoReplace(item)
}

// Remove unregisters a pattern explicitly (a client may unwatch before the
// TTL would otherwise collect it).
func (w *watchSet) Remove(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if item, ok := w.byName[p]; ok {
		delete(w.byName, p)
		w.byOrder.Delete(item)
	}
}

// Trigger runs key through every registered pattern, invoking emit for each
// match. emit returns whether the event had at least one live subscriber;
// patterns with no subscriber that have been idle past danglingWatchTTL are
// dropped.
func (w *watchSet) Trigger(key string, payload []byte, emit func(eventName string, payload []byte) bool) {
	w.mu.Lock()
	matched := make([]string, 0, 4)
	for p := range w.byName {
		if pattern.Match(p, key) {
			matched = append(matched, p)
		}
	}
	w.mu.Unlock()

	wirePayload := encodeWatchPayload(key, payload)
	for _, p := range matched {
		delivered := emit(pattern.WatchEventName(p), wirePayload)
		now := time.Now()

		w.mu.Lock()
		item, ok := w.byName[p]
		if !ok {
			w.mu.Unlock()
			continue
		}
		if delivered {
			w.byOrder.Delete(item)
			item.lastActivity = now
			w.byOrder.InsertNoReplace(item)
		} else if now.Sub(item.lastActivity) > w.ttl {
			delete(w.byName, p)
			w.byOrder.Delete(item)
		}
		w.mu.Unlock()
	}
}
