package rdb

import (
	"sync"

	"mulex/internal/metrics"
	"mulex/internal/wire"
	"mulex/internal/xerrors"
	"mulex/pattern"
)

// EmitFunc delivers a named event with an arbitrary payload to every
// current subscriber, returning whether at least one subscriber received
// it. The store never imports the event bus: the server wires this in at
// startup (§9 Design Note), keeping rdb <-> eventbus a one-way dependency.
type EmitFunc func(eventName string, payload []byte) bool

// RegisterFunc announces an event name to the event bus's registry so it
// gets a server-assigned id before anything is emitted under it. RdbWatch
// does exactly this in the original (`EvtRegister(event_name)`) before
// handing the watch name back to the caller.
type RegisterFunc func(eventName string) bool

const (
	eventKeyCreated = "mxrdb::keycreated"
	eventKeyDeleted = "mxrdb::keydeleted"
)

// Meta is the read-only shape/timing snapshot returned alongside a value.
type Meta struct {
	Type     ValueType
	ElemSize uint32
	Count    uint32
	Created  int64
	Modified int64
}

// Store is the process-wide typed key-value store (§3/§4.5).
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entryRef
	arena    *arena
	watches  *watchSet
	emit     EmitFunc
	register RegisterFunc
}

// NewStore allocates a store with an arena of the given initial capacity
// (config.Rdb.ArenaSize, §6).
func NewStore(arenaCapacity int64) *Store {
	return &Store{
		entries: map[string]*entryRef{},
		arena:   newArena(int(arenaCapacity)),
		watches: newWatchSet(),
	}
}

// SetEmitter installs the callback used for lifecycle and watch events.
// Must be called once, before the store is reachable from RPC handlers.
func (s *Store) SetEmitter(fn EmitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = fn
}

func (s *Store) emitLocked(name string, payload []byte) {
	if s.emit != nil {
		s.emit(name, payload)
	}
}

// SetRegistrar installs the callback used to announce newly-minted watch
// event names (and the two lifecycle event names) to the event bus's
// registry. Must be called once, before the store is reachable from RPC
// handlers, alongside SetEmitter.
func (s *Store) SetRegistrar(fn RegisterFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register = fn
	if s.register != nil {
		s.register(eventKeyCreated)
		s.register(eventKeyDeleted)
	}
}

// Create installs a new entry. count == 0 means scalar, count > 0 an array
// of that many elements; value must be exactly size*max(count,1) bytes
// (§3 invariant). Returns xerrors.ErrKeyExists if the key is already
// present — RDB never implicitly reshapes or overwrites a type on create.
func (s *Store) Create(key string, t ValueType, count uint32, value []byte) error {
	if !t.Valid() {
		return xerrors.ErrReshapeNotAllowed
	}
	elemSize, err := t.ElemSize()
	if err != nil {
		return err
	}
	want := ValueLen(elemSize, count)
	if uint32(len(value)) != want {
		return xerrors.ErrWrongByteCount
	}

	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return xerrors.ErrKeyExists
	}
	total := entryHeaderSize + int(want)
	offset := s.arena.alloc(total)
	now := nowMillis()
	s.arena.writeHeader(offset, t, elemSize, count, now, now)
	copy(s.arena.valueBytes(offset, want), value)

	ref := &entryRef{offset: offset, elemSize: elemSize, count: count, typ: t, created: now, block: total}
	s.entries[key] = ref
	s.mu.Unlock()

	metrics.Global.RdbKeys.Inc()
	metrics.Global.RdbAllocated.Add(float64(total))
	s.emitLocked(eventKeyCreated, []byte(key))
	s.watches.Trigger(key, value, s.emit)
	return nil
}

// CreateIfAbsent is Create's idempotent variant, used by the statistics
// bridge (eventbus) which must not fail just because a prior tick already
// created the row.
func (s *Store) CreateIfAbsent(key string, t ValueType, count uint32, value []byte) error {
	if err := s.Create(key, t, count, value); err != nil && err != xerrors.ErrKeyExists {
		return err
	}
	return nil
}

// Read copies out an entry's current value and metadata.
func (s *Store) Read(key string) ([]byte, Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.entries[key]
	if !ok {
		return nil, Meta{}, xerrors.ErrKeyNotFound
	}

	ref.mu.RLock()
	defer ref.mu.RUnlock()
	t, elemSize, count, created, modified := s.arena.readHeader(ref.offset)
	out := make([]byte, ValueLen(elemSize, count))
	copy(out, s.arena.valueBytes(ref.offset, ValueLen(elemSize, count)))
	metrics.Global.RdbReads.Inc()
	return out, Meta{Type: t, ElemSize: elemSize, Count: count, Created: created, Modified: modified}, nil
}

// Write replaces an entry's value in place. The byte count must match the
// entry's fixed shape exactly (§3: "the type and shape of an entry are
// fixed at creation and never change") — mismatches are rejected without
// partial writes.
func (s *Store) Write(key string, value []byte) error {
	s.mu.RLock()
	ref, ok := s.entries[key]
	if !ok {
		s.mu.RUnlock()
		return xerrors.ErrKeyNotFound
	}

	ref.mu.Lock()
	if uint32(len(value)) != ref.valueLen() {
		ref.mu.Unlock()
		s.mu.RUnlock()
		return xerrors.ErrWrongByteCount
	}
	now := nowMillis()
	copy(s.arena.valueBytes(ref.offset, ref.valueLen()), value)
	s.arena.touchModified(ref.offset, now)
	ref.mu.Unlock()
	s.mu.RUnlock()

	metrics.Global.RdbWrites.Inc()
	s.watches.Trigger(key, value, s.emit)
	return nil
}

// Erase removes an entry and returns its block to the free list. Watches
// still fire, with the key and a zero-length value, since the value at the
// key no longer exists after the mutation.
func (s *Store) Erase(key string) error {
	s.mu.Lock()
	ref, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return xerrors.ErrKeyNotFound
	}
	delete(s.entries, key)
	s.arena.release(ref.offset, ref.block)
	s.mu.Unlock()

	metrics.Global.RdbKeys.Dec()
	s.emitLocked(eventKeyDeleted, []byte(key))
	s.watches.Trigger(key, nil, s.emit)
	return nil
}

// Stat returns an entry's shape without copying its value.
func (s *Store) Stat(key string) (Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.entries[key]
	if !ok {
		return Meta{}, xerrors.ErrKeyNotFound
	}
	ref.mu.RLock()
	defer ref.mu.RUnlock()
	t, elemSize, count, created, modified := s.arena.readHeader(ref.offset)
	return Meta{Type: t, ElemSize: elemSize, Count: count, Created: created, Modified: modified}, nil
}

// Watch registers a glob pattern (pattern.Match grammar, §4.5) for
// create/write/delete notification under the reserved
// "mxevt::rdbw-<hex64>" event name.
func (s *Store) Watch(globPattern string) string {
	s.watches.Add(globPattern)
	name := pattern.WatchEventName(globPattern)
	if s.register != nil {
		s.register(name)
	}
	return name
}

// Unwatch drops a previously registered pattern immediately, instead of
// waiting for dangling-watch GC.
func (s *Store) Unwatch(globPattern string) {
	s.watches.Remove(globPattern)
}

// KeyCount is used by the webstatus surface and snapshot header.
func (s *Store) KeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ArenaUsage reports bytes in use and total capacity for metrics/snapshot.
func (s *Store) ArenaUsage() (used, capacity int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.arena.used), int64(len(s.arena.buf))
}

// GenericBlobValue wraps value per §3's GenericBlob encoding, for handlers
// that return raw RDB reads over RPC.
func GenericBlobValue(value []byte) []byte {
	return wire.EncodeGenericBlob(value)
}
