// Package proctable is the "build-time-generated mapping u16 -> (name,
// signature)" spec §6 requires both peers share. Each subsystem (rdb,
// eventbus, runcontrol, ...) registers its procedures into one process-
// wide table at init time; the RPC server dispatches purely by numeric
// ProcedureId (§4.3) and the RPC client resolves names to ids from the
// same table, so a generated client build and this server always agree
// on the numbering as long as both import the same subsystem packages.
package proctable

import (
	"fmt"
	"sync"
)

type ProcedureId = uint16

// Handler is the server-side body of a procedure. CallerId is the
// thread-local "current caller" spec §3 describes, threaded explicitly
// here instead (the §9 Design Note's preferred CallerContext shape)
// rather than via goroutine-local state.
type Handler func(callerId uint64, payload []byte) (resp []byte, err error)

// Descriptor is one row of the procedure table.
type Descriptor struct {
	Id         ProcedureId
	Name       string
	Permission string // empty means no tag required
	Void       bool   // true if the procedure never produces a response payload
	Handler    Handler
}

var (
	mu      sync.RWMutex
	byId    = map[ProcedureId]*Descriptor{}
	byName  = map[string]ProcedureId{}
)

// Register installs d into the shared table. It panics on a duplicate id
// or name — those are programmer errors caught at process startup, not
// runtime conditions callers need to handle.
func Register(d Descriptor) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := byId[d.Id]; ok {
		panic(fmt.Sprintf("proctable: duplicate procedure id %d (%s)", d.Id, d.Name))
	}
	if _, ok := byName[d.Name]; ok {
		panic(fmt.Sprintf("proctable: duplicate procedure name %q", d.Name))
	}
	cp := d
	byId[d.Id] = &cp
	byName[d.Name] = d.Id
}

// Lookup resolves a procedure by id, as the server's dispatcher does on
// every frame.
func Lookup(id ProcedureId) (*Descriptor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := byId[id]
	return d, ok
}

// Id resolves a procedure name to its id, as a client does once per
// distinct procedure it calls.
func Id(name string) (ProcedureId, bool) {
	mu.RLock()
	defer mu.RUnlock()
	id, ok := byName[name]
	return id, ok
}
