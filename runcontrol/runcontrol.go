// Package runcontrol implements the run state machine sitting atop RDB
// (§4.7/§6): a small set of reserved paths under "/system/run" and two RPC
// procedures that move between them, guarding against invalid transitions.
package runcontrol

import (
	"encoding/binary"
	"time"

	"mulex/internal/logging"
	"mulex/internal/proctable"
	"mulex/internal/xerrors"
	"mulex/rdb"
)

// Status values for "/system/run/status" (§6). STARTING/STOPPING are
// reserved for a future asynchronous start/stop sequence but never
// materialize today — every transition here is synchronous.
type Status uint32

const (
	StatusStopped Status = iota
	StatusRunning
	StatusStarting
	StatusStopping
)

const (
	pathStatus    = "/system/run/status"
	pathNumber    = "/system/run/number"
	pathTimestamp = "/system/run/timestamp"
)

const (
	ProcStart  proctable.ProcedureId = 300
	ProcStop   proctable.ProcedureId = 301
	ProcStatus proctable.ProcedureId = 302
)

// Controller owns the run-control keys in store. New creates any that are
// absent, so a store loaded from a snapshot that predates a run still works.
type Controller struct {
	store *rdb.Store
}

func New(store *rdb.Store) *Controller {
	c := &Controller{store: store}
	c.ensureKeys()
	return c
}

func (c *Controller) ensureKeys() {
	zero := make([]byte, 4)
	_ = c.store.CreateIfAbsent(pathStatus, rdb.TypeU32, 0, zero)
	_ = c.store.CreateIfAbsent(pathNumber, rdb.TypeU32, 0, zero)
	_ = c.store.CreateIfAbsent(pathTimestamp, rdb.TypeI64, 0, make([]byte, 8))
}

// Status returns the current run-control state.
func (c *Controller) Status() Status {
	return c.status()
}

func (c *Controller) status() Status {
	v, _, err := c.store.Read(pathStatus)
	if err != nil || len(v) < 4 {
		return StatusStopped
	}
	return Status(binary.LittleEndian.Uint32(v))
}

// Start transitions STOPPED -> RUNNING, bumping the run number and
// stamping the current time. Refuses if already running (§3 invariant:
// run-control is a strict two-state machine from the caller's point of
// view, even though the type reserves STARTING/STOPPING).
func (c *Controller) Start() error {
	if c.status() != StatusStopped {
		return xerrors.ErrInvalidRunTransition
	}

	numBuf, _, err := c.store.Read(pathNumber)
	if err != nil {
		return err
	}
	next := binary.LittleEndian.Uint32(numBuf) + 1
	nextBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(nextBuf, next)
	if err := c.store.Write(pathNumber, nextBuf); err != nil {
		return err
	}

	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, uint64(time.Now().Unix()))
	if err := c.store.Write(pathTimestamp, tsBuf); err != nil {
		return err
	}

	statusBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(statusBuf, uint32(StatusRunning))
	if err := c.store.Write(pathStatus, statusBuf); err != nil {
		return err
	}
	logging.Infof("runcontrol: run %d started", next)
	return nil
}

// Stop transitions RUNNING -> STOPPED.
func (c *Controller) Stop() error {
	if c.status() != StatusRunning {
		return xerrors.ErrInvalidRunTransition
	}
	statusBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(statusBuf, uint32(StatusStopped))
	if err := c.store.Write(pathStatus, statusBuf); err != nil {
		return err
	}
	logging.Infof("runcontrol: run stopped")
	return nil
}

// RegisterProcedures installs the RPC surface over Controller.
func RegisterProcedures(ctrl *Controller) {
	proctable.Register(proctable.Descriptor{
		Id: ProcStart, Name: "mxrun::start", Void: true,
		Handler: func(_ uint64, _ []byte) ([]byte, error) { return nil, ctrl.Start() },
	})
	proctable.Register(proctable.Descriptor{
		Id: ProcStop, Name: "mxrun::stop", Void: true,
		Handler: func(_ uint64, _ []byte) ([]byte, error) { return nil, ctrl.Stop() },
	})
	proctable.Register(proctable.Descriptor{
		Id: ProcStatus, Name: "mxrun::status",
		Handler: func(_ uint64, _ []byte) ([]byte, error) {
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(ctrl.status()))
			return buf, nil
		},
	})
}
