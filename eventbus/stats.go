package eventbus

import (
	"encoding/binary"
	"fmt"
	"time"

	"mulex/internal/logging"
	"mulex/rdb"
)

// RunStatsBridge drains src's per-client byte counters into kv once a
// second, at the reserved paths
// "/system/backends/<hex-cid>/statistics/event/{read,write}" (§6). Ghost
// clients (§9 Supplemented Features) are skipped: they never show up in
// operator-facing statistics. Runs until stop is closed.
func (s *Server) RunStatsBridge(src StatsSource, kv KVWriter, stop <-chan struct{}) {
	ticker := time.NewTicker(statsFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.flushOnce(src, kv)
		}
	}
}

func (s *Server) flushOnce(src StatsSource, kv KVWriter) {
	for _, cid := range src.ConnectedClients() {
		if s.IsGhost(cid) {
			continue
		}
		read, written, ok := src.StatsFor(cid)
		if !ok {
			continue
		}
		base := fmt.Sprintf("/system/backends/%016x/statistics/event", cid)
		if err := s.writeCounter(kv, base+"/read", read); err != nil {
			logging.ErrIf(err)
		}
		if err := s.writeCounter(kv, base+"/write", written); err != nil {
			logging.ErrIf(err)
		}
	}
}

func (s *Server) writeCounter(kv KVWriter, key string, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	if err := kv.CreateIfAbsent(key, rdb.TypeU64, 0, buf); err != nil {
		return err
	}
	return kv.Write(key, buf)
}
