// Package metrics mirrors rcproxy's core/stats.go ProxyStats: a flat
// struct of prometheus vectors built once at startup and updated inline
// by the transports and the RDB. They are exposed only through webstatus's
// /metrics endpoint; nothing copies them into the key-value store, so the
// "/system/rdb/statistics/..." paths are not populated. The per-client
// "/system/backends/<hex-cid>/statistics/event/..." rows come from the
// event bus's own counters (eventbus/stats.go), not from these.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Stats struct {
	TotalConnections *prometheus.CounterVec
	CurrConnections  *prometheus.GaugeVec

	RPCRequests    *prometheus.CounterVec
	RPCLatency     *prometheus.HistogramVec
	RPCWrongArgs   *prometheus.CounterVec

	EventFramesIn  *prometheus.CounterVec
	EventFramesOut *prometheus.CounterVec
	EventEmits     *prometheus.CounterVec

	RdbReads     prometheus.Counter
	RdbWrites    prometheus.Counter
	RdbKeys      prometheus.Gauge
	RdbAllocated prometheus.Gauge
	RdbSize      prometheus.Gauge
}

// Global is the process-wide stats instance, analogous to the teacher's
// package-level GlobalStats.
var Global = New("mulex")

func New(namespace string) *Stats {
	return &Stats{
		TotalConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "total_connections", Help: "total accepted connections",
		}, []string{"subsystem"}),
		CurrConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "curr_connections", Help: "current open connections",
		}, []string{"subsystem"}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_requests_total", Help: "rpc requests by procedure",
		}, []string{"procedure"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rpc_latency_ms", Help: "rpc dispatch latency",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"procedure"}),
		RPCWrongArgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_wrong_args_total", Help: "rpc calls rejected with WRONG_ARGS",
		}, []string{"procedure"}),
		EventFramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_frames_in_total", Help: "event frames received",
		}, []string{"event"}),
		EventFramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_frames_out_total", Help: "event frames relayed to subscribers",
		}, []string{"event"}),
		EventEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_emits_total", Help: "emit() calls, including those with zero subscribers",
		}, []string{"event"}),
		RdbReads:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rdb_reads_total", Help: "rdb entry reads"}),
		RdbWrites: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rdb_writes_total", Help: "rdb entry writes"}),
		RdbKeys:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "rdb_keys", Help: "number of live rdb keys"}),
		RdbAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rdb_arena_allocated_bytes", Help: "bytes used in the rdb arena",
		}),
		RdbSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rdb_arena_size_bytes", Help: "total rdb arena capacity",
		}),
	}
}

// Collectors returns every collector so a caller (webstatus) can register
// them with a prometheus.Registerer without this package importing one.
func (s *Stats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.TotalConnections, s.CurrConnections,
		s.RPCRequests, s.RPCLatency, s.RPCWrongArgs,
		s.EventFramesIn, s.EventFramesOut, s.EventEmits,
		s.RdbReads, s.RdbWrites, s.RdbKeys, s.RdbAllocated, s.RdbSize,
	}
}
