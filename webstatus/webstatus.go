// Package webstatus is a thin, read-only HTTP surface over the server's
// vitals: a /status JSON endpoint, Prometheus's /metrics, and pprof under
// /debug/pprof. It mirrors rcproxy's web/ package (gin + gin-contrib/pprof)
// but exposes server status instead of proxy routing tables — an ambient
// operational surface, not one of the core subsystems (§1 Non-goals: no
// HTTP bridge to the RPC/event/RDB surface itself).
package webstatus

import (
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mulex/internal/metrics"
	"mulex/rdb"
	"mulex/runcontrol"
)

// Dependencies is the set of subsystems the status page reports on.
type Dependencies struct {
	Store *rdb.Store
	Run   *runcontrol.Controller
}

// New builds the gin engine. Registers metrics.Global's collectors with a
// dedicated registry so repeated calls (e.g. in tests) don't panic on
// duplicate registration the way the default global registry would.
func New(deps Dependencies) *gin.Engine {
	reg := prometheus.NewRegistry()
	for _, c := range metrics.Global.Collectors() {
		_ = reg.Register(c)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	pprof.Register(r)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	r.GET("/status", func(c *gin.Context) {
		used, capacity := deps.Store.ArenaUsage()
		c.JSON(http.StatusOK, gin.H{
			"rdb_keys":           deps.Store.KeyCount(),
			"rdb_arena_used":     used,
			"rdb_arena_capacity": capacity,
			"run_status":         deps.Run.Status(),
		})
	})

	return r
}
