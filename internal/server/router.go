package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkarren/botherd/internal/metrics"
	"github.com/mkarren/botherd/internal/supervisor"
	"github.com/mkarren/botherd/internal/worker"
)

// Router exposes read-only observation endpoints for a running supervisor.
// Endpoints:
//
//	GET {basePath}/status        all worker statuses
//	GET {basePath}/status/:name  one worker status
//	GET {basePath}/healthz       liveness probe
//	GET {basePath}/metrics       Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/status/:name", r.handleStatusOf)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down with http.Server's Close or Shutdown.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	OK      bool `json:"ok"`
	Running int  `json:"running"`
	Total   int  `json:"total"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleStatusOf(c *gin.Context) {
	st, err := r.sup.StatusOf(c.Param("name"))
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleHealthz(c *gin.Context) {
	sts := r.sup.Status()
	running := 0
	for _, st := range sts {
		if st.State == worker.StateRunning {
			running++
		}
	}
	writeJSON(c, http.StatusOK, healthResp{OK: true, Running: running, Total: len(sts)})
}
