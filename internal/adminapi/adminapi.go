// Package adminapi is the thin contracts surface the external admin
// collaborator consumes: read-only snapshots of Cache, Filter,
// InstrumentationLog, the allowlist, the auto-update interval and the
// override table, plus the handful of named mutations (allowlist
// add/remove, auto-update interval set, override insert/delete, a
// filter-refresh signal) and a system-health endpoint. The admin UI
// itself, password-hashed auth, and API documentation generation are
// out of scope — this package exposes exactly the contract named in
// the documented external interfaces, nothing more.
//
// Grounded on the teacher's internal/api package for the gin-based
// server shape (engine + http.Server wrapper, SlogRequestLogger
// middleware, an optional shared-secret API key guard) and on
// internal/api/handlers/health.go for the gopsutil-backed system stats
// endpoint; the bulk of the teacher's surface (zones, cluster,
// custom-DNS CRUD, swagger docs) has no analog here and is not
// reproduced.
package adminapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/asgrim/dohward/internal/cache"
	"github.com/asgrim/dohward/internal/config"
	"github.com/asgrim/dohward/internal/filter"
	"github.com/asgrim/dohward/internal/instrumentation"
	"github.com/asgrim/dohward/internal/pipeline"
)

// Server is the admin contracts HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time
}

// Dependencies bundles the live components the handlers read from and
// mutate. LiveFilter returns the current Filter, since the pipeline
// hot-swaps it on reload; the server must never cache a stale pointer.
type Dependencies struct {
	Config       *config.Config
	Cache        *cache.Cache
	LiveFilter   func() *filter.Filter
	Instrumented *instrumentation.Log
	Pipeline     *pipeline.Pipeline
}

// New builds a Server bound to host:port, guarded by an optional
// shared-secret API key (empty disables the guard, matching the
// teacher's own opt-in behavior).
func New(host string, port int, apiKey string, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	h := &handler{deps: deps}
	group := engine.Group("/api/v1")
	if apiKey != "" {
		group.Use(requireAPIKey(apiKey))
	}
	registerRoutes(group, h)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		startedAt: time.Now(),
	}
}

func (s *Server) Addr() string { return s.httpServer.Addr }

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

// requestLogger mirrors the teacher's middleware.SlogRequestLogger:
// one structured line per request, logged after the handler completes
// so the response status is known.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("admin api request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func requireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func registerRoutes(g *gin.RouterGroup, h *handler) {
	g.GET("/health", h.health)

	g.GET("/cache", h.cacheSnapshot)
	g.GET("/filter", h.filterSnapshot)
	g.GET("/instrumentation", h.instrumentationSnapshot)
	g.GET("/allowlist", h.getAllowlist)
	g.GET("/auto-update", h.getAutoUpdate)
	g.GET("/overrides", h.getOverrides)

	g.POST("/allowlist", h.addAllowlist)
	g.DELETE("/allowlist/:name", h.removeAllowlist)
	g.PUT("/auto-update", h.setAutoUpdate)
	g.POST("/overrides", h.setOverride)
	g.DELETE("/overrides/:name", h.removeOverride)
	g.POST("/filter/refresh", h.refreshFilter)
}

type handler struct {
	deps      Dependencies
	startTime time.Time
}

func (h *handler) health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		status["cpu_used_percent"] = pct[0]
	}
	c.JSON(http.StatusOK, status)
}
