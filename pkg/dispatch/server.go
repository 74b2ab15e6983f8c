// Package dispatch implements the Tool Dispatcher (C11): the sole
// synchronous entry point that routes typed operations from external
// transport to every other component (spec §2, §6), grounded on the
// teacher's Echo v5 server (pkg/api/server.go).
package dispatch

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/bmad-run/overseer/pkg/checkpoint"
	"github.com/bmad-run/overseer/pkg/database"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/events"
	"github.com/bmad-run/overseer/pkg/lineage"
	"github.com/bmad-run/overseer/pkg/ports"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/bmad-run/overseer/pkg/secrets"
	"github.com/bmad-run/overseer/pkg/spawn"
	"github.com/bmad-run/overseer/pkg/tunnel"
)

// errNotConfigured is returned by the live-tail WebSocket route when no
// events.ConnectionManager was wired in.
var errNotConfigured = errs.New(errs.Unreachable, "live event-tail stream is not configured", nil)

// Dependencies bundles every component the dispatcher routes operations to.
type Dependencies struct {
	DB               *database.Client
	Registry         *registry.Registry
	Lineage          *lineage.Store
	Checkpoints      *checkpoint.Engine
	Spawns           *spawn.Tracker
	Tunnel           *tunnel.Manager
	Ports            ports.Directory
	Secrets          secrets.Store
	Events           *events.ConnectionManager
	AllowedWSOrigins []string
}

// Server is the Tool Dispatcher's HTTP binding.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	deps       Dependencies
}

// New creates a Server and registers all routes.
func New(deps Dependencies) *Server {
	e := echo.New()
	s := &Server{echo: e, deps: deps}
	e.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/session/initialize", s.sessionInitialize)
	v1.POST("/session/:id/heartbeat", s.sessionHeartbeat)
	v1.POST("/session/:id/context_usage", s.sessionUpdateContextUsage)
	v1.POST("/session/:id/close", s.sessionClose)

	v1.POST("/events/log", s.eventsLog)
	v1.GET("/events/recent/:instance", s.eventsRecent)
	v1.GET("/events/parent_chain/:id", s.eventsParentChain)
	v1.GET("/events/subtree/:id", s.eventsSubtree)

	v1.POST("/checkpoint", s.checkpointCreate)
	v1.GET("/checkpoint/:id", s.checkpointGet)
	v1.GET("/checkpoint", s.checkpointList)
	v1.POST("/checkpoint/cleanup", s.checkpointCleanup)

	v1.POST("/spawn/register", s.spawnRegister)
	v1.POST("/spawn/complete", s.spawnComplete)
	v1.GET("/spawn", s.spawnList)

	v1.GET("/ports/:project/:service", s.portsLookup)

	v1.POST("/tunnel/cname", s.tunnelCreateCNAME)
	v1.DELETE("/tunnel/cname/:id", s.tunnelDeleteCNAME)

	v1.GET("/secrets/:path", s.secretsGet)

	v1.GET("/events/ws", s.eventsWebSocket)
}

// Start starts the HTTP server on addr and blocks until it stops
// (ListenAndServe runs on the calling goroutine); callers run it in its own
// goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status, err := database.Health(reqCtx, s.deps.DB.DB())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "database": status})
}
