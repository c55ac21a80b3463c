// Package ipc is the thin frontend IPC glue: a gin HTTP boundary that
// marshals invoke_plugin_command calls (and a handful of admin-facing
// list/status endpoints) into Orchestrator calls. It is deliberately
// narrow — the GUI/frontend layer is treated as an external collaborator
// — grounded on the teacher's internal/api/plugin_handlers.go route
// shape and gin.H response style.
package ipc

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/orchestrator"
)

// Dispatcher is the narrow Orchestrator surface the IPC boundary needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, pluginID, command string, params []byte) ([]byte, error)
	ListAll() []orchestrator.Snapshot
	FailedPlugins() []orchestrator.FailedPlugin
	Stats(pluginID string) (orchestrator.StatsSnapshot, bool)
	AllStats() []orchestrator.StatsSnapshot
	Disable(pluginID string) error
}

// Server wires an Orchestrator to a gin.Engine.
type Server struct {
	orc    Dispatcher
	engine *gin.Engine
}

// New builds a Server and registers its routes on a fresh gin.Engine in
// release mode — the frontend IPC glue is a local loopback boundary, not
// a public-facing API surface, so this mirrors the teacher's production
// router construction without its session/auth middleware stack (auth is
// out of scope for this core).
func New(orc Dispatcher) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{orc: orc, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Engine exposes the underlying gin.Engine, e.g. for http.ListenAndServe
// or for tests that want to drive requests via httptest.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	v1 := s.engine.Group("/api/v1")
	v1.GET("/plugins", s.handleList)
	v1.GET("/plugins/failed", s.handleFailed)
	v1.GET("/plugins/stats", s.handleAllStats)
	v1.GET("/plugins/:id/stats", s.handleStats)
	v1.POST("/plugins/:id/invoke", s.handleInvoke)
	v1.POST("/plugins/:id/disable", s.handleDisable)
}

// errEnvelope is the IPC error shape: { kind, message }.
type errEnvelope struct {
	Kind    hosterr.Kind `json:"kind"`
	Message string       `json:"message"`
}

func writeError(c *gin.Context, err error) {
	kind := hosterr.KindOf(err)
	c.JSON(httpStatusFor(kind), errEnvelope{Kind: kind, Message: err.Error()})
}

func httpStatusFor(k hosterr.Kind) int {
	switch k {
	case hosterr.NotFound:
		return http.StatusNotFound
	case hosterr.InvalidArgument, hosterr.ManifestInvalid:
		return http.StatusBadRequest
	case hosterr.PermissionDenied:
		return http.StatusForbidden
	case hosterr.ConstraintViolation:
		return http.StatusConflict
	case hosterr.DependencyUnsatisfied, hosterr.VersionIncompatible:
		return http.StatusFailedDependency
	case hosterr.RateLimited:
		return http.StatusTooManyRequests
	case hosterr.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleInvoke implements the frontend IPC surface's single entry,
// invoke_plugin_command(plugin_id, command, params), as
// POST /api/v1/plugins/:id/invoke?command=...  with a raw JSON body.
func (s *Server) handleInvoke(c *gin.Context) {
	pluginID := c.Param("id")
	command := c.Query("command")
	if command == "" {
		writeError(c, hosterr.New(hosterr.InvalidArgument, "missing command query parameter"))
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		writeError(c, hosterr.Wrap(hosterr.InvalidArgument, err, "reading request body"))
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, err := s.orc.Dispatch(c.Request.Context(), pluginID, command, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", result)
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.orc.ListAll()})
}

func (s *Server) handleFailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"failed": s.orc.FailedPlugins()})
}

func (s *Server) handleStats(c *gin.Context) {
	snap, ok := s.orc.Stats(c.Param("id"))
	if !ok {
		writeError(c, hosterr.New(hosterr.NotFound, "no dispatch stats recorded for plugin %q", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleAllStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": s.orc.AllStats()})
}

func (s *Server) handleDisable(c *gin.Context) {
	if err := s.orc.Disable(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disabled": c.Param("id")})
}
