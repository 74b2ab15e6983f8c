package dispatch

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/registry"
)

type sessionInitializeRequest struct {
	Project        string `json:"project"`
	InstanceType   string `json:"instance_type"`
	Transport      string `json:"transport"`
	ExternalHandle string `json:"external_handle"`
}

func (s *Server) sessionInitialize(c *echo.Context) error {
	var req sessionInitializeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}

	inst, err := s.deps.Registry.Register(c.Request().Context(), req.Project,
		registry.InstanceType(req.InstanceType), registry.Transport(req.Transport), req.ExternalHandle)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, map[string]any{"instance_id": inst.InstanceID})
}

func (s *Server) sessionHeartbeat(c *echo.Context) error {
	if err := s.deps.Registry.Heartbeat(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, nil)
}

type sessionContextUsageRequest struct {
	Percent *float64 `json:"percent"`
	Used    *int64   `json:"used"`
	Total   *int64   `json:"total"`
}

func (s *Server) sessionUpdateContextUsage(c *echo.Context) error {
	var req sessionContextUsageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	if err := s.deps.Registry.UpdateContextUsage(c.Request().Context(), c.Param("id"), req.Percent, req.Used, req.Total); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, nil)
}

func (s *Server) sessionClose(c *echo.Context) error {
	if err := s.deps.Registry.Close(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, nil)
}
