package dispatch

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/checkpoint"
	"github.com/bmad-run/overseer/pkg/errs"
)

type checkpointCreateRequest struct {
	InstanceID string              `json:"instance_id"`
	Kind       string              `json:"kind"`
	Percent    float64             `json:"context_window_percent"`
	State      checkpoint.WorkState `json:"work_state"`
	Trigger    checkpoint.TriggerInfo `json:"trigger"`
}

func (s *Server) checkpointCreate(c *echo.Context) error {
	var req checkpointCreateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	cp, err := s.deps.Checkpoints.Create(c.Request().Context(), req.InstanceID, checkpoint.Kind(req.Kind), req.Percent, req.State, req.Trigger)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, cp)
}

func (s *Server) checkpointGet(c *echo.Context) error {
	cp, err := s.deps.Checkpoints.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, map[string]any{"state": cp.WorkState, "resume_markdown": cp.ResumeMarkdown})
}

func (s *Server) checkpointList(c *echo.Context) error {
	instanceID := c.QueryParam("instance")
	var kind *checkpoint.Kind
	if v := c.QueryParam("kind"); v != "" {
		k := checkpoint.Kind(v)
		kind = &k
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	cps, err := s.deps.Checkpoints.List(c.Request().Context(), instanceID, kind, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, cps)
}

type checkpointCleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

func (s *Server) checkpointCleanup(c *echo.Context) error {
	var req checkpointCleanupRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	result, err := s.deps.Checkpoints.Cleanup(c.Request().Context(), req.RetentionDays)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, result)
}
