package dispatch

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/errs"
)

type eventsLogRequest struct {
	InstanceID string         `json:"instance_id"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	Parent     *string        `json:"parent,omitempty"`
}

func (s *Server) eventsLog(c *echo.Context) error {
	var req eventsLogRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	rec, err := s.deps.Lineage.Append(c.Request().Context(), req.InstanceID, req.EventType, req.Payload, req.Parent)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, map[string]any{"event_id": rec.ID})
}

func (s *Server) eventsRecent(c *echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recs, err := s.deps.Lineage.GetRecent(c.Request().Context(), c.Param("instance"), limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, recs)
}

func (s *Server) eventsParentChain(c *echo.Context) error {
	maxDepth := 1000
	if v := c.QueryParam("max_depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxDepth = n
		}
	}
	chain, err := s.deps.Lineage.GetParentChain(c.Request().Context(), c.Param("id"), maxDepth)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, chain)
}

func (s *Server) eventsSubtree(c *echo.Context) error {
	maxDepth := 10
	if v := c.QueryParam("max_depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxDepth = n
		}
	}
	subtree, err := s.deps.Lineage.GetSubtree(c.Request().Context(), c.Param("id"), maxDepth)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, subtree)
}
