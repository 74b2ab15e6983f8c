package dispatch

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/errs"
)

func (s *Server) portsLookup(c *echo.Context) error {
	assignment, err := s.deps.Ports.Lookup(c.Request().Context(), c.Param("project"), c.Param("service"))
	if err != nil {
		return fail(c, errs.New(errs.NotFound, "no port assignment found", err))
	}
	return ok(c, http.StatusOK, assignment)
}

type tunnelCreateRequest struct {
	Project   string `json:"project"`
	Service   string `json:"service"`
	Subdomain string `json:"subdomain"`
	Domain    string `json:"domain"`
}

func (s *Server) tunnelCreateCNAME(c *echo.Context) error {
	var req tunnelCreateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	cn, err := s.deps.Tunnel.Create(c.Request().Context(), req.Project, req.Service, req.Subdomain, req.Domain)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, cn)
}

func (s *Server) tunnelDeleteCNAME(c *echo.Context) error {
	requester := c.QueryParam("requester")
	if err := s.deps.Tunnel.Delete(c.Request().Context(), c.Param("id"), requester); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, nil)
}

func (s *Server) secretsGet(c *echo.Context) error {
	v, err := s.deps.Secrets.Get(c.Request().Context(), c.Param("path"))
	if err != nil {
		return fail(c, errs.New(errs.NotFound, "secret not found", err))
	}
	return ok(c, http.StatusOK, map[string]any{"value": v})
}
