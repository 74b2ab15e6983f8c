package dispatch

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/spawn"
)

type spawnRegisterRequest struct {
	Project     string `json:"project"`
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	Description string `json:"description"`
	OutputFile  string `json:"output_file"`
}

func (s *Server) spawnRegister(c *echo.Context) error {
	var req spawnRegisterRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	sp, err := s.deps.Spawns.Register(c.Request().Context(), req.Project, req.TaskID, req.TaskType, req.Description, req.OutputFile)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, sp)
}

type spawnCompleteRequest struct {
	Project      string  `json:"project"`
	TaskID       string  `json:"task_id"`
	ExitCode     int     `json:"exit_code"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (s *Server) spawnComplete(c *echo.Context) error {
	var req spawnCompleteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, errs.New(errs.Validation, "invalid request body", err))
	}
	if err := s.deps.Spawns.Complete(c.Request().Context(), req.Project, req.TaskID, req.ExitCode, req.ErrorMessage); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, nil)
}

func (s *Server) spawnList(c *echo.Context) error {
	project := c.QueryParam("project")
	var status *spawn.Status
	if v := c.QueryParam("status"); v != "" {
		st := spawn.Status(v)
		status = &st
	}
	rows, err := s.deps.Spawns.List(c.Request().Context(), project, status)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, rows)
}
