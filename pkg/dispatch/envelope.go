package dispatch

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/bmad-run/overseer/pkg/errs"
)

// envelope is the uniform response shape every operation returns (spec §6:
// "Each operation returns {success: bool, ...}. Errors are the enumerated
// kinds in §7").
type envelope struct {
	Success        bool   `json:"success"`
	Data           any    `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

func ok(c *echo.Context, status int, data any) error {
	return c.JSON(status, &envelope{Success: true, Data: data})
}

// fail maps a pkg/errs.Kind to an HTTP status (spec §7) and writes the
// envelope.
func fail(c *echo.Context, err error) error {
	kind := errs.KindOf(err)
	status := statusForKind(kind)
	resp := &envelope{Success: false, Error: err.Error(), ErrorKind: string(kind)}
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
	}
	if e != nil {
		resp.Recommendation = e.Remediation
	}
	return c.JSON(status, resp)
}

func statusForKind(k errs.Kind) int {
	switch k {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.Validation:
		return http.StatusBadRequest
	case errs.Timeout:
		return http.StatusGatewayTimeout
	case errs.External:
		return http.StatusBadGateway
	case errs.Unreachable:
		return http.StatusServiceUnavailable
	case errs.PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
