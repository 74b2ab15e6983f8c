package dispatch

import (
	echo "github.com/labstack/echo/v5"

	"github.com/coder/websocket"
)

// eventsWebSocket upgrades to a WebSocket and hands the connection to the
// live-tail ConnectionManager, which owns the connection's lifecycle from
// here (spec §F.2's coder/websocket binding over pkg/events.ConnectionManager).
// A nil Events dependency means the optional stream wasn't wired — spec §9:
// "a supervisor runtime with no dashboard attached runs unaffected."
func (s *Server) eventsWebSocket(c *echo.Context) error {
	if s.deps.Events == nil {
		return fail(c, errNotConfigured)
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.deps.AllowedWSOrigins,
	})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	s.deps.Events.HandleConnection(c.Request().Context(), conn)
	return nil
}
