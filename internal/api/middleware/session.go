package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/session"
)

// NewSession attaches the signed-in user of the process to every request
// context, so collection calls are scoped to that user.
func NewSession(m *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(m.Context(req.Context())))
			return next(c)
		}
	}
}
