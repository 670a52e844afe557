package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/observability/metrics"
)

// NewMetrics records request counts, latency and response size per route.
// Routes are labelled by their pattern, not the raw path, so record ids do not
// create new series.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				// the error handler has not written the response yet
				status = statusOf(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			m.RecordHTTPRequest(method, path, status, time.Since(start).Seconds(), c.Response().Size)
			if status >= http.StatusBadRequest {
				m.RecordHTTPError(method, path, errorType(err, status))
			}
			return err
		}
	}
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return StatusForError(err)
}

func errorType(err error, status int) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return strconv.Itoa(status)
}

// StatusForError maps an error category to the HTTP status it is served with.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsRemoteService(err):
		return http.StatusBadGateway
	case errors.IsCategory(err, errors.CategoryConfiguration):
		return http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusServiceUnavailable
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
