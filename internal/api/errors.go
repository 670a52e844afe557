package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/api/middleware"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // matches the server log line
}

// NewErrorResponse builds the response for err served with code.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

func messageFor(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusBadGateway:
		return "upstream service failed"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusInternalServerError:
		return "internal error"
	}
	return http.StatusText(code)
}

// handleError is the echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := middleware.StatusForError(err)
	message := messageFor(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		}
		if he.Internal == nil {
			err = nil
		}
	}

	resp := NewErrorResponse(err, message, code)
	if id := logger.TraceIDFromContext(c.Request().Context()); id != "" {
		resp.CorrelationID = id
	}
	log := s.log.WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("method", c.Request().Method),
		logger.String("path", c.Request().URL.Path),
		logger.Int("code", code),
		logger.String("error", resp.Error),
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Debug("API error", fields...)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.log.Warn("failed to write error response", logger.Error(err))
	}
}

// unavailable reports a route whose backing component is not configured.
func unavailable(what string) error {
	return errors.Newf("%s is not configured", what).
		Component("api").
		Category(errors.CategoryConfiguration).
		Build()
}
