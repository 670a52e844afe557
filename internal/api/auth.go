package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/errors"
)

// Credentials is the body of the sign-in and sign-up routes. Name is only
// read by sign-up.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func bindCredentials(c echo.Context) (Credentials, error) {
	var cr Credentials
	if err := c.Bind(&cr); err != nil {
		return cr, errors.Validationf("malformed credentials: %v", err)
	}
	return cr, nil
}

func (s *Server) signIn(c echo.Context) error {
	cr, err := bindCredentials(c)
	if err != nil {
		return err
	}
	u, err := s.sessions.SignIn(c.Request().Context(), cr.Email, cr.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) signUp(c echo.Context) error {
	cr, err := bindCredentials(c)
	if err != nil {
		return err
	}
	u, err := s.sessions.SignUp(c.Request().Context(), cr.Email, cr.Password, cr.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (s *Server) logout(c echo.Context) error {
	if err := s.sessions.Logout(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) me(c echo.Context) error {
	u, ok := s.sessions.Current()
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return c.JSON(http.StatusOK, u)
}
