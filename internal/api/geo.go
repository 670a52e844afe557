package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/geo"
	"github.com/mycolog/mycolog/internal/logger"
)

// LocationResponse is the current position with its place name.
type LocationResponse struct {
	geo.Fix
	Place string `json:"place"`
}

func (s *Server) currentLocation(c echo.Context) error {
	if s.locator == nil {
		return unavailable("location")
	}
	ctx := c.Request().Context()
	fix, err := s.locator.CurrentLocation(ctx)
	if err != nil {
		return err
	}
	resp := LocationResponse{Fix: fix, Place: geo.UnknownLocation}
	if s.geocoder != nil {
		name, err := s.geocoder.ReverseGeocode(ctx, fix.Latitude, fix.Longitude)
		if err != nil {
			s.log.Warn("reverse geocoding failed", logger.Error(err))
		} else {
			resp.Place = name
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) reverseGeocode(c echo.Context) error {
	if s.geocoder == nil {
		return unavailable("geocoder")
	}
	if c.QueryParam("lat") == "" || c.QueryParam("lon") == "" {
		return errors.ValidationError("lat and lon are required")
	}
	lat, err := queryFloat(c, "lat", 0)
	if err != nil {
		return err
	}
	lon, err := queryFloat(c, "lon", 0)
	if err != nil {
		return err
	}
	name, err := s.geocoder.ReverseGeocode(c.Request().Context(), lat, lon)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"place": name})
}
