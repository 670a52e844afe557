package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/view"
)

// MapResponse is the response of GET /map. Clusters is set when the request
// names a viewport.
type MapResponse struct {
	Points   []view.MapPoint     `json:"points"`
	Region   view.Region         `json:"region"`
	Fitted   bool                `json:"fitted"`
	Clusters *view.ClusterResult `json:"clusters,omitempty"`
	Revision uint64              `json:"revision"`
}

func queryFloat(c echo.Context, name string, def float64) (float64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Validationf("%s must be a number, got %q", name, v)
	}
	return f, nil
}

// mapView projects located records to map points. The region fits every
// point; with no points it centres on the current location, when one is
// available. Passing width and height (pixels) clusters the points for that
// viewport.
func (s *Server) mapView(c echo.Context) error {
	crit, err := criteriaFromQuery(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	rev := s.store.Revision()
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return err
	}

	resp := MapResponse{Points: view.MapPoints(records, crit), Revision: rev}
	resp.Region, resp.Fitted = view.FitRegion(resp.Points)
	if !resp.Fitted {
		resp.Region = view.DefaultRegion(0, 0)
		if s.locator != nil {
			if fix, err := s.locator.CurrentLocation(ctx); err == nil {
				resp.Region = view.DefaultRegion(fix.Latitude, fix.Longitude)
			} else {
				s.log.Debug("no location for default map region", logger.Error(err))
			}
		}
	}

	width, err := queryFloat(c, "width", 0)
	if err != nil {
		return err
	}
	height, err := queryFloat(c, "height", 0)
	if err != nil {
		return err
	}
	if width > 0 && height > 0 {
		radius, err := queryFloat(c, "radius", view.DefaultClusterRadius)
		if err != nil {
			return err
		}
		clusters := view.ClusterPoints(resp.Points, resp.Region, view.Viewport{Width: width, Height: height}, radius)
		resp.Clusters = &clusters
	}
	return c.JSON(http.StatusOK, resp)
}
