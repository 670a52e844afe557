package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/view"
)

// RecordList is the response of GET /records.
type RecordList struct {
	Records  []collection.Record `json:"records"`
	Count    int                 `json:"count"`
	Revision uint64              `json:"revision"`
}

// ShareResponse carries the texts of the share sheet.
type ShareResponse struct {
	Message       string `json:"message"`
	LocationURL   string `json:"locationUrl,omitempty"`
	DirectionsURL string `json:"directionsUrl,omitempty"`
}

// criteriaFromQuery reads FilterCriteria from query parameters:
//
//	edibility=edible,poisonous  favorites=true  q=text
//	from=RFC3339  to=RFC3339    sort=savedAt|name|scientificName  order=asc|desc
//
// Absent parameters keep DefaultCriteria.
func criteriaFromQuery(c echo.Context) (view.FilterCriteria, error) {
	crit := view.DefaultCriteria()

	if values, ok := c.QueryParams()["edibility"]; ok {
		crit.EdibilityClasses = []collection.Edibility{}
		for _, v := range values {
			for part := range strings.SplitSeq(v, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				e, err := collection.ParseEdibility(part)
				if err != nil {
					return crit, err
				}
				crit.EdibilityClasses = append(crit.EdibilityClasses, e)
			}
		}
		if len(crit.EdibilityClasses) == 0 {
			return crit, errors.ValidationError("edibility needs at least one class")
		}
	}

	if v := c.QueryParam("favorites"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return crit, errors.Validationf("favorites must be a boolean, got %q", v)
		}
		crit.FavoritesOnly = b
	}

	crit.SearchQuery = c.QueryParam("q")

	for name, dst := range map[string]**time.Time{"from": &crit.Start, "to": &crit.End} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return crit, errors.Validationf("%s must be an RFC 3339 time, got %q", name, v)
		}
		*dst = &t
	}

	key, err := view.ParseSortKey(c.QueryParam("sort"))
	if err != nil {
		return crit, err
	}
	crit.SortKey = key

	switch strings.ToLower(c.QueryParam("order")) {
	case "", "asc":
		crit.SortAscending = true
	case "desc":
		crit.SortAscending = false
	default:
		return crit, errors.Validationf("order must be asc or desc, got %q", c.QueryParam("order"))
	}
	return crit, nil
}

func (s *Server) listRecords(c echo.Context) error {
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
	projected := view.Project(records, crit)
	return c.JSON(http.StatusOK, RecordList{Records: projected, Count: len(projected), Revision: rev})
}

func (s *Server) createRecord(c echo.Context) error {
	var in collection.NewRecordInput
	if err := c.Bind(&in); err != nil {
		return errors.Validationf("malformed record: %v", err)
	}
	rec, err := s.store.Append(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) getRecord(c echo.Context) error {
	rec, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteRecord(c echo.Context) error {
	if err := s.store.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) toggleFavorite(c echo.Context) error {
	fav, err := s.store.ToggleFavorite(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"isFavorite": fav})
}

func (s *Server) shareRecord(c echo.Context) error {
	rec, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	resp := ShareResponse{Message: view.ShareMessage(&rec)}
	if rec.HasLocation() {
		resp.LocationURL = view.LocationURL(*rec.Location)
		resp.DirectionsURL = view.DirectionsURL(*rec.Location)
	}
	return c.JSON(http.StatusOK, resp)
}

// recordSunTimes returns the twilight and sun times on the day and at the
// place a record was saved.
func (s *Server) recordSunTimes(c echo.Context) error {
	if s.sun == nil {
		return unavailable("sun calculator")
	}
	rec, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if !rec.HasLocation() {
		return errors.Validationf("record %s has no location", rec.ID)
	}
	events, err := s.sun.SunTimes(rec.Location.Latitude, rec.Location.Longitude, rec.SavedAt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}
