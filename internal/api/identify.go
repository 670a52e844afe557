package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/identify"
	"github.com/mycolog/mycolog/internal/imagestore"
	"github.com/mycolog/mycolog/internal/logger"
)

// IdentifyResponse is the result of POST /identify. Record is set when the
// request asked to save the find.
type IdentifyResponse struct {
	Result *identify.Result   `json:"result"`
	Record *collection.Record `json:"record,omitempty"`
}

// readImageField returns the bytes of the "image" form file.
func readImageField(c echo.Context) ([]byte, string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, "", errors.Validationf("multipart field \"image\" is required: %v", err)
	}
	data, err := readFormFile(fh)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New(err).Component("api").Category(errors.CategoryFileIO).Build()
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, imagestore.MaxSourceBytes+1))
	if err != nil {
		return nil, errors.New(err).Component("api").Category(errors.CategoryFileIO).Build()
	}
	if len(data) > imagestore.MaxSourceBytes {
		return nil, errors.Validationf("image exceeds %d bytes", imagestore.MaxSourceBytes)
	}
	return data, nil
}

// identifyImage forwards the uploaded photo to the identification service.
// With save=true the photo is stored and a record is appended at the current
// location, carrying the optional notes field.
func (s *Server) identifyImage(c echo.Context) error {
	if s.identify == nil {
		return unavailable("identification service")
	}
	save := false
	if v := c.FormValue("save"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Validationf("save must be a boolean, got %q", v)
		}
		save = b
	}
	if save && s.images == nil {
		return unavailable("image store")
	}

	data, filename, err := readImageField(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := s.identify.Identify(ctx, bytes.NewReader(data), filename)
	if err != nil {
		return err
	}
	resp := IdentifyResponse{Result: res}
	if !save {
		return c.JSON(http.StatusOK, resp)
	}

	meta, err := s.images.Save(ctx, bytes.NewReader(data))
	if err != nil {
		return err
	}
	var loc *collection.Location
	if s.locator != nil {
		if fix, err := s.locator.CurrentLocation(ctx); err == nil {
			loc = fix.Location()
		} else {
			s.log.Info("saving find without location", logger.Error(err))
		}
	}
	rec, err := s.store.Append(ctx, res.RecordInput(meta.URI, loc, c.FormValue("notes")))
	if err != nil {
		s.discardImage(ctx, meta.URI)
		return err
	}
	resp.Record = &rec
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) identifyDetails(c echo.Context) error {
	if s.identify == nil {
		return unavailable("identification service")
	}
	res, err := s.identify.Details(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
