package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mycolog/mycolog/internal/logger"
)

func (s *Server) uploadImage(c echo.Context) error {
	if s.images == nil {
		return unavailable("image store")
	}
	data, _, err := readImageField(c)
	if err != nil {
		return err
	}
	meta, err := s.images.Save(c.Request().Context(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, meta)
}

func (s *Server) listImages(c echo.Context) error {
	if s.images == nil {
		return unavailable("image store")
	}
	list, err := s.images.UserImages(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) serveImage(c echo.Context) error {
	if s.images == nil {
		return unavailable("image store")
	}
	rc, err := s.images.OpenKey(c.Request().Context(), c.Param("key"))
	if err != nil {
		return err
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=86400")
	return c.Stream(http.StatusOK, "image/jpeg", rc)
}

// discardImage removes a photo whose record could not be saved.
func (s *Server) discardImage(ctx context.Context, uri string) {
	if err := s.images.Delete(context.WithoutCancel(ctx), uri); err != nil {
		s.log.Warn("failed to remove unsaved image", logger.String("uri", uri), logger.Error(err))
	}
}
