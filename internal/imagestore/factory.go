package imagestore

import (
	"context"

	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
)

// Open builds the Store selected by settings.Images.Driver.
func Open(ctx context.Context, settings *conf.Settings, kv kvstore.Store, opts ...Option) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch settings.Images.Driver {
	case conf.ImagesFS, "":
		backend, err = NewFSBackend(settings.DataPath(settings.Images.Dir))
	case conf.ImagesMemory:
		backend = NewMemoryBackend()
	case conf.ImagesS3:
		backend, err = NewS3Backend(ctx, &settings.Images.S3, nil)
	default:
		return nil, errors.Newf("unknown image driver %q", settings.Images.Driver).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithQuality(settings.Images.Quality)}, opts...)
	return New(backend, kv, opts...), nil
}
