package collection

import (
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
)

// Open builds the backend selected by settings.Storage.Backend on top of kv.
// The sql backend reuses the database connection of a sqlite or mysql kv store.
func Open(settings *conf.Settings, kv kvstore.Store, opts ...Option) (Store, error) {
	switch settings.Storage.Backend {
	case conf.BackendBlob, "":
		return NewBlobStore(kv, opts...), nil
	case conf.BackendSQL:
		db := kvstore.DB(kv)
		if db == nil {
			return nil, errors.Newf("collection backend %q needs an sqlite or mysql storage driver, got %q",
				settings.Storage.Backend, kv.Driver()).
				Component(storeComponent).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return NewSQLStore(db, kv, opts...)
	default:
		return nil, errors.Newf("unknown collection backend %q", settings.Storage.Backend).
			Component(storeComponent).
			Category(errors.CategoryConfiguration).
			Build()
	}
}
