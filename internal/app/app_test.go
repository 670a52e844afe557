package app

import (
	"context"
	"testing"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func memorySettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Main.DataDir = t.TempDir()
	s.Storage.Driver = conf.StorageMemory
	s.Storage.Backend = conf.BackendBlob
	s.Images.Driver = conf.ImagesMemory
	return s
}

func quiet() Option {
	return WithLogger(logger.NewConsoleLogger("app", logger.LogLevelError))
}

func TestOpenWithMinimalSettings(t *testing.T) {
	s := memorySettings(t)

	a, err := Open(context.Background(), s, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.Nil(t, a.Identify)
	assert.Nil(t, a.Locator, "0,0 means no configured position")
	assert.Nil(t, a.Geocoder)
	assert.NotNil(t, a.Sun)
	assert.Equal(t, "memory", a.Images.Driver())

	_, err = a.RequireIdentify()
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	rec, err := a.Store.Append(a.Context(context.Background()), collection.NewRecordInput{
		Name:           "Chanterelle",
		ScientificName: "Cantharellus cibarius",
		Edibility:      collection.Edible,
		ImageURI:       "mem://mushroom_1.jpg",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.UserID, "no session user")
}

func TestOpenWithServices(t *testing.T) {
	s := memorySettings(t)
	s.Identify.BaseURL = "https://identify.test/api"
	s.Geo.Latitude = 60.1699
	s.Geo.Longitude = 24.9384
	s.Geo.GeocodeURL = "https://geocode.test/reverse"
	s.Geo.RateLimit = 1

	a, err := Open(context.Background(), s, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	assert.NotNil(t, a.Identify)
	assert.NotNil(t, a.Geocoder)
	require.NotNil(t, a.Locator)
	fix, err := a.Locator.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 60.1699, fix.Latitude, 1e-9)
}

func TestOpenSQLBackendNeedsSQLDriver(t *testing.T) {
	s := memorySettings(t)
	s.Storage.Backend = conf.BackendSQL

	_, err := Open(context.Background(), s, quiet())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), "sql backend needs a SQL driver")
}

func TestReportCacheSizes(t *testing.T) {
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	a, err := Open(context.Background(), memorySettings(t), quiet(), WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	_, err = a.Sun.SunTimes(60.17, 24.94, time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ReportCacheSizes(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(m.Registry(), "cache_items")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
