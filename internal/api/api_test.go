package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/geo"
	"github.com/mycolog/mycolog/internal/identify"
	"github.com/mycolog/mycolog/internal/imagestore"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability"
	"github.com/mycolog/mycolog/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	store  collection.Store
	mock   *httpmock.MockTransport
}

func quietLogger(module string) logger.Logger {
	return logger.NewConsoleLogger(module, logger.LogLevelError)
}

func newTestEnv(t *testing.T, cfg *Config, opts ...ServerOption) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	kv := kvstore.NewMemory()
	store := collection.NewBlobStore(kv, collection.WithLogger(quietLogger("collection")))
	t.Cleanup(func() { _ = store.Close() })

	s, err := New(cfg, store, session.NewManager(kv, quietLogger("session")),
		append([]ServerOption{WithLogger(quietLogger("api"))}, opts...)...)
	require.NoError(t, err)
	return &testEnv{server: s, store: store}
}

// withServices adds an image store, an identification client backed by a
// mock transport and a static locator.
func withServices(t *testing.T) (*httpmock.MockTransport, []ServerOption) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	idc, err := identify.New(&conf.IdentifySettings{BaseURL: "https://identify.test/api"},
		identify.WithHTTPClient(&http.Client{Transport: mt}),
		identify.WithLogger(quietLogger("identify")))
	require.NoError(t, err)

	images := imagestore.New(imagestore.NewMemoryBackend(), kvstore.NewMemory(),
		imagestore.WithLogger(quietLogger("imagestore")))
	locator := geo.NewStaticLocator(&conf.GeoSettings{Latitude: 60.1699, Longitude: 24.9384})
	return mt, []ServerOption{WithIdentifier(idc), WithImages(images), WithLocator(locator)}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return e.do(t, method, target, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func chanterelle(loc *collection.Location) collection.NewRecordInput {
	return collection.NewRecordInput{
		Name:           "Chanterelle",
		ScientificName: "Cantharellus cibarius",
		Edibility:      collection.Edible,
		ImageURI:       "mem://mushroom_1.jpg",
		Location:       loc,
	}
}

func TestRecordLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/api/v1/records",
		chanterelle(&collection.Location{Latitude: 60.17, Longitude: 24.94}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[collection.Record](t, rec)
	require.NotEmpty(t, created.ID)

	rec = env.doJSON(t, http.MethodGet, "/api/v1/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[RecordList](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, uint64(1), list.Revision)

	rec = env.doJSON(t, http.MethodPost, "/api/v1/records/"+created.ID+"/favorite", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isFavorite":true}`, rec.Body.String())

	rec = env.doJSON(t, http.MethodGet, "/api/v1/records?favorites=true", nil)
	assert.Equal(t, 1, decode[RecordList](t, rec).Count)

	rec = env.doJSON(t, http.MethodGet, "/api/v1/records/"+created.ID+"/share", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	share := decode[ShareResponse](t, rec)
	assert.True(t, strings.HasPrefix(share.Message, "Check out this Chanterelle (Cantharellus cibarius) I found!"))
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&destination=60.17,24.94", share.DirectionsURL)

	rec = env.doJSON(t, http.MethodDelete, "/api/v1/records/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/api/v1/records/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.Equal(t, "not found", errResp.Message)
	assert.NotEmpty(t, errResp.CorrelationID)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), errResp.CorrelationID)
}

func TestErrorCorrelationIDFollowsRequestID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/missing", http.NoBody)
	req.Header.Set("X-Request-Id", "req-7f3a")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-7f3a", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-7f3a", decode[ErrorResponse](t, rec).CorrelationID)
}

func TestCreateRecordValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	in := chanterelle(nil)
	in.Edibility = "tasty"
	rec := env.doJSON(t, http.MethodPost, "/api/v1/records", in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/records", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uint64(0), env.store.Revision(), "nothing was written")
}

func TestListRecordsQuery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, in := range []collection.NewRecordInput{
		{Name: "Porcini", ScientificName: "Boletus edulis", Edibility: collection.Edible, ImageURI: "mem://a"},
		{Name: "Fly agaric", ScientificName: "Amanita muscaria", Edibility: collection.Poisonous, ImageURI: "mem://b"},
		{Name: "Chanterelle", ScientificName: "Cantharellus cibarius", Edibility: collection.Edible, ImageURI: "mem://c"},
	} {
		require.Equal(t, http.StatusCreated, env.doJSON(t, http.MethodPost, "/api/v1/records", in).Code)
	}

	names := func(target string) []string {
		rec := env.doJSON(t, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, r := range decode[RecordList](t, rec).Records {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Porcini", "Fly agaric", "Chanterelle"}, names("/api/v1/records"))
	assert.Equal(t, []string{"Porcini", "Chanterelle"}, names("/api/v1/records?edibility=edible&sort=name&order=desc"))
	assert.Equal(t, []string{"Fly agaric"}, names("/api/v1/records?q=AMANITA"))
	assert.Equal(t, []string{"Fly agaric", "Porcini", "Chanterelle"},
		names("/api/v1/records?edibility=poisonous,EDIBLE&q=us&sort=scientificName"))
	assert.Empty(t, names("/api/v1/records?to=2000-01-01T00:00:00Z"))

	for _, bad := range []string{
		"sort=colour",
		"order=sideways",
		"edibility=tasty",
		"edibility=",
		"favorites=maybe",
		"from=yesterday",
	} {
		rec := env.doJSON(t, http.MethodGet, "/api/v1/records?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestMapView(t *testing.T) {
	t.Parallel()
	_, opts := withServices(t)
	env := newTestEnv(t, nil, opts...)

	rec := env.doJSON(t, http.MethodGet, "/api/v1/map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[MapResponse](t, rec)
	assert.Empty(t, empty.Points)
	assert.False(t, empty.Fitted)
	assert.InDelta(t, 60.1699, empty.Region.Latitude, 1e-9, "centred on the current location")

	for _, loc := range []*collection.Location{
		{Latitude: 60.10, Longitude: 24.90},
		{Latitude: 60.30, Longitude: 25.10},
		nil,
	} {
		require.Equal(t, http.StatusCreated, env.doJSON(t, http.MethodPost, "/api/v1/records", chanterelle(loc)).Code)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/v1/map?width=400&height=400", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[MapResponse](t, rec)
	assert.Len(t, m.Points, 2, "records without a location are not drawn")
	assert.True(t, m.Fitted)
	assert.InDelta(t, 60.20, m.Region.Latitude, 1e-9)
	assert.InDelta(t, 0.22, m.Region.LatitudeDelta, 1e-9)
	require.NotNil(t, m.Clusters)
	assert.Equal(t, "#4CAF50", m.Points[0].Color)

	rec = env.doJSON(t, http.MethodGet, "/api/v1/map?width=wide&height=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func pngUpload(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, G: 120, B: 20, A: 255})
	var pic bytes.Buffer
	require.NoError(t, png.Encode(&pic, img))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "find.png")
	require.NoError(t, err)
	_, err = part.Write(pic.Bytes())
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

const identifyJSON = `{
	"id": "cantharellus-cibarius",
	"name": "Chanterelle",
	"scientificName": "Cantharellus cibarius",
	"confidence": 0.93,
	"edibility": "edible",
	"description": "Golden, funnel-shaped."
}`

func TestIdentifyAndSave(t *testing.T) {
	t.Parallel()
	mt, opts := withServices(t)
	env := newTestEnv(t, nil, opts...)
	mt.RegisterResponder(http.MethodPost, "https://identify.test/api/v1/identify",
		httpmock.NewStringResponder(http.StatusOK, identifyJSON))

	body, ct := pngUpload(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/identify", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[IdentifyResponse](t, rec)
	assert.Equal(t, "Chanterelle", resp.Result.Name)
	assert.Nil(t, resp.Record)
	assert.Equal(t, uint64(0), env.store.Revision())

	body, ct = pngUpload(t, map[string]string{"save": "true", "notes": "under the birches"})
	rec = env.do(t, http.MethodPost, "/api/v1/identify", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp = decode[IdentifyResponse](t, rec)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "under the birches", resp.Record.Notes)
	assert.InDelta(t, 0.93, resp.Record.Confidence, 1e-9)
	require.NotNil(t, resp.Record.Location)
	assert.InDelta(t, 60.1699, resp.Record.Location.Latitude, 1e-9)
	assert.True(t, strings.HasPrefix(resp.Record.ImageURI, "mem://mushroom_"))

	key := strings.TrimPrefix(resp.Record.ImageURI, "mem://")
	rec = env.do(t, http.MethodGet, "/api/v1/images/"+key, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestIdentifySaveFailureRemovesImage(t *testing.T) {
	t.Parallel()
	mt, opts := withServices(t)
	env := newTestEnv(t, nil, opts...)
	mt.RegisterResponder(http.MethodPost, "https://identify.test/api/v1/identify",
		httpmock.NewStringResponder(http.StatusOK, identifyJSON))
	require.NoError(t, env.store.Close())

	body, ct := pngUpload(t, map[string]string{"save": "true"})
	rec := env.do(t, http.MethodPost, "/api/v1/identify", body, ct)
	require.GreaterOrEqual(t, rec.Code, http.StatusBadRequest, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/images", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]imagestore.Metadata](t, rec), "the photo of an unsaved find is removed")
}

func TestIdentifyFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	body, ct := pngUpload(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/identify", body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no identification service configured")

	mt, opts := withServices(t)
	env = newTestEnv(t, nil, opts...)
	mt.RegisterResponder(http.MethodPost, "https://identify.test/api/v1/identify",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"x"}`))

	body, ct = pngUpload(t, nil)
	rec = env.do(t, http.MethodPost, "/api/v1/identify", body, ct)
	assert.Equal(t, http.StatusBadGateway, rec.Code, "malformed service response")

	rec = env.do(t, http.MethodPost, "/api/v1/identify", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing image field")
}

func TestImageRoutes(t *testing.T) {
	t.Parallel()
	_, opts := withServices(t)
	env := newTestEnv(t, nil, opts...)

	body, ct := pngUpload(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/images", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	meta := decode[imagestore.Metadata](t, rec)
	assert.Equal(t, 4, meta.Width)

	rec = env.do(t, http.MethodGet, "/api/v1/images", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]imagestore.Metadata](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/v1/images/missing.jpg", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthScopesRecords(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not signed in", decode[ErrorResponse](t, rec).Message)

	rec = env.doJSON(t, http.MethodPost, "/api/v1/auth/signup",
		Credentials{Email: "ada@example.com", Password: "x", Name: "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ada := decode[session.User](t, rec)
	assert.Equal(t, "Ada", ada.Name)

	rec = env.doJSON(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ada.ID, decode[session.User](t, rec).ID)

	rec = env.doJSON(t, http.MethodPost, "/api/v1/records", chanterelle(nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ada.ID, decode[collection.Record](t, rec).UserID)

	rec = env.doJSON(t, http.MethodPost, "/api/v1/auth/signin", Credentials{Email: "bob@example.com", Password: "y"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.doJSON(t, http.MethodGet, "/api/v1/records", nil)
	assert.Equal(t, 0, decode[RecordList](t, rec).Count, "another user's records are hidden")

	rec = env.doJSON(t, http.MethodPost, "/api/v1/auth/signin", Credentials{Email: "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.doJSON(t, http.MethodPost, "/api/v1/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.doJSON(t, http.MethodGet, "/api/v1/auth/me", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.MetricsEnabled = true
	env := newTestEnv(t, cfg, WithMetrics(m))

	rec := env.doJSON(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "unknown", health["version"])

	env.doJSON(t, http.MethodGet, "/api/v1/records/nope", nil)

	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `http_requests_total{`)
	assert.Contains(t, out, `path="/api/v1/records/:id"`)
	assert.Contains(t, out, `http_request_errors_total{`)
}

func TestMetricsRouteDisabled(t *testing.T) {
	t.Parallel()
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	env := newTestEnv(t, nil, WithMetrics(m))

	rec := env.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Server.Listen = "127.0.0.1:9000"
	s.Metrics.Enabled = true
	cfg := ConfigFromSettings(s)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, DefaultMetricsPath, cfg.MetricsPath)
	require.NoError(t, cfg.Validate())

	cfg.Listen = "no-port"
	assert.Error(t, cfg.Validate())

	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}
