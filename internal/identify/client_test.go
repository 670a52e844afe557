package identify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://id.example.com/api"

const chanterelleJSON = `{
  "id": "cc-01",
  "name": "Golden Chanterelle",
  "scientificName": "Cantharellus cibarius",
  "confidence": 0.92,
  "description": "Egg-yolk yellow, funnel shaped",
  "edibility": "edible",
  "characteristics": {"cap": "wavy", "gills": "false gills", "stem": "solid", "habitat": "birch"},
  "similarSpecies": [
    {"name": "False Chanterelle", "scientificName": "Hygrophoropsis aurantiaca", "edibility": "unknown"},
    {"name": "Jack-o'-lantern", "scientificName": "Omphalotus olearius", "edibility": "poisonous"}
  ]
}`

type recordingRecorder struct {
	ops    []string
	errs   []string
	lookup []bool
}

func (r *recordingRecorder) RecordOperation(op, status string) { r.ops = append(r.ops, op+":"+status) }
func (r *recordingRecorder) RecordDuration(string, float64)    {}
func (r *recordingRecorder) RecordError(_, errType string)     { r.errs = append(r.errs, errType) }
func (r *recordingRecorder) RecordCacheLookup(_ string, hit bool) {
	r.lookup = append(r.lookup, hit)
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	s := &conf.IdentifySettings{BaseURL: baseURL, APIKey: "secret", Timeout: time.Second, CacheTTL: time.Minute}
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: mt}),
		WithLogger(logger.NewConsoleLogger("identify", logger.LogLevelError)),
	}, opts...)
	c, err := New(s, opts...)
	require.NoError(t, err)
	return c, mt
}

func TestIdentifyPostsMultipartImage(t *testing.T) {
	t.Parallel()
	c, mt := newTestClient(t)

	mt.RegisterResponder(http.MethodPost, baseURL+"/v1/identify",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			file, header, err := req.FormFile("image")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "cap.jpg", header.Filename)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "jpeg-bytes", string(data))
			return httpmock.NewStringResponse(http.StatusOK, chanterelleJSON), nil
		})

	res, err := c.Identify(context.Background(), strings.NewReader("jpeg-bytes"), "/tmp/photos/cap.jpg")
	require.NoError(t, err)
	assert.Equal(t, "cc-01", res.ID)
	assert.Equal(t, collection.Edible, res.Edibility)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "birch", res.Characteristics.Habitat)
	require.Len(t, res.SimilarSpecies, 2)
	assert.Equal(t, collection.Poisonous, res.SimilarSpecies[1].Edibility)
	assert.Equal(t, 1, mt.GetTotalCallCount())

	in := res.RecordInput("file:///img/cap.jpg", nil, "under birches")
	require.NoError(t, in.Validate())
	assert.Equal(t, "Cantharellus cibarius", in.ScientificName)
}

func TestIdentifyRejectsEmptyImage(t *testing.T) {
	t.Parallel()
	c, mt := newTestClient(t)

	_, err := c.Identify(context.Background(), strings.NewReader(""), "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, mt.GetTotalCallCount())
}

func TestIdentifyFailuresAreRemoteServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":"boom"}`)},
		{"not found", httpmock.NewStringResponder(http.StatusNotFound, "")},
		{"transport failure", httpmock.NewErrorResponder(io.ErrUnexpectedEOF)},
		{"not json", httpmock.NewStringResponder(http.StatusOK, "<html>")},
		{"array body", httpmock.NewStringResponder(http.StatusOK, "[]")},
		{"missing name", httpmock.NewStringResponder(http.StatusOK,
			`{"id":"x","scientificName":"s","confidence":0.1,"edibility":"edible"}`)},
		{"confidence as string", httpmock.NewStringResponder(http.StatusOK,
			`{"id":"x","name":"n","scientificName":"s","confidence":"high","edibility":"edible"}`)},
		{"unknown edibility", httpmock.NewStringResponder(http.StatusOK,
			`{"id":"x","name":"n","scientificName":"s","confidence":0.1,"edibility":"tasty"}`)},
		{"characteristics wrong type", httpmock.NewStringResponder(http.StatusOK,
			`{"id":"x","name":"n","scientificName":"s","confidence":0.1,"edibility":"edible","characteristics":"none"}`)},
		{"similar species missing edibility", httpmock.NewStringResponder(http.StatusOK,
			`{"id":"x","name":"n","scientificName":"s","confidence":0.1,"edibility":"edible","similarSpecies":[{"name":"a","scientificName":"b"}]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &recordingRecorder{}
			c, mt := newTestClient(t, WithMetrics(rec, rec))
			mt.RegisterResponder(http.MethodPost, baseURL+"/v1/identify", tt.responder)

			res, err := c.Identify(context.Background(), strings.NewReader("img"), "a.jpg")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.IsRemoteService(err), "got %v", err)
			assert.Equal(t, 1, mt.GetTotalCallCount(), "no retries")
			assert.Equal(t, []string{"identify:error"}, rec.ops)
			assert.Equal(t, []string{"remote-service"}, rec.errs)
		})
	}
}

func TestIdentifyOptionalFieldsMayBeAbsent(t *testing.T) {
	t.Parallel()
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/v1/identify", httpmock.NewStringResponder(http.StatusOK,
		`{"id":"x","name":"n","scientificName":"s","confidence":0,"edibility":"Unknown","description":null}`))

	res, err := c.Identify(context.Background(), strings.NewReader("img"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, collection.Unknown, res.Edibility)
	assert.Empty(t, res.Description)
	assert.NotNil(t, res.SimilarSpecies)
	assert.Empty(t, res.SimilarSpecies)
}

func TestDetailsAreCached(t *testing.T) {
	t.Parallel()
	rec := &recordingRecorder{}
	c, mt := newTestClient(t, WithMetrics(rec, rec))
	mt.RegisterResponder(http.MethodGet, baseURL+"/v1/mushrooms/cc-01",
		httpmock.NewStringResponder(http.StatusOK, chanterelleJSON))

	ctx := context.Background()
	first, err := c.Details(ctx, "cc-01")
	require.NoError(t, err)
	second, err := c.Details(ctx, "cc-01")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mt.GetTotalCallCount())
	assert.Equal(t, []bool{false, true}, rec.lookup)

	c.Forget("cc-01")
	_, err = c.Details(ctx, "cc-01")
	require.NoError(t, err)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestDetailsEscapesID(t *testing.T) {
	t.Parallel()
	c, mt := newTestClient(t)
	var gotPath string
	mt.RegisterResponder(http.MethodGet, `=~/v1/mushrooms/`,
		func(req *http.Request) (*http.Response, error) {
			gotPath = req.URL.EscapedPath()
			return httpmock.NewStringResponse(http.StatusOK, chanterelleJSON), nil
		})

	_, err := c.Details(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/mushrooms/a%2Fb", gotPath)

	_, err = c.Details(context.Background(), " ")
	assert.True(t, errors.IsValidation(err))
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.IdentifySettings{BaseURL: "/v1"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestRemoteErrorCarriesRequestContext(t *testing.T) {
	t.Parallel()
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, baseURL+"/v1/mushrooms/cc-01",
		httpmock.NewStringResponder(http.StatusBadGateway, ""))
	c, _ := newTestClient(t, WithHTTPClient(&http.Client{Transport: mt, Timeout: 5 * time.Second}))

	_, err := c.Details(context.Background(), "cc-01")
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	ctx := ee.GetContext()
	assert.Equal(t, "https-endpoint", ctx["url_category"])
	assert.InDelta(t, 5.0, ctx["timeout_seconds"], 1e-9)
	assert.Equal(t, opDetails, ctx["operation"])
	assert.Contains(t, ctx, "duration_ms")
	assert.Equal(t, http.StatusBadGateway, ctx["status_code"])
	assert.NotContains(t, ee.Error(), "secret", "the api key stays out of the error")
}
