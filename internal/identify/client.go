// Package identify talks to the remote mushroom identification service.
//
// Responses are validated field by field before they leave the package; a
// body that does not match the expected shape is a remote service error, the
// same as a transport failure or a non-2xx status. Calls are never retried.
package identify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/patrickmn/go-cache"
)

const (
	serviceName = "identify"

	// DefaultTimeout applies when the settings leave the timeout unset.
	DefaultTimeout = 30 * time.Second
	// DefaultCacheTTL applies when the settings leave the details cache TTL unset.
	DefaultCacheTTL = 24 * time.Hour

	maxResponseBytes = 1 << 20
	maxImageBytes    = 20 << 20

	opIdentify = "identify"
	opDetails  = "details"

	detailsCache = "identify_details"
)

// Client calls the identification service. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	details *cache.Cache
	log     logger.Logger
	metrics metrics.Recorder
	caches  metrics.CacheRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for tests and custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger; the default is the global "identify" module.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithMetrics records call counts, durations and cache lookups.
func WithMetrics(r metrics.Recorder, c metrics.CacheRecorder) Option {
	return func(cl *Client) {
		if r != nil {
			cl.metrics = r
		}
		if c != nil {
			cl.caches = c
		}
	}
}

// New creates a client for the configured service.
func New(s *conf.IdentifySettings, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(s.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("identify base url %q is not an absolute http url", s.BaseURL).
			Component(serviceName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &Client{
		baseURL: base,
		apiKey:  s.APIKey,
		http:    &http.Client{Timeout: timeout},
		details: cache.New(ttl, ttl*2),
		metrics: metrics.NopRecorder{},
		caches:  metrics.NopCacheRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module(serviceName)
	}
	return c, nil
}

// Identify uploads an image as the multipart field "image" and returns the
// validated identification.
func (c *Client) Identify(ctx context.Context, image io.Reader, filename string) (res *Result, err error) {
	start := time.Now()
	defer func() { c.observe(opIdentify, start, err) }()

	if filename == "" {
		filename = "mushroom.jpg"
	}

	body, contentType, err := multipartImage(image, filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("v1", "identify"), body)
	if err != nil {
		return nil, errors.RemoteService(err, serviceName)
	}
	req.Header.Set("Content-Type", contentType)

	res, err = c.do(opIdentify, req)
	if err != nil {
		return nil, err
	}
	c.details.SetDefault(res.ID, res)
	c.log.Info("image identified",
		logger.String("id", res.ID),
		logger.String("scientific_name", res.ScientificName),
		logger.Float64("confidence", res.Confidence),
		logger.Duration("duration", time.Since(start)))
	return res, nil
}

// Details fetches a species by id. Results are cached for the configured TTL.
func (c *Client) Details(ctx context.Context, id string) (res *Result, err error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError("species id is required")
	}
	if v, ok := c.details.Get(id); ok {
		c.caches.RecordCacheLookup(detailsCache, true)
		return v.(*Result), nil
	}
	c.caches.RecordCacheLookup(detailsCache, false)

	start := time.Now()
	defer func() { c.observe(opDetails, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("v1", "mushrooms", id), http.NoBody)
	if err != nil {
		return nil, errors.RemoteService(err, serviceName)
	}
	res, err = c.do(opDetails, req)
	if err != nil {
		return nil, err
	}
	c.details.SetDefault(id, res)
	return res, nil
}

// Forget drops a cached Details result.
func (c *Client) Forget(id string) {
	c.details.Delete(id)
}

// CacheStats names the details cache and counts its entries.
func (c *Client) CacheStats() (name string, items int) {
	return detailsCache, c.details.ItemCount()
}

// endpoint appends escaped path segments to the base url.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

func (c *Client) do(op string, req *http.Request) (*Result, error) {
	start := time.Now()
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, errors.New(ctxErr).
				Component(serviceName).
				Category(errors.CategoryCancellation).
				Build()
		}
		return nil, c.remoteError(err, op, req, 0, start)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, c.remoteError(fmt.Errorf("unexpected status %d", resp.StatusCode), op, req, resp.StatusCode, start)
	}

	obj, err := jason.NewObjectFromReader(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.remoteError(fmt.Errorf("response is not a JSON object: %w", err), op, req, resp.StatusCode, start)
	}
	res, err := parseResult(obj)
	if err != nil {
		return nil, c.remoteError(err, op, req, resp.StatusCode, start)
	}
	return res, nil
}

func (c *Client) remoteError(err error, op string, req *http.Request, status int, start time.Time) error {
	b := errors.New(fmt.Errorf("%s: %w", serviceName, err)).
		Component(serviceName).
		Category(errors.CategoryRemoteService).
		Context("service", serviceName).
		Context("method", req.Method).
		Context("path", req.URL.Path).
		NetworkContext(req.URL.String(), c.http.Timeout).
		Timing(op, time.Since(start))
	if status != 0 {
		b = b.Context("status_code", status)
	}
	return b.Build()
}

func multipartImage(image io.Reader, filename string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, path.Base(filename)))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", errors.New(err).Component(serviceName).Category(errors.CategoryGeneric).Build()
	}

	n, err := io.Copy(part, io.LimitReader(image, maxImageBytes+1))
	if err != nil {
		return nil, "", errors.New(err).Component(serviceName).Category(errors.CategoryFileIO).Build()
	}
	if n == 0 {
		return nil, "", errors.ValidationError("image is empty")
	}
	if n > maxImageBytes {
		return nil, "", errors.Validationf("image exceeds %d bytes", maxImageBytes)
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.New(err).Component(serviceName).Category(errors.CategoryGeneric).Build()
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	c.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordOperation(op, metrics.StatusError)
		var ee *errors.EnhancedError
		errType := "unknown"
		if errors.As(err, &ee) {
			errType = ee.GetCategory()
		}
		c.metrics.RecordError(op, errType)
		return
	}
	c.metrics.RecordOperation(op, metrics.StatusSuccess)
}
