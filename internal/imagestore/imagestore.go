// Package imagestore keeps the photos behind collection records.
//
// Saved images are re-encoded as JPEG and written to a Backend (local
// directory, memory or S3). A metadata list under the image_metadata key
// records who saved each image and its dimensions. Records reference images
// by URI only; removing a record never removes its image.
package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif" // decoders for image.Decode
	"image/jpeg"
	_ "image/png"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/mycolog/mycolog/internal/session"
)

const (
	component = "imagestore"

	// DefaultQuality is the JPEG quality used when none is configured.
	DefaultQuality = 70
	// MaxSourceBytes bounds the size of an uploaded image.
	MaxSourceBytes = 20 << 20

	opSave   = "save"
	opDelete = "delete"
)

// Metadata describes one saved image.
type Metadata struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	UserID    string    `json:"userId,omitempty"`
	SavedAt   time.Time `json:"savedAt"`
	SizeBytes int64     `json:"sizeBytes"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Store saves images to a backend and tracks their metadata.
type Store struct {
	backend Backend
	kv      kvstore.Store
	quality int
	now     func() time.Time
	log     logger.Logger
	metrics metrics.Recorder

	// serializes read-modify-write of the metadata list
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithQuality sets the JPEG quality, 1 to 100.
func WithQuality(q int) Option {
	return func(s *Store) { s.quality = q }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics records save and delete outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// New creates a Store writing to backend and keeping metadata in kv.
func New(backend Backend, kv kvstore.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		kv:      kv,
		quality: DefaultQuality,
		now:     time.Now,
		metrics: metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.quality < 1 || s.quality > 100 {
		s.quality = DefaultQuality
	}
	if s.log == nil {
		s.log = logger.Global().Module(component)
	}
	return s
}

// Driver names the backend.
func (s *Store) Driver() string { return s.backend.Driver() }

// Save decodes src (JPEG, PNG or GIF), re-encodes it as JPEG and stores it
// as mushroom_{unixnano}.jpg. The caller's session user owns the image.
func (s *Store) Save(ctx context.Context, src io.Reader) (meta Metadata, err error) {
	start := time.Now()
	defer func() { s.observe(opSave, start, err) }()

	raw, err := io.ReadAll(io.LimitReader(src, MaxSourceBytes+1))
	if err != nil {
		return Metadata{}, errors.New(err).Component(component).Category(errors.CategoryFileIO).Build()
	}
	if len(raw) > MaxSourceBytes {
		return Metadata{}, errors.Validationf("image exceeds %d bytes", MaxSourceBytes)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Metadata{}, errors.Validationf("unsupported or corrupt image: %v", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return Metadata{}, errors.New(err).Component(component).Category(errors.CategoryImageStore).Build()
	}

	now := s.now()
	key := fmt.Sprintf("mushroom_%d.jpg", now.UnixNano())
	uri, err := s.backend.Put(ctx, key, buf.Bytes())
	if err != nil {
		return Metadata{}, err
	}

	bounds := img.Bounds()
	meta = Metadata{
		ID:        uuid.NewString(),
		URI:       uri,
		SavedAt:   now,
		SizeBytes: int64(buf.Len()),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}
	if u, ok := session.FromContext(ctx); ok {
		meta.UserID = u.ID
	}

	if err := s.updateMetadata(ctx, func(list []Metadata) []Metadata { return append(list, meta) }); err != nil {
		// the file without metadata would be unreachable through List
		if delErr := s.backend.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warn("failed to remove image after metadata write failed",
				logger.String("key", key), logger.Error(delErr))
		}
		return Metadata{}, err
	}

	s.log.Info("image saved",
		logger.String("uri", uri),
		logger.String("source_format", format),
		logger.Int64("size_bytes", meta.SizeBytes),
		logger.Int("width", meta.Width),
		logger.Int("height", meta.Height))
	return meta, nil
}

// Open returns the stored bytes behind uri.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := s.backend.Key(uri)
	if err != nil {
		return nil, err
	}
	return s.backend.Open(ctx, key)
}

// OpenKey is Open by bare key, as used in HTTP paths.
func (s *Store) OpenKey(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return nil, errors.Validationf("invalid image key %q", key)
	}
	return s.backend.Open(ctx, key)
}

// Delete removes the image and its metadata. Deleting an unknown image is
// a no-op.
func (s *Store) Delete(ctx context.Context, uri string) (err error) {
	start := time.Now()
	defer func() { s.observe(opDelete, start, err) }()

	key, err := s.backend.Key(uri)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	return s.updateMetadata(ctx, func(list []Metadata) []Metadata {
		return slices.DeleteFunc(list, func(m Metadata) bool { return m.URI == uri })
	})
}

// List returns the metadata of every saved image, oldest first.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	return s.readMetadata(ctx)
}

// UserImages returns the images saved by the caller's session user. Without
// a session it returns every image.
func (s *Store) UserImages(ctx context.Context) ([]Metadata, error) {
	all, err := s.readMetadata(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := session.FromContext(ctx)
	if !ok {
		return all, nil
	}
	return slices.DeleteFunc(all, func(m Metadata) bool { return m.UserID != u.ID }), nil
}

func (s *Store) readMetadata(ctx context.Context) ([]Metadata, error) {
	raw, ok, err := s.kv.Get(ctx, kvstore.KeyImageMetadata)
	if err != nil {
		return nil, err
	}
	list := []Metadata{}
	if !ok || strings.TrimSpace(raw) == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Persistence(err, "decode image metadata")
	}
	if list == nil {
		list = []Metadata{}
	}
	return list, nil
}

func (s *Store) updateMetadata(ctx context.Context, fn func([]Metadata) []Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readMetadata(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fn(list))
	if err != nil {
		return errors.Persistence(err, "encode image metadata")
	}
	return s.kv.Set(ctx, kvstore.KeyImageMetadata, string(data))
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(op, metrics.StatusError)
		errType := "unknown"
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			errType = ee.GetCategory()
		}
		s.metrics.RecordError(op, errType)
		return
	}
	s.metrics.RecordOperation(op, metrics.StatusSuccess)
}
