// Package collection is the durable set of saved mushroom records.
//
// Two backends implement Store: BlobStore keeps the whole collection as one
// JSON array under a single key-value entry, SQLStore keeps one row per
// record. Both funnel every mutation through a single writer goroutine, so
// concurrent read-modify-write cycles cannot overwrite each other, and both
// scope reads to the user carried in the request context.
package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/mycolog/mycolog/internal/session"
)

// Store is the collection contract shared by every backend.
type Store interface {
	// Append validates in, assigns id and savedAt, and persists the record
	// before returning it.
	Append(ctx context.Context, in NewRecordInput) (Record, error)
	// ReadAll returns the caller's records in insertion order. Empty storage
	// yields an empty slice, not an error.
	ReadAll(ctx context.Context) ([]Record, error)
	// Get returns one record or a not-found error.
	Get(ctx context.Context, id string) (Record, error)
	// Remove deletes a record. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error
	// ToggleFavorite flips IsFavorite and returns the new value.
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	// Revision increases on every committed mutation.
	Revision() uint64
	// Subscribe delivers committed changes until cancel is called.
	Subscribe() (<-chan Change, func())
	Close() error
}

const storeComponent = "collection"

// Operation names used for logging and metrics
const (
	opAppend   = "append"
	opReadAll  = "read_all"
	opGet      = "get"
	opRemove   = "remove"
	opFavorite = "toggle_favorite"
	opLoad     = "load"
)

type options struct {
	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
	newID   func() string
	queue   int
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the logger; the default is the global "collection" module.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records operation counts and durations.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the uuid generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithQueueSize sets how many mutations may wait for the writer.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queue = n }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: uuid.NewString,
		queue: 64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module(storeComponent)
	}
	if o.metrics == nil {
		o.metrics = metrics.NopRecorder{}
	}
	return o
}

// scopeFrom returns the user id that owns reads and writes in ctx, or "" when
// the caller has no session.
func scopeFrom(ctx context.Context) string {
	if u, ok := session.FromContext(ctx); ok {
		return u.ID
	}
	return ""
}

// visible reports whether r belongs to scope. Records without an owner
// predate per-user storage and stay visible to everyone.
func visible(r *Record, scope string) bool {
	return scope == "" || r.UserID == "" || r.UserID == scope
}

// observe records the outcome of op on the metrics recorder.
func (o *options) observe(op string, start time.Time, err error) {
	o.metrics.RecordDuration(op, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordOperation(op, metrics.StatusError)
		o.metrics.RecordError(op, errorType(err))
		return
	}
	o.metrics.RecordOperation(op, metrics.StatusSuccess)
}

func errorType(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "unknown"
}
