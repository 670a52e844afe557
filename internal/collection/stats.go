package collection

import (
	"context"

	"github.com/mycolog/mycolog/internal/logger"
)

// StatsSink receives collection-wide gauges. CollectionMetrics implements it.
type StatsSink interface {
	SetRecordCounts(counts map[string]int)
	SetRevision(rev uint64)
}

// TrackStats publishes per-edibility record counts and the revision to sink,
// once at start and again after every committed change, until ctx is done or
// the store closes. ctx should carry no session so every record is counted.
func TrackStats(ctx context.Context, s Store, sink StatsSink) error {
	changes, cancel := s.Subscribe()
	defer cancel()

	log := logger.Global().Module(storeComponent)
	update := func() error {
		rev := s.Revision()
		records, err := s.ReadAll(ctx)
		if err != nil {
			return err
		}
		counts := make(map[string]int, len(AllEdibility))
		for _, e := range AllEdibility {
			counts[string(e)] = 0
		}
		for i := range records {
			counts[string(records[i].Edibility)]++
		}
		sink.SetRecordCounts(counts)
		sink.SetRevision(rev)
		return nil
	}

	if err := update(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := update(); err != nil && ctx.Err() == nil {
				log.Warn("failed to refresh collection stats", logger.Error(err))
			}
		}
	}
}
