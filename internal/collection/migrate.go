package collection

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
)

// decodeBlob parses the JSON array stored under the collection key. A blank
// or null value is an empty collection.
func decodeBlob(raw string) ([]Record, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, errors.Persistence(err, "decode collection")
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func encodeBlob(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", errors.Persistence(err, "encode collection")
	}
	return string(data), nil
}

// legacyFavorites reads the id list that older releases kept next to the
// collection. present is false when the key does not exist.
func legacyFavorites(ctx context.Context, kv kvstore.Store) (ids []string, present bool, err error) {
	raw, ok, err := kv.Get(ctx, kvstore.KeyFavorites)
	if err != nil {
		return nil, false, errors.Persistence(err, "read legacy favorites")
	}
	if !ok {
		return nil, false, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, true, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, true, errors.Persistence(err, "decode legacy favorites")
	}
	return ids, true, nil
}

// mergeFavorites marks every record listed in ids as a favorite and returns
// how many records changed. Ids that match no record are ignored.
func mergeFavorites(records []Record, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	changed := 0
	for i := range records {
		if _, ok := set[records[i].ID]; ok && !records[i].IsFavorite {
			records[i].IsFavorite = true
			changed++
		}
	}
	return changed
}
