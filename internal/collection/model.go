package collection

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
)

// Edibility is the edibility class of a species. It drives filter buckets
// and marker colours.
type Edibility string

const (
	Edible    Edibility = "edible"
	Poisonous Edibility = "poisonous"
	Unknown   Edibility = "unknown"
)

// AllEdibility lists every class in display order.
var AllEdibility = []Edibility{Edible, Poisonous, Unknown}

// Valid reports whether e is one of the known classes.
func (e Edibility) Valid() bool {
	switch e {
	case Edible, Poisonous, Unknown:
		return true
	}
	return false
}

// ParseEdibility accepts any casing and surrounding whitespace.
func ParseEdibility(s string) (Edibility, error) {
	e := Edibility(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", errors.Validationf("edibility must be one of edible, poisonous, unknown, got %q", s)
	}
	return e, nil
}

// normalizeEdibility maps a stored class onto the enum. Older clients wrote
// mixed case and free-form classes; anything unrecognised counts as unknown.
func normalizeEdibility(s string) Edibility {
	if e, err := ParseEdibility(s); err == nil {
		return e
	}
	return Unknown
}

// Location is a geotag in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return errors.Validationf("latitude %v out of range [-90, 90]", l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return errors.Validationf("longitude %v out of range [-180, 180]", l.Longitude)
	}
	return nil
}

// Record is one saved identification. Only IsFavorite changes after creation.
type Record struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId,omitempty"`
	Name           string    `json:"name"`
	ScientificName string    `json:"scientificName"`
	Edibility      Edibility `json:"edibility"`
	ImageURI       string    `json:"imageUri"`
	Location       *Location `json:"location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Description    string    `json:"description,omitempty"`
	SavedAt        time.Time `json:"savedAt"`
	IsFavorite     bool      `json:"isFavorite"`
}

// HasLocation reports whether the record can be drawn on a map.
func (r Record) HasLocation() bool { return r.Location != nil }

// UnmarshalJSON also accepts blobs written by the mobile app, which stored
// the creation time as "timestamp" (epoch milliseconds or an ISO string)
// and the photo as "imageUrl".
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp,omitempty"`
		ImageURL  string          `json:"imageUrl,omitempty"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ImageURI == "" {
		r.ImageURI = aux.ImageURL
	}
	if r.SavedAt.IsZero() && len(aux.Timestamp) > 0 {
		t, err := parseLegacyTimestamp(aux.Timestamp)
		if err != nil {
			return err
		}
		r.SavedAt = t
	}
	r.Edibility = normalizeEdibility(string(r.Edibility))
	return nil
}

func parseLegacyTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Newf("unrecognised timestamp %q", s).
			Category(errors.CategoryPersistence).
			Build()
	}
	return t, nil
}

// NewRecordInput carries the caller-supplied fields of a new record.
type NewRecordInput struct {
	Name           string    `json:"name"`
	ScientificName string    `json:"scientificName"`
	Edibility      Edibility `json:"edibility"`
	ImageURI       string    `json:"imageUri"`
	Location       *Location `json:"location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Description    string    `json:"description,omitempty"`
}

// Validate reports the first missing or malformed field.
func (in NewRecordInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.ValidationError("name is required")
	case strings.TrimSpace(in.ScientificName) == "":
		return errors.ValidationError("scientificName is required")
	case in.Edibility == "":
		return errors.ValidationError("edibility is required")
	case !in.Edibility.Valid():
		return errors.Validationf("edibility must be one of edible, poisonous, unknown, got %q", in.Edibility)
	case strings.TrimSpace(in.ImageURI) == "":
		return errors.ValidationError("imageUri is required")
	case math.IsNaN(in.Confidence) || in.Confidence < 0:
		return errors.Validationf("confidence %v must be a non-negative number", in.Confidence)
	}
	if in.Location != nil {
		return in.Location.Validate()
	}
	return nil
}

// newRecord stamps identity, owner and time onto validated input.
func newRecord(in NewRecordInput, id, userID string, now time.Time) Record {
	r := Record{
		ID:             id,
		UserID:         userID,
		Name:           in.Name,
		ScientificName: in.ScientificName,
		Edibility:      in.Edibility,
		ImageURI:       in.ImageURI,
		Notes:          in.Notes,
		Confidence:     in.Confidence,
		Description:    in.Description,
		SavedAt:        now.UTC(),
		IsFavorite:     false,
	}
	if in.Location != nil {
		loc := *in.Location
		r.Location = &loc
	}
	return r
}

// clone returns a copy that shares no pointers with r.
func (r Record) clone() Record {
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	return r
}

func cloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].clone()
	}
	return out
}
