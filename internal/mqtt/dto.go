package mqtt

import (
	"time"

	"github.com/mycolog/mycolog/internal/collection"
)

// EventDTO is the JSON payload published for each collection change.
//
// Field names are part of the published contract consumed by home automation
// rules; add fields, do not rename them.
type EventDTO struct {
	Kind      string    `json:"kind"`
	RecordID  string    `json:"recordId,omitempty"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`

	Name           string  `json:"name,omitempty"`
	ScientificName string  `json:"scientificName,omitempty"`
	Edibility      string  `json:"edibility,omitempty"`
	IsFavorite     *bool   `json:"isFavorite,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	HasLocation    bool    `json:"hasLocation"`
}

// NewEventDTO converts a committed change.
func NewEventDTO(c collection.Change, now time.Time) EventDTO {
	dto := EventDTO{
		Kind:      string(c.Kind),
		RecordID:  c.ID,
		Revision:  c.Revision,
		Timestamp: now.UTC(),
	}
	if r := c.Record; r != nil {
		dto.RecordID = r.ID
		dto.Name = r.Name
		dto.ScientificName = r.ScientificName
		dto.Edibility = string(r.Edibility)
		fav := r.IsFavorite
		dto.IsFavorite = &fav
		if r.HasLocation() {
			dto.HasLocation = true
			dto.Latitude = r.Location.Latitude
			dto.Longitude = r.Location.Longitude
		}
	}
	return dto
}
