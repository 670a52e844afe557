package view

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mycolog/mycolog/internal/collection"
)

// Marker colours per edibility class
const (
	ColorEdible    = "#4CAF50"
	ColorPoisonous = "#F44336"
	ColorUnknown   = "#FFC107"
)

// Default map span when there is nothing to fit
const (
	DefaultLatitudeDelta  = 0.0922
	DefaultLongitudeDelta = 0.0421

	minRegionDelta = 0.01
	regionPadding  = 0.1
)

// MarkerColor returns the marker colour for e. Anything that is not edible
// or poisonous is drawn as unknown.
func MarkerColor(e collection.Edibility) string {
	switch e {
	case collection.Edible:
		return ColorEdible
	case collection.Poisonous:
		return ColorPoisonous
	default:
		return ColorUnknown
	}
}

// MapPoint is one drawable record. ID is the stable identity the clusterer
// groups by.
type MapPoint struct {
	ID             string               `json:"id"`
	Latitude       float64              `json:"latitude"`
	Longitude      float64              `json:"longitude"`
	Name           string               `json:"name"`
	ScientificName string               `json:"scientificName"`
	Edibility      collection.Edibility `json:"edibility"`
	IsFavorite     bool                 `json:"isFavorite"`
	Color          string               `json:"color"`
}

// MapPoints keeps only records with a location, then applies Project. A
// record without a location is never drawable, whatever the criteria.
func MapPoints(records []collection.Record, c FilterCriteria) []MapPoint {
	located := make([]collection.Record, 0, len(records))
	for i := range records {
		if records[i].HasLocation() {
			located = append(located, records[i])
		}
	}

	projected := Project(located, c)
	points := make([]MapPoint, len(projected))
	for i := range projected {
		r := &projected[i]
		points[i] = MapPoint{
			ID:             r.ID,
			Latitude:       r.Location.Latitude,
			Longitude:      r.Location.Longitude,
			Name:           r.Name,
			ScientificName: r.ScientificName,
			Edibility:      r.Edibility,
			IsFavorite:     r.IsFavorite,
			Color:          MarkerColor(r.Edibility),
		}
	}
	return points
}

// Region is a map viewport: a centre and the span it covers in degrees.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// DefaultRegion centres the default span on a coordinate.
func DefaultRegion(lat, lon float64) Region {
	return Region{
		Latitude:       lat,
		Longitude:      lon,
		LatitudeDelta:  DefaultLatitudeDelta,
		LongitudeDelta: DefaultLongitudeDelta,
	}
}

// FitRegion returns the region that shows every point: centred on the
// bounding box with 10% padding and never narrower than 0.01 degrees.
// ok is false when points is empty.
func FitRegion(points []MapPoint) (r Region, ok bool) {
	if len(points) == 0 {
		return Region{}, false
	}
	minLat, maxLat := points[0].Latitude, points[0].Latitude
	minLon, maxLon := points[0].Longitude, points[0].Longitude
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Latitude)
		maxLat = math.Max(maxLat, p.Latitude)
		minLon = math.Min(minLon, p.Longitude)
		maxLon = math.Max(maxLon, p.Longitude)
	}
	return Region{
		Latitude:       (minLat + maxLat) / 2,
		Longitude:      (minLon + maxLon) / 2,
		LatitudeDelta:  math.Max((maxLat-minLat)*(1+regionPadding), minRegionDelta),
		LongitudeDelta: math.Max((maxLon-minLon)*(1+regionPadding), minRegionDelta),
	}, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ShareMessage is the text offered to the platform share sheet.
func ShareMessage(r *collection.Record) string {
	msg := fmt.Sprintf("Check out this %s (%s) I found!", r.Name, r.ScientificName)
	if r.Location != nil {
		msg += "\n\nLocation: " + LocationURL(*r.Location)
	}
	return msg
}

// LocationURL links to a pin at loc.
func LocationURL(loc collection.Location) string {
	return "https://www.google.com/maps?q=" + formatCoord(loc.Latitude) + "," + formatCoord(loc.Longitude)
}

// DirectionsURL links to turn-by-turn directions to loc.
func DirectionsURL(loc collection.Location) string {
	return "https://www.google.com/maps/dir/?api=1&destination=" + formatCoord(loc.Latitude) + "," + formatCoord(loc.Longitude)
}
