package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func rec(id, name, sci string, e collection.Edibility, fav bool, offset time.Duration) collection.Record {
	return collection.Record{
		ID:             id,
		Name:           name,
		ScientificName: sci,
		Edibility:      e,
		ImageURI:       "img://" + id,
		SavedAt:        base.Add(offset),
		IsFavorite:     fav,
	}
}

func at(r collection.Record, lat, lon float64) collection.Record {
	r.Location = &collection.Location{Latitude: lat, Longitude: lon}
	return r
}

func ids(records []collection.Record) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].ID
	}
	return out
}

func abc() []collection.Record {
	return []collection.Record{
		rec("A", "Golden Chanterelle", "Cantharellus cibarius", collection.Edible, false, 0),
		rec("B", "Destroying Angel", "Amanita virosa", collection.Poisonous, true, time.Hour),
		rec("C", "Brown Roll-rim", "Paxillus involutus", collection.Unknown, false, 2*time.Hour),
	}
}

func TestProjectFilters(t *testing.T) {
	t.Parallel()

	records := abc()
	mid := base.Add(time.Hour)
	late := base.Add(90 * time.Minute)

	tests := []struct {
		name   string
		modify func(c *FilterCriteria)
		want   []string
	}{
		{"defaults keep everything", func(*FilterCriteria) {}, []string{"A", "B", "C"}},
		{"favorites only", func(c *FilterCriteria) { c.FavoritesOnly = true }, []string{"B"}},
		{"edible and unknown in original order", func(c *FilterCriteria) {
			c.EdibilityClasses = []collection.Edibility{collection.Unknown, collection.Edible}
		}, []string{"A", "C"}},
		{"empty class set means all", func(c *FilterCriteria) { c.EdibilityClasses = nil }, []string{"A", "B", "C"}},
		{"search is case-insensitive substring", func(c *FilterCriteria) { c.SearchQuery = "canth" }, []string{"A"}},
		{"search matches scientific name", func(c *FilterCriteria) { c.SearchQuery = "AMANITA" }, []string{"B"}},
		{"search keeps inner and outer spaces", func(c *FilterCriteria) { c.SearchQuery = " chanterelle" }, []string{"A"}},
		{"search is not trimmed", func(c *FilterCriteria) { c.SearchQuery = "  canth " }, []string{}},
		{"inclusive start bound", func(c *FilterCriteria) { c.Start = &mid }, []string{"B", "C"}},
		{"inclusive end bound", func(c *FilterCriteria) { c.End = &mid }, []string{"A", "B"}},
		{"start after end yields nothing", func(c *FilterCriteria) { c.Start, c.End = &late, &mid }, []string{}},
		{"predicates combine", func(c *FilterCriteria) {
			c.FavoritesOnly = true
			c.SearchQuery = "canth"
		}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := DefaultCriteria()
			tt.modify(&c)
			assert.Equal(t, tt.want, ids(Project(records, c)))
		})
	}
}

func TestProjectSorts(t *testing.T) {
	t.Parallel()

	records := []collection.Record{
		rec("1", "russula", "Russula emetica", collection.Poisonous, false, 3*time.Hour),
		rec("2", "Amethyst Deceiver", "Laccaria amethystina", collection.Edible, false, time.Hour),
		rec("3", "Étoile", "Geastrum triplex", collection.Unknown, false, 2*time.Hour),
		rec("4", "boletus", "Boletus edulis", collection.Edible, false, 0),
	}

	tests := []struct {
		key  SortKey
		asc  bool
		want []string
	}{
		{SortSavedAt, true, []string{"4", "2", "3", "1"}},
		{SortSavedAt, false, []string{"1", "3", "2", "4"}},
		{SortName, true, []string{"2", "4", "3", "1"}},
		{SortName, false, []string{"1", "3", "4", "2"}},
		{SortScientificName, true, []string{"4", "3", "2", "1"}},
	}

	for _, tt := range tests {
		c := DefaultCriteria()
		c.SortKey, c.SortAscending = tt.key, tt.asc
		assert.Equal(t, tt.want, ids(Project(records, c)), "key %s asc %v", tt.key, tt.asc)
	}
}

func TestProjectTiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	records := []collection.Record{
		rec("x", "Same", "S", collection.Edible, false, time.Hour),
		rec("early", "Early", "E", collection.Edible, false, 0),
		rec("y", "Same", "S", collection.Edible, false, time.Hour),
		rec("z", "Same", "S", collection.Edible, false, time.Hour),
	}

	c := DefaultCriteria()
	assert.Equal(t, []string{"early", "x", "y", "z"}, ids(Project(records, c)))

	c.SortAscending = false
	assert.Equal(t, []string{"x", "y", "z", "early"}, ids(Project(records, c)),
		"descending order does not reverse ties")

	c.SortKey = SortName
	assert.Equal(t, []string{"x", "y", "z", "early"}, ids(Project(records, c)))
}

func TestProjectIsPure(t *testing.T) {
	t.Parallel()

	records := abc()
	snapshot := make([]collection.Record, len(records))
	copy(snapshot, records)

	c := DefaultCriteria()
	c.SortKey, c.SortAscending = SortName, false
	first := Project(records, c)
	second := Project(records, c)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, records, "input is not reordered")

	first[0].Name = "changed"
	assert.NotEqual(t, "changed", records[0].Name)
	assert.NotEqual(t, "changed", second[0].Name)
}

func TestParseSortKey(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]SortKey{
		"":               SortSavedAt,
		"date":           SortSavedAt,
		"savedAt":        SortSavedAt,
		"name":           SortName,
		"scientificName": SortScientificName,
	} {
		got, err := ParseSortKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseSortKey("colour")
	require.Error(t, err)
}

func TestMapPointsExcludeRecordsWithoutLocation(t *testing.T) {
	t.Parallel()

	records := abc()
	records[0] = at(records[0], 60.17, 24.94)
	records[2] = at(records[2], 60.20, 24.90)

	points := MapPoints(records, DefaultCriteria())
	require.Len(t, points, 2)
	assert.Equal(t, "A", points[0].ID)
	assert.Equal(t, ColorEdible, points[0].Color)
	assert.Equal(t, "C", points[1].ID)
	assert.Equal(t, ColorUnknown, points[1].Color)

	// B matches the favorites filter but has no location
	c := DefaultCriteria()
	c.FavoritesOnly = true
	assert.Empty(t, MapPoints(records, c))
}

func TestMarkerColor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "#4CAF50", MarkerColor(collection.Edible))
	assert.Equal(t, "#F44336", MarkerColor(collection.Poisonous))
	assert.Equal(t, "#FFC107", MarkerColor(collection.Unknown))
	assert.Equal(t, "#FFC107", MarkerColor(""))
}

func TestFitRegion(t *testing.T) {
	t.Parallel()

	_, ok := FitRegion(nil)
	assert.False(t, ok)

	r, ok := FitRegion([]MapPoint{{Latitude: 60, Longitude: 24}, {Latitude: 61, Longitude: 26}})
	require.True(t, ok)
	assert.InDelta(t, 60.5, r.Latitude, 1e-9)
	assert.InDelta(t, 25.0, r.Longitude, 1e-9)
	assert.InDelta(t, 1.1, r.LatitudeDelta, 1e-9)
	assert.InDelta(t, 2.2, r.LongitudeDelta, 1e-9)

	single, ok := FitRegion([]MapPoint{{Latitude: 10, Longitude: 20}})
	require.True(t, ok)
	assert.InDelta(t, 0.01, single.LatitudeDelta, 1e-12, "span never collapses")
	assert.InDelta(t, 0.01, single.LongitudeDelta, 1e-12)

	def := DefaultRegion(1, 2)
	assert.InDelta(t, 0.0922, def.LatitudeDelta, 1e-12)
	assert.InDelta(t, 0.0421, def.LongitudeDelta, 1e-12)
}

func TestClusterPoints(t *testing.T) {
	t.Parallel()

	region := Region{Latitude: 60, Longitude: 25, LatitudeDelta: 1, LongitudeDelta: 1}
	vp := Viewport{Width: 400, Height: 400}
	points := []MapPoint{
		{ID: "b", Latitude: 60.301, Longitude: 24.801},
		{ID: "lone", Latitude: 59.7, Longitude: 25.3},
		{ID: "a", Latitude: 60.302, Longitude: 24.802},
	}

	res := ClusterPoints(points, region, vp, DefaultClusterRadius)
	require.Len(t, res.Clusters, 1)
	require.Len(t, res.Singles, 1)
	assert.Equal(t, "lone", res.Singles[0].ID)

	c := res.Clusters[0]
	assert.Equal(t, 2, c.Count)
	assert.InDelta(t, 60.3015, c.Latitude, 1e-9)
	assert.InDelta(t, 24.8015, c.Longitude, 1e-9)

	// the same members in any order give the same id
	swapped := []MapPoint{points[2], points[1], points[0]}
	again := ClusterPoints(swapped, region, vp, DefaultClusterRadius)
	require.Len(t, again.Clusters, 1)
	assert.Equal(t, c.ID, again.Clusters[0].ID)

	zoomed := ZoomToCluster(&c, region)
	assert.InDelta(t, c.Latitude, zoomed.Latitude, 1e-12)
	assert.InDelta(t, 0.5, zoomed.LatitudeDelta, 1e-12)
	assert.InDelta(t, 0.5, zoomed.LongitudeDelta, 1e-12)
}

func TestClusterPointsDisabled(t *testing.T) {
	t.Parallel()

	points := []MapPoint{{ID: "a", Latitude: 1, Longitude: 1}, {ID: "b", Latitude: 1, Longitude: 1}}
	region := DefaultRegion(1, 1)

	for _, tc := range []struct {
		vp     Viewport
		radius float64
	}{
		{Viewport{Width: 100, Height: 100}, 0},
		{Viewport{Width: 0, Height: 100}, 40},
		{Viewport{Width: 100, Height: -1}, 40},
	} {
		res := ClusterPoints(points, region, tc.vp, tc.radius)
		assert.Empty(t, res.Clusters)
		assert.Len(t, res.Singles, 2)
	}
}

func TestShareTexts(t *testing.T) {
	t.Parallel()

	r := rec("A", "Golden Chanterelle", "Cantharellus cibarius", collection.Edible, false, 0)
	assert.Equal(t, "Check out this Golden Chanterelle (Cantharellus cibarius) I found!", ShareMessage(&r))

	r = at(r, 60.1699, 24.9384)
	assert.Equal(t,
		"Check out this Golden Chanterelle (Cantharellus cibarius) I found!\n\nLocation: https://www.google.com/maps?q=60.1699,24.9384",
		ShareMessage(&r))
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&destination=60.1699,24.9384",
		DirectionsURL(*r.Location))
}

func TestStoredEdibilityVisibleByDefault(t *testing.T) {
	t.Parallel()

	const blob = `[
	  {"id":"a","name":"Porcini","scientificName":"Boletus edulis","edibility":"Edible",
	   "imageUri":"img://a","savedAt":"2024-05-01T08:00:00Z","location":{"latitude":61.5,"longitude":23.8}},
	  {"id":"b","name":"Earthball","scientificName":"Scleroderma citrinum","edibility":"inedible",
	   "imageUri":"img://b","savedAt":"2024-05-02T08:00:00Z","location":{"latitude":61.6,"longitude":23.9}}
	]`
	var records []collection.Record
	require.NoError(t, json.Unmarshal([]byte(blob), &records))

	c := DefaultCriteria()
	assert.Equal(t, []string{"a", "b"}, ids(Project(records, c)))

	points := MapPoints(records, c)
	require.Len(t, points, 2)
	assert.Equal(t, collection.Edible, points[0].Edibility)
	assert.Equal(t, collection.Unknown, points[1].Edibility)
	assert.Equal(t, MarkerColor(collection.Unknown), points[1].Color)
}
