// Package view derives presentation data from a collection snapshot: the
// filtered and sorted list, map points with a fitted region and marker
// clusters, and share texts. Every function here is pure; none of them
// touches the store or mutates its input.
package view

import (
	"slices"
	"strings"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the field records are ordered by.
type SortKey string

const (
	SortSavedAt        SortKey = "savedAt"
	SortName           SortKey = "name"
	SortScientificName SortKey = "scientificName"
)

// ParseSortKey accepts the JSON field names plus "date" as an alias of savedAt.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.TrimSpace(s) {
	case "", "savedAt", "date", "timestamp":
		return SortSavedAt, nil
	case "name":
		return SortName, nil
	case "scientificName":
		return SortScientificName, nil
	}
	return "", errors.Validationf("sort key must be savedAt, name or scientificName, got %q", s)
}

// FilterCriteria selects and orders records. The zero value matches every
// record and sorts by savedAt descending; DefaultCriteria sorts ascending.
type FilterCriteria struct {
	// EdibilityClasses to include; empty means all classes.
	EdibilityClasses []collection.Edibility `json:"edibilityClasses,omitempty"`
	FavoritesOnly    bool                   `json:"favoritesOnly,omitempty"`
	// Start and End are inclusive bounds on SavedAt; nil is unbounded.
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	// SearchQuery is a case-insensitive substring of Name or ScientificName.
	SearchQuery   string  `json:"searchQuery,omitempty"`
	SortKey       SortKey `json:"sortKey,omitempty"`
	SortAscending bool    `json:"sortAscending"`
}

// DefaultCriteria includes every class and sorts oldest first.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{
		EdibilityClasses: slices.Clone(collection.AllEdibility),
		SortKey:          SortSavedAt,
		SortAscending:    true,
	}
}

// matcher is FilterCriteria compiled for repeated use.
type matcher struct {
	classes  map[collection.Edibility]bool
	favorite bool
	start    *time.Time
	end      *time.Time
	query    string
}

func (c *FilterCriteria) matcher() matcher {
	m := matcher{
		favorite: c.FavoritesOnly,
		start:    c.Start,
		end:      c.End,
		query:    strings.ToLower(c.SearchQuery),
	}
	if len(c.EdibilityClasses) > 0 {
		m.classes = make(map[collection.Edibility]bool, len(c.EdibilityClasses))
		for _, e := range c.EdibilityClasses {
			m.classes[e] = true
		}
	}
	return m
}

func (m *matcher) match(r *collection.Record) bool {
	if m.classes != nil && !m.classes[r.Edibility] {
		return false
	}
	if m.favorite && !r.IsFavorite {
		return false
	}
	if m.start != nil && r.SavedAt.Before(*m.start) {
		return false
	}
	if m.end != nil && r.SavedAt.After(*m.end) {
		return false
	}
	if m.query != "" &&
		!strings.Contains(strings.ToLower(r.Name), m.query) &&
		!strings.Contains(strings.ToLower(r.ScientificName), m.query) {
		return false
	}
	return true
}

// Project filters records by every active predicate of c and stable-sorts the
// result by c.SortKey. Records with equal keys keep their input order in both
// directions. The returned slice is new; records are copied by value.
func Project(records []collection.Record, c FilterCriteria) []collection.Record {
	m := c.matcher()
	out := make([]collection.Record, 0, len(records))
	for i := range records {
		if m.match(&records[i]) {
			out = append(out, records[i])
		}
	}

	cmp := comparator(c.SortKey)
	if c.SortAscending {
		slices.SortStableFunc(out, cmp)
	} else {
		slices.SortStableFunc(out, func(a, b collection.Record) int { return cmp(b, a) })
	}
	return out
}

// comparator returns the ascending order for key. Names use the root locale
// collation, with byte order breaking collation ties so the order is total.
func comparator(key SortKey) func(a, b collection.Record) int {
	switch key {
	case SortName:
		col := collate.New(language.Und)
		return func(a, b collection.Record) int { return compareText(col, a.Name, b.Name) }
	case SortScientificName:
		col := collate.New(language.Und)
		return func(a, b collection.Record) int { return compareText(col, a.ScientificName, b.ScientificName) }
	default:
		return func(a, b collection.Record) int { return a.SavedAt.Compare(b.SavedAt) }
	}
}

func compareText(col *collate.Collator, a, b string) int {
	if c := col.CompareString(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
