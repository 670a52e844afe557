package identify

import (
	"fmt"

	"github.com/antonholmquist/jason"
	"github.com/mycolog/mycolog/internal/collection"
)

// Characteristics describes the field marks the service reports.
type Characteristics struct {
	Cap     string `json:"cap"`
	Gills   string `json:"gills"`
	Stem    string `json:"stem"`
	Habitat string `json:"habitat"`
}

// SimilarSpecies is a look-alike the service suggests checking against.
type SimilarSpecies struct {
	Name           string               `json:"name"`
	ScientificName string               `json:"scientificName"`
	Edibility      collection.Edibility `json:"edibility"`
}

// Result is a validated identification.
type Result struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	ScientificName  string               `json:"scientificName"`
	Confidence      float64              `json:"confidence"`
	Description     string               `json:"description"`
	Edibility       collection.Edibility `json:"edibility"`
	Characteristics Characteristics      `json:"characteristics"`
	SimilarSpecies  []SimilarSpecies     `json:"similarSpecies"`
}

// RecordInput turns the identification into the input for saving a find.
func (r *Result) RecordInput(imageURI string, loc *collection.Location, notes string) collection.NewRecordInput {
	return collection.NewRecordInput{
		Name:           r.Name,
		ScientificName: r.ScientificName,
		Edibility:      r.Edibility,
		ImageURI:       imageURI,
		Location:       loc,
		Notes:          notes,
		Confidence:     r.Confidence,
		Description:    r.Description,
	}
}

// shapeError describes where a response diverged from the expected shape.
type shapeError struct {
	path   string
	reason string
}

func (e *shapeError) Error() string {
	return fmt.Sprintf("unexpected response shape at %s: %s", e.path, e.reason)
}

// parseResult validates a decoded response body. Required fields must be
// present with the right type; optional ones may be missing or null but are
// rejected when present with the wrong type.
func parseResult(obj *jason.Object) (*Result, error) {
	var (
		r   Result
		err error
	)

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"id", &r.ID},
		{"name", &r.Name},
		{"scientificName", &r.ScientificName},
	} {
		if *f.dst, err = requiredString(obj, f.key, f.key); err != nil {
			return nil, err
		}
	}

	if _, err = obj.GetValue("confidence"); err != nil {
		return nil, &shapeError{"confidence", "missing"}
	}
	if r.Confidence, err = obj.GetFloat64("confidence"); err != nil {
		return nil, &shapeError{"confidence", "not a number"}
	}
	if r.Confidence < 0 {
		return nil, &shapeError{"confidence", "negative"}
	}

	if r.Edibility, err = edibility(obj, "edibility", "edibility"); err != nil {
		return nil, err
	}
	if r.Description, err = optionalString(obj, "description", "description"); err != nil {
		return nil, err
	}

	if present(obj, "characteristics") {
		ch, err := obj.GetObject("characteristics")
		if err != nil {
			return nil, &shapeError{"characteristics", "not an object"}
		}
		for _, f := range []struct {
			key string
			dst *string
		}{
			{"cap", &r.Characteristics.Cap},
			{"gills", &r.Characteristics.Gills},
			{"stem", &r.Characteristics.Stem},
			{"habitat", &r.Characteristics.Habitat},
		} {
			if *f.dst, err = optionalString(ch, f.key, "characteristics."+f.key); err != nil {
				return nil, err
			}
		}
	}

	r.SimilarSpecies = []SimilarSpecies{}
	if present(obj, "similarSpecies") {
		list, err := obj.GetObjectArray("similarSpecies")
		if err != nil {
			return nil, &shapeError{"similarSpecies", "not an array of objects"}
		}
		for i, item := range list {
			path := fmt.Sprintf("similarSpecies[%d]", i)
			var s SimilarSpecies
			if s.Name, err = requiredString(item, "name", path+".name"); err != nil {
				return nil, err
			}
			if s.ScientificName, err = requiredString(item, "scientificName", path+".scientificName"); err != nil {
				return nil, err
			}
			if s.Edibility, err = edibility(item, "edibility", path+".edibility"); err != nil {
				return nil, err
			}
			r.SimilarSpecies = append(r.SimilarSpecies, s)
		}
	}

	return &r, nil
}

// present reports whether key exists and is not null.
func present(obj *jason.Object, key string) bool {
	v, err := obj.GetValue(key)
	if err != nil {
		return false
	}
	return v.Null() != nil
}

func requiredString(obj *jason.Object, key, path string) (string, error) {
	if !present(obj, key) {
		return "", &shapeError{path, "missing"}
	}
	s, err := obj.GetString(key)
	if err != nil {
		return "", &shapeError{path, "not a string"}
	}
	if s == "" {
		return "", &shapeError{path, "empty"}
	}
	return s, nil
}

func optionalString(obj *jason.Object, key, path string) (string, error) {
	if !present(obj, key) {
		return "", nil
	}
	s, err := obj.GetString(key)
	if err != nil {
		return "", &shapeError{path, "not a string"}
	}
	return s, nil
}

func edibility(obj *jason.Object, key, path string) (collection.Edibility, error) {
	s, err := requiredString(obj, key, path)
	if err != nil {
		return "", err
	}
	e, err := collection.ParseEdibility(s)
	if err != nil {
		return "", &shapeError{path, fmt.Sprintf("unknown class %q", s)}
	}
	return e, nil
}
