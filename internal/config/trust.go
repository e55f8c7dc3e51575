package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TrustMatrix maps a clinic field to the sources allowed to write it,
// ordered from most to least trusted. A source absent from a field's
// list never overwrites an existing value for that field.
type TrustMatrix map[string][]string

// DefaultTrustMatrix returns the built-in field trust ordering used
// when no trust file is configured.
func DefaultTrustMatrix() TrustMatrix {
	return TrustMatrix{
		"name":     {"registry", "google_places", "yelp"},
		"address":  {"google_places", "registry", "yelp"},
		"phone":    {"registry", "google_places", "yelp"},
		"website":  {"google_places", "yelp", "registry"},
		"coords":   {"google_places", "yelp"},
		"category": {"registry", "google_places", "yelp"},
	}
}

// LoadTrustMatrix reads a trust matrix from a YAML file. An empty path
// returns the default matrix.
func LoadTrustMatrix(path string) (TrustMatrix, error) {
	if path == "" {
		return DefaultTrustMatrix(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read trust file %s", path)
	}

	var tm TrustMatrix
	if err := yaml.Unmarshal(data, &tm); err != nil {
		return nil, eris.Wrapf(err, "config: parse trust file %s", path)
	}
	if len(tm) == 0 {
		return nil, eris.Errorf("config: trust file %s defines no fields", path)
	}
	return tm, nil
}

// Rank returns the trust rank of source for field; lower is more
// trusted. The second return is false when the source may not write
// the field at all.
func (tm TrustMatrix) Rank(field, source string) (int, bool) {
	for i, s := range tm[field] {
		if s == source {
			return i, true
		}
	}
	return 0, false
}
