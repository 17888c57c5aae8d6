package fallback

import (
	"fmt"
	"time"

	"MacroPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// DefaultVersion labels the built-in last-known-good table.
const DefaultVersion = "2025.02.23"

// DefaultTable is the built-in last-known-good table.
func DefaultTable() map[models.Field]string {
	return map[models.Field]string{
		models.FieldIndexLevel:     "3382",
		models.FieldIndexChangePct: "0.3",
		models.FieldOffshoreRate:   "6.89",
		models.FieldOil:            "74.2",
		models.FieldGold:           "2912",
		models.FieldSilver:         "32.45",
		models.FieldVIX:            "15.8",
		models.FieldNetFlow:        "187",
	}
}

// Store holds the read-only substitution values. It is built once at
// startup and safe for concurrent use.
type Store struct {
	version string
	values  models.Values
}

// New parses a table of decimal strings. Every input field must be present;
// the ratio is derived and may not be configured.
func New(version string, table map[models.Field]string) (*Store, error) {
	if version == "" {
		version = DefaultVersion
	}

	values := make(models.Values, len(table))
	for _, f := range models.InputFields() {
		raw, ok := table[f]
		if !ok {
			return nil, fmt.Errorf("fallback: missing value for %s", f)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("fallback: %s: %w", f, err)
		}
		values[f] = d
	}
	if _, ok := table[models.FieldGoldSilverRatio]; ok {
		return nil, fmt.Errorf("fallback: %s is derived and cannot be configured", models.FieldGoldSilverRatio)
	}

	return &Store{version: version, values: values}, nil
}

// NewDefault returns the store built from DefaultTable.
func NewDefault() *Store {
	s, err := New(DefaultVersion, DefaultTable())
	if err != nil {
		panic(err)
	}
	return s
}

// Defaults returns a copy of the substitution values.
func (s *Store) Defaults() models.Values {
	out := make(models.Values, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Value returns one substitution value.
func (s *Store) Value(f models.Field) decimal.Decimal {
	return s.values[f]
}

// Snapshot builds a FALLBACK snapshot stamped at.
func (s *Store) Snapshot(at time.Time) models.Snapshot {
	return models.Compose(s.values, nil, models.ProvenanceFallback, at)
}

func (s *Store) Version() string {
	return s.version
}
