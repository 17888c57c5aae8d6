package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance tells a reader whether a value came from a provider in the
// current cycle or from the last-known-good table.
type Provenance string

const (
	ProvenanceLive     Provenance = "LIVE"
	ProvenanceFallback Provenance = "FALLBACK"
)

// Field names a scalar of the snapshot. The string form is used in config
// keys, the quote endpoint and per-field provenance.
type Field string

const (
	FieldIndexLevel      Field = "index_level"
	FieldIndexChangePct  Field = "index_change_pct"
	FieldOffshoreRate    Field = "offshore_rate"
	FieldGold            Field = "gold"
	FieldSilver          Field = "silver"
	FieldOil             Field = "oil"
	FieldVIX             Field = "vix"
	FieldNetFlow         Field = "net_flow"
	FieldGoldSilverRatio Field = "gold_silver_ratio"
)

// InputFields are the fields supplied by sources. The ratio is derived and
// never fetched.
func InputFields() []Field {
	return []Field{
		FieldIndexLevel,
		FieldIndexChangePct,
		FieldOffshoreRate,
		FieldGold,
		FieldSilver,
		FieldOil,
		FieldVIX,
		FieldNetFlow,
	}
}

// AllFields is InputFields plus the derived ratio.
func AllFields() []Field {
	return append(InputFields(), FieldGoldSilverRatio)
}

// ParseField accepts any name returned by AllFields.
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields() {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Values is a partial record of scalars keyed by field.
type Values map[Field]decimal.Decimal

// Snapshot is the combined market state at one instant. It is built with
// Compose and never mutated afterwards.
type Snapshot struct {
	IndexLevel      decimal.Decimal
	IndexChangePct  decimal.Decimal
	OffshoreRate    decimal.Decimal
	Gold            decimal.Decimal
	Silver          decimal.Decimal
	Oil             decimal.Decimal
	VIX             decimal.Decimal
	NetFlow         decimal.Decimal
	GoldSilverRatio decimal.Decimal

	Provenance Provenance
	FetchedAt  time.Time

	origins map[Field]Provenance
}

// Compose builds a snapshot from input values. origins records where each
// input field came from; a nil map means every field shares provenance
// whole. The ratio is always derived from the metals in values and takes
// the weaker of the two metal origins. The snapshot is LIVE only when every
// field is LIVE.
func Compose(values Values, origins map[Field]Provenance, whole Provenance, at time.Time) Snapshot {
	s := Snapshot{
		IndexLevel:     values[FieldIndexLevel],
		IndexChangePct: values[FieldIndexChangePct],
		OffshoreRate:   values[FieldOffshoreRate],
		Gold:           values[FieldGold],
		Silver:         values[FieldSilver],
		Oil:            values[FieldOil],
		VIX:            values[FieldVIX],
		NetFlow:        values[FieldNetFlow],
		FetchedAt:      at,
		origins:        make(map[Field]Provenance, len(AllFields())),
	}
	s.GoldSilverRatio = Ratio(s.Gold, s.Silver)

	for _, f := range InputFields() {
		p := whole
		if origins != nil {
			if o, ok := origins[f]; ok {
				p = o
			} else {
				p = ProvenanceFallback
			}
		}
		s.origins[f] = p
	}

	s.origins[FieldGoldSilverRatio] = ProvenanceLive
	if s.origins[FieldGold] != ProvenanceLive || s.origins[FieldSilver] != ProvenanceLive {
		s.origins[FieldGoldSilverRatio] = ProvenanceFallback
	}

	s.Provenance = ProvenanceLive
	for _, p := range s.origins {
		if p != ProvenanceLive {
			s.Provenance = ProvenanceFallback
			break
		}
	}
	return s
}

// Ratio divides gold by silver. A zero silver price yields zero.
func Ratio(gold, silver decimal.Decimal) decimal.Decimal {
	if silver.IsZero() {
		return decimal.Zero
	}
	return gold.Div(silver)
}

// Value returns the scalar stored under f.
func (s Snapshot) Value(f Field) (decimal.Decimal, bool) {
	switch f {
	case FieldIndexLevel:
		return s.IndexLevel, true
	case FieldIndexChangePct:
		return s.IndexChangePct, true
	case FieldOffshoreRate:
		return s.OffshoreRate, true
	case FieldGold:
		return s.Gold, true
	case FieldSilver:
		return s.Silver, true
	case FieldOil:
		return s.Oil, true
	case FieldVIX:
		return s.VIX, true
	case FieldNetFlow:
		return s.NetFlow, true
	case FieldGoldSilverRatio:
		return s.GoldSilverRatio, true
	}
	return decimal.Zero, false
}

// Values returns a fresh copy of the input fields.
func (s Snapshot) Values() Values {
	out := make(Values, len(InputFields()))
	for _, f := range InputFields() {
		out[f], _ = s.Value(f)
	}
	return out
}

// Origin reports the provenance of a single field. An empty snapshot falls
// back to the snapshot-level provenance.
func (s Snapshot) Origin(f Field) Provenance {
	if p, ok := s.origins[f]; ok {
		return p
	}
	return s.Provenance
}

// Origins returns a copy of the per-field provenance.
func (s Snapshot) Origins() map[Field]Provenance {
	out := make(map[Field]Provenance, len(s.origins))
	for k, v := range s.origins {
		out[k] = v
	}
	return out
}

// IsZero reports whether s was never composed.
func (s Snapshot) IsZero() bool {
	return s.FetchedAt.IsZero() && s.origins == nil
}
