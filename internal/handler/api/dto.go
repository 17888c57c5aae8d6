package api

import (
	"time"

	"MacroPull/internal/domain/models"
)

// SnapshotResponse is the dashboard view of a snapshot. Prices are JSON
// numbers; provenance is reported per field as well as overall.
type SnapshotResponse struct {
	IndexLevel      float64           `json:"index_level"`
	IndexChangePct  float64           `json:"index_change_pct"`
	OffshoreRate    float64           `json:"offshore_rate"`
	Gold            float64           `json:"gold"`
	Silver          float64           `json:"silver"`
	Oil             float64           `json:"oil"`
	VIX             float64           `json:"vix"`
	NetFlow         float64           `json:"net_flow"`
	GoldSilverRatio float64           `json:"gold_silver_ratio"`
	Provenance      string            `json:"provenance"`
	FetchedAt       time.Time         `json:"fetched_at"`
	AgeSeconds      float64           `json:"age_seconds"`
	FallbackVersion string            `json:"fallback_version"`
	Fields          map[string]string `json:"fields"`
}

type QuoteResponse struct {
	Field      string    `json:"field"`
	Value      float64   `json:"value"`
	Display    string    `json:"display"`
	Provenance string    `json:"provenance"`
	FetchedAt  time.Time `json:"fetched_at"`
}

func toSnapshotResponse(s models.Snapshot, fallbackVersion string, now time.Time) SnapshotResponse {
	fields := make(map[string]string, len(models.AllFields()))
	for _, f := range models.AllFields() {
		fields[string(f)] = string(s.Origin(f))
	}

	age := now.Sub(s.FetchedAt).Seconds()
	if age < 0 {
		age = 0
	}

	return SnapshotResponse{
		IndexLevel:      s.IndexLevel.InexactFloat64(),
		IndexChangePct:  s.IndexChangePct.InexactFloat64(),
		OffshoreRate:    s.OffshoreRate.InexactFloat64(),
		Gold:            s.Gold.InexactFloat64(),
		Silver:          s.Silver.InexactFloat64(),
		Oil:             s.Oil.InexactFloat64(),
		VIX:             s.VIX.InexactFloat64(),
		NetFlow:         s.NetFlow.InexactFloat64(),
		GoldSilverRatio: s.GoldSilverRatio.Round(4).InexactFloat64(),
		Provenance:      string(s.Provenance),
		FetchedAt:       s.FetchedAt,
		AgeSeconds:      age,
		FallbackVersion: fallbackVersion,
		Fields:          fields,
	}
}
