package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// snapshotRecord is the wire form used for the shared cache tier and the
// Kafka topic. Decimals keep their exact string form.
type snapshotRecord struct {
	Values     map[Field]decimal.Decimal `json:"values"`
	Origins    map[Field]Provenance      `json:"origins,omitempty"`
	Provenance Provenance                `json:"provenance"`
	FetchedAt  time.Time                 `json:"fetched_at"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotRecord{
		Values:     s.Values(),
		Origins:    s.Origins(),
		Provenance: s.Provenance,
		FetchedAt:  s.FetchedAt,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Provenance != ProvenanceLive && rec.Provenance != ProvenanceFallback {
		return fmt.Errorf("snapshot: unknown provenance %q", rec.Provenance)
	}
	for _, f := range InputFields() {
		if _, ok := rec.Values[f]; !ok {
			return fmt.Errorf("snapshot: missing field %s", f)
		}
	}

	var origins map[Field]Provenance
	if len(rec.Origins) > 0 {
		origins = rec.Origins
	}
	*s = Compose(rec.Values, origins, rec.Provenance, rec.FetchedAt)
	return nil
}
