package ingest

import (
	"context"
	"time"

	"github.com/rawblock/sentinel/internal/dlog"
	"github.com/rawblock/sentinel/pkg/models"
)

// DeltaLogBackfill adapts the retained delta log into a
// state.BackfillSource: it reads every retained record since the
// requested cutoff and filters down to the ones that touched mint.
type DeltaLogBackfill struct {
	deltaLog *dlog.Log
}

// NewDeltaLogBackfill constructs a DeltaLogBackfill over deltaLog.
func NewDeltaLogBackfill(deltaLog *dlog.Log) *DeltaLogBackfill {
	return &DeltaLogBackfill{deltaLog: deltaLog}
}

// ReadForMint implements state.BackfillSource.
func (b *DeltaLogBackfill) ReadForMint(ctx context.Context, mint string, since time.Time) ([]models.TxDeltaRecord, error) {
	raw, err := b.deltaLog.ReadRecent(since)
	if err != nil {
		return nil, err
	}

	var out []models.TxDeltaRecord
	for _, r := range raw {
		rec, err := dlog.DecodeDeltaRecord(r)
		if err != nil {
			continue
		}
		for _, m := range rec.MintsTouched {
			if m == mint {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}
