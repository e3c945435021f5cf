package ingest

import (
	"context"
	"time"

	"github.com/rawblock/sentinel/internal/counters"
	"github.com/rawblock/sentinel/internal/delta"
	"github.com/rawblock/sentinel/pkg/models"
)

// BackfillReplayer re-runs swap inference and persistence for a single
// retained TxDeltaRecord — the same two steps Processor.Handle performs
// for a live message, minus trigger evaluation (a mint reaching the
// replayer is already HOT; there is nothing left to promote). It
// implements state.BackfillReplayer.
type BackfillReplayer struct {
	inferencer    *delta.Inferencer
	minConfidence float64
	counters      *counters.Store
	swapEvents    SwapEventStore
}

// NewBackfillReplayer constructs a BackfillReplayer. swapEvents may be
// nil, in which case replayed swaps are counted but not persisted as
// full events.
func NewBackfillReplayer(minConfidence float64, counterStore *counters.Store, swapEvents SwapEventStore) *BackfillReplayer {
	return &BackfillReplayer{
		inferencer:    delta.NewInferencer(),
		minConfidence: minConfidence,
		counters:      counterStore,
		swapEvents:    swapEvents,
	}
}

// ReplayRecord re-infers swap intent from rec and, if it promotes,
// records it in the counters and (when configured) persists it as a
// full swap event — identical treatment to a transaction arriving live.
func (r *BackfillReplayer) ReplayRecord(ctx context.Context, mint string, rec models.TxDeltaRecord) error {
	candidates := delta.CandidateUsers(rec.TokenDeltas, rec.FeePayer)
	candidate := r.inferencer.Infer(rec.TokenDeltas, rec.SolDeltas, candidates)
	swap := delta.BuildSwapEvent(rec.Signature, rec.Slot, rec.BlockTime, rec.ProgramsInvoked, candidate, r.minConfidence)
	if swap == nil || swap.BaseMint != mint {
		return nil
	}

	now := time.Now()
	if err := r.counters.RecordSwap(ctx, mint, *swap, now); err != nil {
		return err
	}
	if r.swapEvents != nil {
		if err := r.swapEvents.InsertSwapEvent(ctx, *swap); err != nil {
			return err
		}
	}
	return nil
}
