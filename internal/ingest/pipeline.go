package ingest

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/sentinel/internal/backpressure"
	"github.com/rawblock/sentinel/internal/cluster"
	"github.com/rawblock/sentinel/internal/counters"
	"github.com/rawblock/sentinel/internal/delta"
	"github.com/rawblock/sentinel/internal/dlog"
	"github.com/rawblock/sentinel/internal/enrichment"
	"github.com/rawblock/sentinel/internal/metrics"
	"github.com/rawblock/sentinel/internal/state"
	"github.com/rawblock/sentinel/internal/stream"
	"github.com/rawblock/sentinel/internal/triggers"
	"github.com/rawblock/sentinel/pkg/models"
)

// newWalletLookback is the window within which a wallet's first-seen
// timestamp qualifies it for a funding trace; wallets older than this
// are assumed already resolved or not worth the enrichment spend.
const newWalletLookback = 24 * time.Hour

// fundingTraceMaxHops mirrors the original system's default trace
// depth.
const fundingTraceMaxHops = 2

// Processor is the per-transaction handler run by the stream consumer
// pool: it turns one decoded stream.Message into deltas, an inferred
// swap (if any), counter updates, log entries, trigger evaluation, and
// state transitions. It implements stream.Handler.
type Processor struct {
	builder    *delta.Builder
	inferencer *delta.Inferencer
	minConfidence float64

	dedup       DupChecker
	deltaLog    *dlog.Log
	touchLog    *dlog.Log
	counterStore *counters.Store
	evaluator   *triggers.Evaluator
	stateMgr    *state.Manager
	backpressure *backpressure.Manager
	clusterer   *cluster.Engine
	enricher    enrichment.Enricher
	swapEvents  SwapEventStore
}

// DupChecker is the narrow dedup dependency, implemented by
// dedup.Filter.
type DupChecker interface {
	IsDuplicate(ctx context.Context, signature string) (bool, error)
}

// SwapEventStore is the narrow persistence dependency for full swap
// events, implemented by db.Store.
type SwapEventStore interface {
	InsertSwapEvent(ctx context.Context, swap models.SwapEventFull) error
}

// Config bundles every dependency a Processor needs.
type Config struct {
	MinSwapConfidence float64
	Dedup             DupChecker
	DeltaLog          *dlog.Log
	TouchLog          *dlog.Log
	Counters          *counters.Store
	Evaluator         *triggers.Evaluator
	StateManager      *state.Manager
	Backpressure      *backpressure.Manager
	Clusterer         *cluster.Engine
	Enricher          enrichment.Enricher
	SwapEvents        SwapEventStore
}

// NewProcessor constructs a Processor from cfg.
func NewProcessor(cfg Config) *Processor {
	return &Processor{
		builder:       delta.NewBuilder(),
		inferencer:    delta.NewInferencer(),
		minConfidence: cfg.MinSwapConfidence,
		dedup:         cfg.Dedup,
		deltaLog:      cfg.DeltaLog,
		touchLog:      cfg.TouchLog,
		counterStore:  cfg.Counters,
		evaluator:     cfg.Evaluator,
		stateMgr:      cfg.StateManager,
		backpressure:  cfg.Backpressure,
		clusterer:     cfg.Clusterer,
		enricher:      cfg.Enricher,
		swapEvents:    cfg.SwapEvents,
	}
}

// Handle decodes msg, runs it through the full pipeline, and returns
// an error only for conditions the consumer pool should log — per the
// error-handling policy, a message is always acked regardless of the
// return value here.
func (p *Processor) Handle(ctx context.Context, msg stream.Message) error {
	tx, err := DecodeRawTransaction(msg.Raw)
	if err != nil {
		return err
	}

	dup, err := p.dedup.IsDuplicate(ctx, tx.Signature)
	if err != nil {
		log.Printf("ingest: dedup check error for %s: %v", tx.Signature, err)
	} else if dup {
		metrics.DuplicatesDropped.Inc()
		return nil
	}

	metrics.TransactionsProcessed.Inc()

	var blockTime time.Time
	if tx.BlockTime > 0 {
		blockTime = time.Unix(tx.BlockTime, 0)
	}
	mode := p.backpressure.Update(ctx, blockTime)
	metrics.SetDegradationMode(string(mode))

	tokenDeltas, solDeltas := p.builder.Build(tx)
	mintsTouched := delta.MintsTouched(tokenDeltas)

	touchEvent := models.MintTouchedEvent{
		Signature:       tx.Signature,
		Slot:            tx.Slot,
		BlockTime:       tx.BlockTime,
		FeePayer:        tx.FeePayer,
		MintsTouched:    mintsTouched,
		ProgramsInvoked: delta.ProgramsInvoked(tx),
	}
	if p.touchLog != nil {
		if err := p.touchLog.Append(dlog.EncodeTouchEvent(touchEvent)); err != nil {
			log.Printf("ingest: touch log append error: %v", err)
		}
	}

	if mode == models.ModeCritical {
		// Signature + mints only; pause all further work until lag
		// and backlog recover.
		return nil
	}

	if p.deltaLog != nil {
		record := delta.ToDeltaRecord(tx, tokenDeltas, solDeltas)
		if err := p.deltaLog.Append(dlog.EncodeDeltaRecord(record)); err != nil {
			log.Printf("ingest: delta log append error: %v", err)
		}
	}

	if !p.backpressure.ShouldParseFull() {
		// Degraded: MintTouchedEvent + TxDeltaRecord only, no swap
		// inference or counter updates.
		return nil
	}

	candidates := delta.CandidateUsers(tokenDeltas, tx.FeePayer)
	candidate := p.inferencer.Infer(tokenDeltas, solDeltas, candidates)
	swap := delta.ToSwapEvent(tx, candidate, p.minConfidence)
	if swap == nil {
		return nil
	}

	metrics.SwapsDetected.Inc()
	now := time.Now()

	if err := p.stateMgr.TransitionToWarm(ctx, swap.BaseMint, now); err != nil {
		log.Printf("ingest: warm transition error for %s: %v", swap.BaseMint, err)
	}

	if err := p.counterStore.RecordSwap(ctx, swap.BaseMint, *swap, now); err != nil {
		log.Printf("ingest: counter record error for %s: %v", swap.BaseMint, err)
	}

	p.maybeStoreSwapEvent(ctx, swap)

	if swap.Side == models.SwapSideBuy && p.clusterer != nil {
		solAmount := float64(swap.QuoteAmount) / 1e9
		p.clusterer.AddWallet(swap.UserWallet, solAmount, int64(1))
		p.maybeTraceFunding(ctx, swap.UserWallet, now)
	}

	result, err := p.evaluator.Evaluate(ctx, swap.BaseMint)
	if err != nil {
		log.Printf("ingest: trigger evaluation error for %s: %v", swap.BaseMint, err)
		return nil
	}
	if result == nil {
		return nil
	}

	if err := p.stateMgr.TransitionToHot(ctx, swap.BaseMint, result.Reason, now, true); err != nil {
		log.Printf("ingest: hot transition error for %s: %v", swap.BaseMint, err)
	}

	return nil
}

// maybeStoreSwapEvent persists swap when the backpressure controller
// currently allows full event storage (NORMAL mode) and the mint has
// been promoted past COLD — a mint still in COLD has no interested
// reader for a per-swap record, only the rolling counters it already
// received above.
func (p *Processor) maybeStoreSwapEvent(ctx context.Context, swap *models.SwapEventFull) {
	if p.swapEvents == nil || !p.backpressure.ShouldStoreSwapEvent() {
		return
	}
	tier, err := p.stateMgr.GetState(ctx, swap.BaseMint)
	if err != nil {
		log.Printf("ingest: state lookup error for %s: %v", swap.BaseMint, err)
		return
	}
	if tier == models.TokenStateCold {
		return
	}
	if err := p.swapEvents.InsertSwapEvent(ctx, *swap); err != nil {
		log.Printf("ingest: swap event persist error for %s: %v", swap.BaseMint, err)
	}
}

// maybeTraceFunding asynchronously traces a newly-seen buyer's funding
// lineage and links it into the clusterer, provided enrichment is
// configured and not paused by backpressure or its own credit budget.
// It never blocks the hot path: a trace is at minimum two RPC round
// trips.
func (p *Processor) maybeTraceFunding(ctx context.Context, wallet string, now time.Time) {
	if p.enricher == nil || !p.backpressure.ShouldEnrich() || p.enricher.IsDegraded() {
		return
	}
	if !p.counterStore.IsNewWallet(ctx, wallet, newWalletLookback, now) {
		return
	}

	go func() {
		bg := context.Background()
		trace, err := p.enricher.TraceFunding(bg, wallet, fundingTraceMaxHops)
		if err != nil {
			log.Printf("ingest: funding trace error for %s: %v", wallet, err)
			return
		}
		if trace == nil {
			return
		}
		linkType := cluster.LinkDirectFunding
		if trace.Hops > 1 {
			linkType = cluster.LinkIndirectFunding
		}
		p.clusterer.MergeFromEdges([]cluster.FundingEdge{{
			Funder:     trace.UltimateFunder,
			Funded:     wallet,
			Type:       linkType,
			Confidence: 1.0,
		}})
	}()
}
