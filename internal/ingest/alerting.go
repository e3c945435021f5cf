package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rawblock/sentinel/internal/alert"
	"github.com/rawblock/sentinel/internal/cluster"
	"github.com/rawblock/sentinel/internal/counters"
	"github.com/rawblock/sentinel/internal/db"
	"github.com/rawblock/sentinel/internal/enrichment"
	"github.com/rawblock/sentinel/internal/metrics"
	"github.com/rawblock/sentinel/internal/scoring"
	"github.com/rawblock/sentinel/pkg/models"
)

// Broadcaster pushes a JSON payload to every connected dashboard
// client, implemented by api.Hub.
type Broadcaster interface {
	Broadcast(data []byte)
}

// topBuyersForAlert bounds how many wallets are fetched for the
// alert's top-buyers field and the clustering/scoring membership
// check, mirroring the original system's display cap.
const topBuyersForAlert = 10

// AlertAssembler builds and dispatches the single Alert row emitted on
// every genuine COLD/WARM -> HOT promotion, scoring coordination
// likelihood and clustering the buyer set before handing off to the
// Alert Dispatcher. Register its HandleHotPromotion method with
// state.Manager.OnHot.
type AlertAssembler struct {
	counters   *counters.Store
	clusterer  *cluster.Engine
	dbStore    *db.Store
	dispatcher *alert.Dispatcher
	enricher   enrichment.Enricher
	broadcaster Broadcaster
}

// NewAlertAssembler constructs an AlertAssembler from its dependencies.
// broadcaster may be nil, in which case alerts are persisted and
// dispatched but not pushed to any live dashboard.
func NewAlertAssembler(counterStore *counters.Store, clusterer *cluster.Engine, dbStore *db.Store, dispatcher *alert.Dispatcher, enricher enrichment.Enricher, broadcaster Broadcaster) *AlertAssembler {
	return &AlertAssembler{
		counters:    counterStore,
		clusterer:   clusterer,
		dbStore:     dbStore,
		dispatcher:  dispatcher,
		enricher:    enricher,
		broadcaster: broadcaster,
	}
}

// HandleHotPromotion assembles the coordination score, cluster summary
// and top-buyer list for mint, persists the alert row, and dispatches
// it to every configured channel.
func (a *AlertAssembler) HandleHotPromotion(ctx context.Context, mint string, profile models.TokenProfile) {
	stats5m, err := a.counters.GetStats(ctx, mint, 300)
	if err != nil {
		log.Printf("alerting: fetch 5m stats failed for %s: %v", mint, err)
		return
	}

	topBuyers, err := a.counters.TopBuyers(ctx, mint, topBuyersForAlert)
	if err != nil {
		log.Printf("alerting: fetch top buyers failed for %s: %v", mint, err)
	}

	wallets := make([]string, len(topBuyers))
	for i, w := range topBuyers {
		wallets[i] = w.Wallet
	}
	inMulti, largest := a.clusterer.Membership(wallets)
	membership := scoring.ClusterMembership{
		Wallets:            wallets,
		InMultiMemberCount: inMulti,
		LargestClusterSize: largest,
	}

	score := scoring.ScoreToken(scoring.Input{
		Stats:      stats5m,
		TopBuyers:  topBuyers,
		Membership: membership,
	})
	triggerName := firstWord(profile.TriggerReason)
	metrics.TriggersFired.WithLabelValues(triggerName).Inc()

	clusterSummary := a.clusterer.Summarize(wallets)

	enrichmentDegraded := a.enricher != nil && a.enricher.IsDegraded()

	rec := models.Alert{
		Mint:               mint,
		TokenName:          profile.Name,
		TokenSymbol:        profile.Symbol,
		TriggerName:        triggerName,
		TriggerReason:      profile.TriggerReason,
		BuyCount5m:         stats5m.BuyCount,
		UniqueBuyers5m:     stats5m.UniqueBuyers,
		VolumeSOL5m:        stats5m.BuyVolumeSOL,
		BuySellRatio5m:     stats5m.BuySellRatio,
		TopBuyers:          topBuyers,
		ClusterSummary:     clusterSummary,
		CoordinationScore:  score.TotalScore,
		RiskLevel:          scoring.RiskLevel(score.TotalScore),
		EnrichmentDegraded: enrichmentDegraded,
		CreatedAt:          time.Now(),
	}

	id, err := a.dbStore.InsertAlert(ctx, rec)
	if err != nil {
		log.Printf("alerting: insert alert for %s failed: %v", mint, err)
		return
	}
	rec.ID = id

	delivered := a.dispatcher.Dispatch(ctx, rec, &score)
	for channel, ok := range delivered {
		outcome := "failed"
		if ok {
			outcome = "delivered"
		}
		metrics.AlertsDelivered.WithLabelValues(channel, outcome).Inc()
	}
	if err := a.dbStore.UpdateAlertDelivery(ctx, id, delivered); err != nil {
		log.Printf("alerting: persist delivery status for alert %d failed: %v", id, err)
	}

	a.broadcastAlert(rec)
}

// broadcastAlert pushes rec to connected dashboard clients, best
// effort — a marshal or broadcaster failure never affects persistence
// or channel delivery, which have already completed above.
func (a *AlertAssembler) broadcastAlert(rec models.Alert) {
	if a.broadcaster == nil {
		return
	}
	payload, err := json.Marshal(struct {
		Type  string       `json:"type"`
		Alert models.Alert `json:"alert"`
	}{Type: "alert", Alert: rec})
	if err != nil {
		log.Printf("alerting: marshal broadcast payload for alert %d failed: %v", rec.ID, err)
		return
	}
	a.broadcaster.Broadcast(payload)
}

// firstWord returns the <name> part of the leading "Trigger: <name>"
// token a trigger reason string starts with (see triggers.formatReason),
// or reason unchanged when it lacks that prefix, so the Alert
// row's TriggerName column stays a short label rather than the full
// condition dump.
func firstWord(reason string) string {
	const prefix = "Trigger: "
	if len(reason) <= len(prefix) || reason[:len(prefix)] != prefix {
		return reason
	}
	rest := reason[len(prefix):]
	for i, r := range rest {
		if r == ' ' {
			return rest[:i]
		}
	}
	return rest
}
