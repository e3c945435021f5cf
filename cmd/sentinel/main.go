package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/sentinel/internal/alert"
	"github.com/rawblock/sentinel/internal/api"
	"github.com/rawblock/sentinel/internal/backpressure"
	"github.com/rawblock/sentinel/internal/cluster"
	"github.com/rawblock/sentinel/internal/config"
	"github.com/rawblock/sentinel/internal/counters"
	"github.com/rawblock/sentinel/internal/db"
	"github.com/rawblock/sentinel/internal/dedup"
	"github.com/rawblock/sentinel/internal/dlog"
	"github.com/rawblock/sentinel/internal/enrichment"
	"github.com/rawblock/sentinel/internal/ingest"
	"github.com/rawblock/sentinel/internal/state"
	"github.com/rawblock/sentinel/internal/stream"
	"github.com/rawblock/sentinel/internal/triggers"
	"github.com/rawblock/sentinel/pkg/models"
)

// hotTTL is how long a mint stays in the HOT tier without a refreshing
// re-promotion before the maintenance loop demotes it back to COLD.
const hotTTL = 30 * time.Minute

func main() {
	log.Println("Starting Sentinel (Solana coordinated-accumulation detector)...")

	settings := config.Load()

	redisOpts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		log.Fatalf("FATAL: invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("FATAL: unable to reach Redis: %v", err)
	}

	dbStore, err := db.Connect(settings.PostgresURL)
	if err != nil {
		log.Fatalf("FATAL: unable to connect to PostgreSQL: %v", err)
	}
	defer dbStore.Close()
	if err := dbStore.InitSchema(); err != nil {
		log.Printf("Warning: schema init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamStore, err := stream.NewStore(ctx, rdb, settings.RedisStreamMaxLen)
	if err != nil {
		log.Fatalf("FATAL: unable to initialize durable stream: %v", err)
	}

	dedupFilter := dedup.NewFilter(rdb, time.Duration(settings.DedupTTLSeconds)*time.Second)
	counterStore := counters.NewStore(rdb)

	deltaLog, err := dlog.NewLog("./data/deltalog", time.Duration(settings.DeltaLogRetentionMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("FATAL: unable to open delta log: %v", err)
	}
	defer deltaLog.Close()
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	deltaLog.StartCleanup(stopCleanup)

	touchLog, err := dlog.NewLog("./data/touchlog", 0)
	if err != nil {
		log.Fatalf("FATAL: unable to open touch log: %v", err)
	}
	defer touchLog.Close()

	evaluator := triggers.NewEvaluator(counterStore)
	if err := evaluator.LoadFile(settings.TriggerConfigPath); err != nil {
		log.Printf("Warning: failed to load trigger config %s: %v", settings.TriggerConfigPath, err)
	}

	backfillSource := ingest.NewDeltaLogBackfill(deltaLog)
	backfillReplayer := ingest.NewBackfillReplayer(settings.MinSwapConfidence, counterStore, dbStore)
	stateMgr := state.NewManager(rdb, dbStore, backfillSource, backfillReplayer, hotTTL)
	stateMgr.StartMaintenance(ctx, time.Duration(settings.HotMaintenanceIntervalSeconds)*time.Second)

	clusterer := cluster.NewEngine()

	enrichBreaker := backpressure.NewCircuitBreaker(settings.CircuitBreakerFailureThreshold, time.Duration(settings.CircuitBreakerRecoverySeconds)*time.Second)
	var enricher enrichment.Enricher
	if baseURL := os.Getenv("ENRICHMENT_RPC_URL"); baseURL != "" {
		budget := enrichment.NewCreditBudget(settings.EnrichmentDailyCreditLimit)
		enricher = enrichment.NewClient(baseURL, budget, enrichBreaker)
	} else {
		log.Println("ENRICHMENT_RPC_URL not set — funding-lineage tracing disabled")
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	bp := backpressure.NewManager(
		streamStore,
		time.Duration(settings.DegradedLagSeconds)*time.Second,
		time.Duration(settings.CriticalLagSeconds)*time.Second,
		settings.DegradedStreamLen,
		settings.CriticalStreamLen,
	)
	bp.OnModeChange(func(from, to models.DegradationMode) {
		payload, err := json.Marshal(struct {
			Type string `json:"type"`
			From string `json:"from"`
			To   string `json:"to"`
		}{Type: "mode_change", From: string(from), To: string(to)})
		if err != nil {
			log.Printf("main: marshal mode-change broadcast failed: %v", err)
			return
		}
		wsHub.Broadcast(payload)
	})

	var channels []*alert.Channel
	if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
		channels = append(channels, &alert.Channel{Name: "discord", Kind: alert.ChannelDiscord, WebhookURL: url, RateLimitPerMin: 20})
	}
	if url := os.Getenv("TELEGRAM_WEBHOOK_URL"); url != "" {
		channels = append(channels, &alert.Channel{Name: "telegram", Kind: alert.ChannelTelegram, WebhookURL: url, RateLimitPerMin: 20})
	}
	if len(channels) == 0 {
		log.Println("no alert channels configured — alerts will be persisted but not delivered")
	}
	dispatcher := alert.NewDispatcher(channels)

	assembler := ingest.NewAlertAssembler(counterStore, clusterer, dbStore, dispatcher, enricher, wsHub)
	stateMgr.OnHot(assembler.HandleHotPromotion)

	processor := ingest.NewProcessor(ingest.Config{
		MinSwapConfidence: settings.MinSwapConfidence,
		Dedup:             dedupFilter,
		DeltaLog:          deltaLog,
		TouchLog:          touchLog,
		Counters:          counterStore,
		Evaluator:         evaluator,
		StateManager:      stateMgr,
		Backpressure:      bp,
		Clusterer:         clusterer,
		Enricher:          enricher,
		SwapEvents:        dbStore,
	})

	pool := stream.NewPool(streamStore, settings.StreamConsumerCount, settings.StreamConsumerBatchSize, settings.StreamConsumerBlockMS)
	go func() {
		if err := pool.Run(ctx, processor.Handle); err != nil && ctx.Err() == nil {
			log.Printf("consumer pool exited: %v", err)
		}
	}()

	router := api.SetupRouter(dbStore, counterStore, stateMgr, evaluator, bp, wsHub)
	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: router,
	}

	go func() {
		log.Printf("sentinel listening on :%s", settings.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutdown signal received, draining in-flight work...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("sentinel stopped")
}
