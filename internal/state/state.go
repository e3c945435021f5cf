// Package state implements the per-mint tier state machine: COLD (
// aggregates only) -> WARM (per-swap events) -> HOT (full enrichment
// and clustering), with TTL-based HOT expiry, idempotent re-promotion,
// backfill from the delta log on promotion, and a maintenance loop
// that proactively demotes expired HOT tokens.
package state

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rawblock/sentinel/pkg/models"
)

const hotKeyPrefix = "hot:"
const hotSetKey = "hot_tokens"

// ProfileStore is the narrow durable-persistence interface the State
// Manager needs; implemented by internal/db.Store.
type ProfileStore interface {
	GetTokenProfile(ctx context.Context, mint string) (*models.TokenProfile, error)
	UpsertTokenProfile(ctx context.Context, profile models.TokenProfile) error
}

// BackfillSource supplies retained delta records for a mint so a
// newly-HOT token's recent history can be replayed without expensive
// historical RPCs.
type BackfillSource interface {
	ReadForMint(ctx context.Context, mint string, since time.Time) ([]models.TxDeltaRecord, error)
}

// BackfillReplayer re-runs swap inference and persistence for one
// retained delta record, exactly as if it had just arrived on the
// live stream — the step that makes backfill actually seed counters,
// triggers, and stored swap events instead of merely counting records.
type BackfillReplayer interface {
	ReplayRecord(ctx context.Context, mint string, record models.TxDeltaRecord) error
}

// HotCallback is invoked exactly once per genuine COLD/WARM -> HOT
// promotion (never on a refresh-only re-promotion).
type HotCallback func(ctx context.Context, mint string, profile models.TokenProfile)

// Manager owns the tier FSM for every mint.
type Manager struct {
	rdb      *redis.Client
	store    ProfileStore
	backfill BackfillSource
	replayer BackfillReplayer
	hotTTL   time.Duration

	mu        sync.RWMutex
	localCache map[string]models.TokenState

	onHot []HotCallback
}

// NewManager constructs a State Manager. replayer may be nil, in which
// case a HOT promotion still marks the mint HOT and reads (and logs the
// count of) its retained delta records, but replays none of them.
func NewManager(rdb *redis.Client, store ProfileStore, backfill BackfillSource, replayer BackfillReplayer, hotTTL time.Duration) *Manager {
	return &Manager{
		rdb:        rdb,
		store:      store,
		backfill:   backfill,
		replayer:   replayer,
		hotTTL:     hotTTL,
		localCache: make(map[string]models.TokenState),
	}
}

// OnHot registers a callback fired on every genuine promotion to HOT.
func (m *Manager) OnHot(cb HotCallback) {
	m.onHot = append(m.onHot, cb)
}

// GetState resolves a mint's current tier: local cache first, then the
// Redis HOT marker, then the durable profile, defaulting to COLD if
// nothing is known about the mint yet.
func (m *Manager) GetState(ctx context.Context, mint string) (models.TokenState, error) {
	m.mu.RLock()
	if s, ok := m.localCache[mint]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	isHot, err := m.rdb.Exists(ctx, hotKeyPrefix+mint).Result()
	if err == nil && isHot == 1 {
		m.setCache(mint, models.TokenStateHot)
		return models.TokenStateHot, nil
	}

	profile, err := m.store.GetTokenProfile(ctx, mint)
	if err != nil {
		return "", fmt.Errorf("lookup token profile: %w", err)
	}
	if profile == nil {
		m.setCache(mint, models.TokenStateCold)
		return models.TokenStateCold, nil
	}

	m.setCache(mint, profile.State)
	return profile.State, nil
}

func (m *Manager) setCache(mint string, s models.TokenState) {
	m.mu.Lock()
	m.localCache[mint] = s
	m.mu.Unlock()
}

// TransitionToWarm moves mint from COLD to WARM. A no-op if the mint
// is already WARM or HOT.
func (m *Manager) TransitionToWarm(ctx context.Context, mint string, now time.Time) error {
	current, err := m.GetState(ctx, mint)
	if err != nil {
		return err
	}
	if current != models.TokenStateCold {
		return nil
	}

	profile, err := m.loadOrInit(ctx, mint, now)
	if err != nil {
		return err
	}
	profile.State = models.TokenStateWarm
	profile.LastSeen = now

	if err := m.store.UpsertTokenProfile(ctx, *profile); err != nil {
		return fmt.Errorf("persist warm transition: %w", err)
	}
	m.setCache(mint, models.TokenStateWarm)
	return nil
}

// TransitionToHot promotes mint to HOT. If the mint is already HOT,
// this only refreshes the Redis TTL and returns without re-alerting or
// re-running backfill — matching the "at most one promotion alert"
// invariant.
func (m *Manager) TransitionToHot(ctx context.Context, mint, triggerReason string, now time.Time, triggerBackfill bool) error {
	current, err := m.GetState(ctx, mint)
	if err != nil {
		return err
	}
	if current == models.TokenStateHot {
		m.rdb.Expire(ctx, hotKeyPrefix+mint, m.hotTTL)
		return nil
	}

	profile, err := m.loadOrInit(ctx, mint, now)
	if err != nil {
		return err
	}
	profile.State = models.TokenStateHot
	profile.BecameHotAt = now
	profile.TriggerReason = triggerReason
	profile.LastSeen = now

	if err := m.rdb.Set(ctx, hotKeyPrefix+mint, 1, m.hotTTL).Err(); err != nil {
		return fmt.Errorf("set hot marker: %w", err)
	}
	m.rdb.SAdd(ctx, hotSetKey, mint)

	if err := m.store.UpsertTokenProfile(ctx, *profile); err != nil {
		return fmt.Errorf("persist hot transition: %w", err)
	}
	m.setCache(mint, models.TokenStateHot)

	for _, cb := range m.onHot {
		cb(ctx, mint, *profile)
	}

	if triggerBackfill && m.backfill != nil {
		go m.runBackfill(mint)
	}

	return nil
}

// runBackfill replays retained delta records for mint through the
// replayer, which re-runs swap inference and persistence per record
// exactly as if each had just arrived on the live stream. It does not
// re-run trigger evaluation — a mint being backfilled is already HOT,
// so there is no promotion left to trigger.
func (m *Manager) runBackfill(mint string) {
	ctx := context.Background()
	since := time.Now().Add(-60 * time.Minute)
	records, err := m.backfill.ReadForMint(ctx, mint, since)
	if err != nil {
		log.Printf("state: backfill read error for %s: %v", mint, err)
		return
	}
	log.Printf("state: backfilling %d retained delta records for %s", len(records), mint)

	if m.replayer == nil {
		return
	}
	for _, rec := range records {
		if err := m.replayer.ReplayRecord(ctx, mint, rec); err != nil {
			log.Printf("state: backfill replay error for %s (%s): %v", mint, rec.Signature, err)
		}
	}
}

func (m *Manager) loadOrInit(ctx context.Context, mint string, now time.Time) (*models.TokenProfile, error) {
	profile, err := m.store.GetTokenProfile(ctx, mint)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &models.TokenProfile{
			Mint:      mint,
			State:     models.TokenStateCold,
			FirstSeen: now,
			Decimals:  9,
		}
	}
	return profile, nil
}

// StartMaintenance runs a background loop that demotes expired HOT
// tokens to COLD proactively, rather than relying purely on lazy
// TTL-expiry detection on the next read for that mint.
func (m *Manager) StartMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshHotTokens(ctx)
			}
		}
	}()
}

func (m *Manager) refreshHotTokens(ctx context.Context) {
	mints, err := m.rdb.SMembers(ctx, hotSetKey).Result()
	if err != nil {
		log.Printf("state: maintenance: list hot tokens: %v", err)
		return
	}
	for _, mint := range mints {
		exists, err := m.rdb.Exists(ctx, hotKeyPrefix+mint).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			m.demoteToCold(ctx, mint)
		}
	}
}

func (m *Manager) demoteToCold(ctx context.Context, mint string) {
	m.rdb.SRem(ctx, hotSetKey, mint)
	m.setCache(mint, models.TokenStateCold)

	profile, err := m.store.GetTokenProfile(ctx, mint)
	if err != nil || profile == nil {
		return
	}
	profile.State = models.TokenStateCold
	if err := m.store.UpsertTokenProfile(ctx, *profile); err != nil {
		log.Printf("state: maintenance: demote %s: %v", mint, err)
	}
}
