// Package counters implements the rolling per-mint statistics store:
// bucketed counters over 5-minute and 1-hour windows, approximate
// unique-payer cardinality via Redis HyperLogLog, per-wallet volume
// tracking, and a short-lived per-query memo cache.
package counters

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rawblock/sentinel/pkg/models"
)

const (
	window5m = 300
	window1h = 3600

	// The 5-minute window is summed from 60s buckets and the 1-hour
	// window from 300s buckets.
	bucket5m = 60
	bucket1h = 300

	ttl5m = 3 * window5m * time.Second
	ttl1h = 2 * window1h * time.Second

	walletFirstSeenTTL = 7 * 24 * time.Hour
	walletVolumeTTL     = 15 * time.Minute

	memoTTL = time.Second
)

// Store is the bucketed counter backend for per-mint rolling stats.
type Store struct {
	rdb *redis.Client

	mu    sync.Mutex
	memo  map[string]memoEntry
}

type memoEntry struct {
	stats   models.RollingStats
	expires time.Time
}

// NewStore constructs a counter Store.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, memo: make(map[string]memoEntry)}
}

func bucketKey(metric, mint string, bucketSeconds int, bucket int64) string {
	return fmt.Sprintf("%s:%ds:%d:%s", metric, bucketSeconds, bucket, mint)
}

func currentBucket(bucketSeconds int, now time.Time) int64 {
	return now.Unix() / int64(bucketSeconds)
}

// RecordSwap updates every counter touched by a single inferred swap:
// buy/sell count, buyer/seller HLL, volume, and (buy side only)
// per-wallet volume — for both the 5-minute and 1-hour windows.
func (s *Store) RecordSwap(ctx context.Context, mint string, swap models.SwapEventFull, now time.Time) error {
	for _, bucketSeconds := range []int{bucket5m, bucket1h} {
		if err := s.recordWindow(ctx, mint, swap, bucketSeconds, now); err != nil {
			return err
		}
	}

	if err := s.rdb.SetNX(ctx, "wallet:first_seen:"+swap.UserWallet, now.Unix(), walletFirstSeenTTL).Err(); err != nil {
		return err
	}

	if swap.Side == models.SwapSideBuy {
		volKey := fmt.Sprintf("wallet_vol:%s:%d:%s", mint, currentBucket(window5m, now), swap.UserWallet)
		solAmount := lamportsToSOL(swap.QuoteAmount)
		if err := s.rdb.IncrByFloat(ctx, volKey, math.Abs(solAmount)).Err(); err != nil {
			return err
		}
		s.rdb.Expire(ctx, volKey, ttl5m)

		topKey := fmt.Sprintf("top_buyers:%d:%s", currentBucket(window5m, now), mint)
		s.rdb.ZIncrBy(ctx, topKey, math.Abs(solAmount), swap.UserWallet)
		s.rdb.Expire(ctx, topKey, ttl5m)
	}

	s.invalidate(mint)
	return nil
}

func (s *Store) recordWindow(ctx context.Context, mint string, swap models.SwapEventFull, bucketSeconds int, now time.Time) error {
	bucket := currentBucket(bucketSeconds, now)
	ttl := ttl5m
	if bucketSeconds == bucket1h {
		ttl = ttl1h
	}

	pipe := s.rdb.Pipeline()
	solAmount := math.Abs(lamportsToSOL(swap.QuoteAmount))

	if swap.Side == models.SwapSideBuy {
		key := bucketKey("buy_count", mint, bucketSeconds, bucket)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)

		hll := bucketKey("buyers_hll", mint, bucketSeconds, bucket)
		pipe.PFAdd(ctx, hll, swap.UserWallet)
		pipe.Expire(ctx, hll, ttl)

		vol := bucketKey("buy_volume", mint, bucketSeconds, bucket)
		pipe.IncrByFloat(ctx, vol, solAmount)
		pipe.Expire(ctx, vol, ttl)
	} else {
		key := bucketKey("sell_count", mint, bucketSeconds, bucket)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)

		hll := bucketKey("sellers_hll", mint, bucketSeconds, bucket)
		pipe.PFAdd(ctx, hll, swap.UserWallet)
		pipe.Expire(ctx, hll, ttl)

		vol := bucketKey("sell_volume", mint, bucketSeconds, bucket)
		pipe.IncrByFloat(ctx, vol, solAmount)
		pipe.Expire(ctx, vol, ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) invalidate(mint string) {
	s.mu.Lock()
	delete(s.memo, mint+":300")
	delete(s.memo, mint+":3600")
	s.mu.Unlock()
}

// GetStats returns RollingStats for mint over windowSeconds, summing
// across the trailing buckets and taking the max HLL count across
// those buckets (not a union — matching the original system's
// approach, since Redis PFMERGE across short-lived ephemeral bucket
// keys would itself need an extra round trip per query). Results are
// memoized for 1 second to absorb bursty repeated queries from the
// trigger evaluator and scorer.
func (s *Store) GetStats(ctx context.Context, mint string, windowSeconds int) (models.RollingStats, error) {
	memoKey := fmt.Sprintf("%s:%d", mint, windowSeconds)
	s.mu.Lock()
	if e, ok := s.memo[memoKey]; ok && time.Now().Before(e.expires) {
		s.mu.Unlock()
		return e.stats, nil
	}
	s.mu.Unlock()

	bucketSize := bucket5m
	if windowSeconds > window5m {
		bucketSize = bucket1h
	}
	numBuckets := windowSeconds / bucketSize
	if numBuckets < 1 {
		numBuckets = 1
	}

	now := time.Now()
	nowBucket := currentBucket(bucketSize, now)

	var buyCount, sellCount int64
	var buyVolume, sellVolume float64
	buyerCounts := make([]int64, 0, numBuckets)
	sellerCounts := make([]int64, 0, numBuckets)

	for i := int64(0); i < int64(numBuckets); i++ {
		bucket := nowBucket - i

		bc, _ := s.rdb.Get(ctx, bucketKey("buy_count", mint, bucketSize, bucket)).Int64()
		sc, _ := s.rdb.Get(ctx, bucketKey("sell_count", mint, bucketSize, bucket)).Int64()
		bv, _ := s.rdb.Get(ctx, bucketKey("buy_volume", mint, bucketSize, bucket)).Float64()
		sv, _ := s.rdb.Get(ctx, bucketKey("sell_volume", mint, bucketSize, bucket)).Float64()
		buyHLL, _ := s.rdb.PFCount(ctx, bucketKey("buyers_hll", mint, bucketSize, bucket)).Result()
		sellHLL, _ := s.rdb.PFCount(ctx, bucketKey("sellers_hll", mint, bucketSize, bucket)).Result()

		buyCount += bc
		sellCount += sc
		buyVolume += bv
		sellVolume += sv
		buyerCounts = append(buyerCounts, buyHLL)
		sellerCounts = append(sellerCounts, sellHLL)
	}

	stats := models.RollingStats{
		WindowSeconds: windowSeconds,
		BuyCount:      buyCount,
		SellCount:     sellCount,
		UniqueBuyers:  maxInt64(buyerCounts),
		UniqueSellers: maxInt64(sellerCounts),
		BuyVolumeSOL:  buyVolume,
	}

	if buyCount > 0 {
		stats.AvgBuySize = buyVolume / float64(buyCount)
	}
	if sellCount > 0 {
		stats.BuySellRatio = float64(buyCount) / float64(sellCount)
	} else {
		stats.BuySellRatio = math.Inf(1)
	}

	top3Vol, topBuyers, err := s.topBuyersVolume(ctx, mint, 3, now)
	if err == nil && buyVolume > 0 {
		stats.Top3BuyersVolumeShare = top3Vol / buyVolume
	}

	newWallets, err := s.countNewWallets(ctx, topBuyersAll(topBuyers), windowSeconds, now)
	if err == nil {
		stats.NewWalletCount = newWallets
		if len(topBuyers) > 0 {
			stats.NewWalletPct = float64(newWallets) / float64(len(topBuyers))
		}
	}

	s.mu.Lock()
	s.memo[memoKey] = memoEntry{stats: stats, expires: time.Now().Add(memoTTL)}
	s.mu.Unlock()

	return stats, nil
}

// topBuyersVolume returns the summed volume of the top-N buyers by
// wallet volume for the current 5-minute bucket, via a Redis sorted
// set rather than the original's SCAN-based key enumeration (see
// DESIGN.md open question #3).
func (s *Store) topBuyersVolume(ctx context.Context, mint string, topN int64, now time.Time) (float64, []models.WalletVolume, error) {
	key := fmt.Sprintf("top_buyers:%d:%s", currentBucket(window5m, now), mint)
	res, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, topN-1).Result()
	if err != nil {
		return 0, nil, err
	}
	var total float64
	wallets := make([]models.WalletVolume, 0, len(res))
	for _, z := range res {
		total += z.Score
		wallets = append(wallets, models.WalletVolume{Wallet: fmt.Sprint(z.Member), Volume: z.Score})
	}
	return total, wallets, nil
}

// TopBuyers returns the top-N buyer wallets by 5-minute volume.
func (s *Store) TopBuyers(ctx context.Context, mint string, topN int64) ([]models.WalletVolume, error) {
	_, wallets, err := s.topBuyersVolume(ctx, mint, topN, time.Now())
	return wallets, err
}

func topBuyersAll(wallets []models.WalletVolume) []string {
	out := make([]string, len(wallets))
	for i, w := range wallets {
		out[i] = w.Wallet
	}
	return out
}

func (s *Store) countNewWallets(ctx context.Context, wallets []string, windowSeconds int, now time.Time) (int64, error) {
	if len(wallets) == 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(windowSeconds) * time.Second).Unix()
	var count int64
	for _, w := range wallets {
		ts, err := s.rdb.Get(ctx, "wallet:first_seen:"+w).Int64()
		if err != nil {
			continue
		}
		if ts >= cutoff {
			count++
		}
	}
	return count, nil
}

// IsNewWallet reports whether wallet's first-seen timestamp falls
// within the lookback window ending now.
func (s *Store) IsNewWallet(ctx context.Context, wallet string, lookback time.Duration, now time.Time) bool {
	ts, err := s.rdb.Get(ctx, "wallet:first_seen:"+wallet).Int64()
	if err != nil {
		return true
	}
	return time.Unix(ts, 0).After(now.Add(-lookback))
}

func maxInt64(vals []int64) int64 {
	var m int64
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

// lamportsToSOL converts raw lamports to fractional SOL (1e9 lamports
// per SOL), matching the quote-amount scale used throughout scoring.
func lamportsToSOL(lamports int64) float64 {
	return float64(lamports) / 1e9
}
