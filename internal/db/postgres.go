package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/sentinel/pkg/models"
)

// Store is the durable persistence layer for token/wallet profiles,
// resolved clusters, and emitted alerts.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("connected to postgres for profile storage")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *Store) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	log.Println("profile schema initialized")
	return nil
}

// GetTokenProfile fetches a mint's durable profile, returning nil (no
// error) if the mint has never been persisted.
func (s *Store) GetTokenProfile(ctx context.Context, mint string) (*models.TokenProfile, error) {
	const q = `
		SELECT mint, state, first_seen, last_seen, became_hot_at, total_buys,
		       total_sells, total_volume_sol, unique_buyers, unique_sellers,
		       trigger_reason, name, symbol, decimals
		FROM token_profiles WHERE mint = $1
	`
	row := s.pool.QueryRow(ctx, q, mint)

	var p models.TokenProfile
	var becameHotAt *time.Time
	var triggerReason, name, symbol *string
	if err := row.Scan(&p.Mint, &p.State, &p.FirstSeen, &p.LastSeen, &becameHotAt,
		&p.TotalBuys, &p.TotalSells, &p.TotalVolumeSOL, &p.UniqueBuyers, &p.UniqueSellers,
		&triggerReason, &name, &symbol, &p.Decimals); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan token profile: %w", err)
	}
	if becameHotAt != nil {
		p.BecameHotAt = *becameHotAt
	}
	if triggerReason != nil {
		p.TriggerReason = *triggerReason
	}
	if name != nil {
		p.Name = *name
	}
	if symbol != nil {
		p.Symbol = *symbol
	}
	return &p, nil
}

// UpsertTokenProfile persists profile, inserting or overwriting the
// existing row for its mint.
func (s *Store) UpsertTokenProfile(ctx context.Context, profile models.TokenProfile) error {
	const q = `
		INSERT INTO token_profiles
			(mint, state, first_seen, last_seen, became_hot_at, total_buys,
			 total_sells, total_volume_sol, unique_buyers, unique_sellers,
			 trigger_reason, name, symbol, decimals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (mint) DO UPDATE SET
			state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen,
			became_hot_at = EXCLUDED.became_hot_at,
			total_buys = EXCLUDED.total_buys,
			total_sells = EXCLUDED.total_sells,
			total_volume_sol = EXCLUDED.total_volume_sol,
			unique_buyers = EXCLUDED.unique_buyers,
			unique_sellers = EXCLUDED.unique_sellers,
			trigger_reason = EXCLUDED.trigger_reason,
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals
	`
	var becameHotAt interface{}
	if !profile.BecameHotAt.IsZero() {
		becameHotAt = profile.BecameHotAt
	}
	_, err := s.pool.Exec(ctx, q, profile.Mint, profile.State, profile.FirstSeen, profile.LastSeen,
		becameHotAt, profile.TotalBuys, profile.TotalSells, profile.TotalVolumeSOL,
		profile.UniqueBuyers, profile.UniqueSellers, nullIfEmpty(profile.TriggerReason),
		nullIfEmpty(profile.Name), nullIfEmpty(profile.Symbol), profile.Decimals)
	if err != nil {
		return fmt.Errorf("upsert token profile: %w", err)
	}
	return nil
}

// UpsertWalletProfile persists profile, inserting or overwriting the
// existing row for its address.
func (s *Store) UpsertWalletProfile(ctx context.Context, profile models.WalletProfile) error {
	const q = `
		INSERT INTO wallet_profiles
			(address, first_seen, last_seen, total_buys, total_sells, total_volume_sol,
			 tokens_traded, cluster_id, cluster_size, funded_by, funding_amount_sol,
			 funding_hop, is_new_wallet, cto_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (address) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			total_buys = EXCLUDED.total_buys,
			total_sells = EXCLUDED.total_sells,
			total_volume_sol = EXCLUDED.total_volume_sol,
			tokens_traded = EXCLUDED.tokens_traded,
			cluster_id = EXCLUDED.cluster_id,
			cluster_size = EXCLUDED.cluster_size,
			funded_by = EXCLUDED.funded_by,
			funding_amount_sol = EXCLUDED.funding_amount_sol,
			funding_hop = EXCLUDED.funding_hop,
			is_new_wallet = EXCLUDED.is_new_wallet,
			cto_score = EXCLUDED.cto_score
	`
	_, err := s.pool.Exec(ctx, q, profile.Address, profile.FirstSeen, profile.LastSeen,
		profile.TotalBuys, profile.TotalSells, profile.TotalVolumeSOL, profile.TokensTraded,
		nullIfEmpty(profile.ClusterID), profile.ClusterSize, nullIfEmpty(profile.FundedBy),
		nullFloatIfZero(profile.FundingAmountSOL), profile.FundingHop, profile.IsNewWallet, profile.CTOScore)
	if err != nil {
		return fmt.Errorf("upsert wallet profile: %w", err)
	}
	return nil
}

// UpsertCluster persists a resolved cluster's aggregate stats.
func (s *Store) UpsertCluster(ctx context.Context, c models.Cluster) error {
	const q = `
		INSERT INTO clusters (root_address, address_count, total_volume, tx_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (root_address) DO UPDATE SET
			address_count = EXCLUDED.address_count,
			total_volume = EXCLUDED.total_volume,
			tx_count = EXCLUDED.tx_count,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, q, c.RootAddress, c.AddressCount, c.TotalVolume, c.TxCount)
	if err != nil {
		return fmt.Errorf("upsert cluster: %w", err)
	}
	return nil
}

// InsertAlert persists a newly generated alert and returns its
// assigned ID.
func (s *Store) InsertAlert(ctx context.Context, a models.Alert) (int64, error) {
	topBuyers, err := json.Marshal(a.TopBuyers)
	if err != nil {
		return 0, fmt.Errorf("marshal top buyers: %w", err)
	}
	delivered, err := json.Marshal(a.Delivered)
	if err != nil {
		return 0, fmt.Errorf("marshal delivered map: %w", err)
	}

	const q = `
		INSERT INTO alerts
			(mint, token_name, token_symbol, trigger_name, trigger_reason,
			 buy_count_5m, unique_buyers_5m, volume_sol_5m, buy_sell_ratio_5m,
			 top_buyers, cluster_summary, coordination_score, risk_level,
			 enrichment_degraded, price_sol, mcap_sol, token_supply, delivered)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id
	`
	var id int64
	err = s.pool.QueryRow(ctx, q, a.Mint, nullIfEmpty(a.TokenName), nullIfEmpty(a.TokenSymbol),
		a.TriggerName, nullIfEmpty(a.TriggerReason), a.BuyCount5m, a.UniqueBuyers5m, a.VolumeSOL5m,
		a.BuySellRatio5m, topBuyers, nullIfEmpty(a.ClusterSummary), a.CoordinationScore,
		nullIfEmpty(a.RiskLevel), a.EnrichmentDegraded, a.PriceSOL, a.McapSOL, a.TokenSupply, delivered).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return id, nil
}

// UpdateAlertDelivery overwrites the delivered-channel map for an
// alert after dispatch attempts complete.
func (s *Store) UpdateAlertDelivery(ctx context.Context, alertID int64, delivered map[string]bool) error {
	data, err := json.Marshal(delivered)
	if err != nil {
		return fmt.Errorf("marshal delivered map: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE alerts SET delivered = $1 WHERE id = $2`, data, alertID)
	if err != nil {
		return fmt.Errorf("update alert delivery: %w", err)
	}
	return nil
}

// ListRecentAlerts returns the most recently created alerts, newest
// first, bounded by limit.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `
		SELECT id, mint, token_name, token_symbol, trigger_name, trigger_reason,
		       buy_count_5m, unique_buyers_5m, volume_sol_5m, buy_sell_ratio_5m,
		       cluster_summary, coordination_score, risk_level, enrichment_degraded,
		       price_sol, mcap_sol, token_supply, created_at
		FROM alerts ORDER BY created_at DESC LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		var tokenName, tokenSymbol, triggerReason, clusterSummary, riskLevel *string
		if err := rows.Scan(&a.ID, &a.Mint, &tokenName, &tokenSymbol, &a.TriggerName, &triggerReason,
			&a.BuyCount5m, &a.UniqueBuyers5m, &a.VolumeSOL5m, &a.BuySellRatio5m,
			&clusterSummary, &a.CoordinationScore, &riskLevel, &a.EnrichmentDegraded,
			&a.PriceSOL, &a.McapSOL, &a.TokenSupply, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.TokenName = derefStr(tokenName)
		a.TokenSymbol = derefStr(tokenSymbol)
		a.TriggerReason = derefStr(triggerReason)
		a.ClusterSummary = derefStr(clusterSummary)
		a.RiskLevel = derefStr(riskLevel)
		out = append(out, a)
	}
	return out, nil
}

// InsertSwapEvent persists a full swap event for a WARM/HOT mint. A
// transaction can produce at most one stored event per user wallet
// (the unique signature+wallet index), so a duplicate insert from a
// backfill replay is silently ignored rather than erroring.
func (s *Store) InsertSwapEvent(ctx context.Context, swap models.SwapEventFull) error {
	const q = `
		INSERT INTO swap_events
			(signature, slot, block_time, venue, base_mint, user_wallet, side,
			 base_amount, quote_mint, quote_amount, confidence, route_depth)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (signature, user_wallet) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, swap.Signature, swap.Slot, swap.BlockTime, swap.Venue,
		swap.BaseMint, swap.UserWallet, swap.Side, swap.BaseAmount, swap.QuoteMint,
		swap.QuoteAmount, swap.Confidence, swap.RouteDepth)
	if err != nil {
		return fmt.Errorf("insert swap event: %w", err)
	}
	return nil
}

// validHotField whitelists the token_profiles columns
// UpdateHotField may touch, preventing caller-controlled column names
// from reaching the dynamic SQL string below.
var validHotField = map[string]bool{
	"total_buys": true, "total_sells": true, "unique_buyers": true,
	"unique_sellers": true, "total_volume_sol": true,
}

// UpdateHotField sets a single whitelisted numeric column on a token
// profile row, for cheap incremental updates that don't need a full
// UpsertTokenProfile round trip.
func (s *Store) UpdateHotField(ctx context.Context, mint, field string, value float64) error {
	if !validHotField[field] {
		return fmt.Errorf("invalid field: %s", field)
	}
	sql := fmt.Sprintf("UPDATE token_profiles SET %s = $1 WHERE mint = $2", field)
	_, err := s.pool.Exec(ctx, sql, value, mint)
	return err
}

// GetPool exposes the connection pool for subsystems that need direct
// access (e.g. a future migrations runner).
func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloatIfZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

