package models

import "time"

// TokenState is the tier a mint occupies in the State Manager's FSM.
type TokenState string

const (
	TokenStateCold TokenState = "cold"
	TokenStateWarm TokenState = "warm"
	TokenStateHot  TokenState = "hot"
)

// TokenProfile is the durable record of a mint's monitoring state and
// aggregated lifetime stats.
type TokenProfile struct {
	Mint string
	State TokenState

	FirstSeen   time.Time
	LastSeen    time.Time
	BecameHotAt time.Time

	TotalBuys      int64
	TotalSells     int64
	TotalVolumeSOL float64
	UniqueBuyers   int64
	UniqueSellers  int64

	TriggerReason string

	Name     string
	Symbol   string
	Decimals int
}

// WalletProfile is the durable record of a wallet's activity, cluster
// membership and funding lineage.
type WalletProfile struct {
	Address string

	FirstSeen time.Time
	LastSeen  time.Time

	TotalBuys      int64
	TotalSells     int64
	TotalVolumeSOL float64
	TokensTraded   []string

	ClusterID   string
	ClusterSize int

	FundedBy         string
	FundingAmountSOL float64
	FundingHop       int

	IsNewWallet bool
	CTOScore    float64
}

// Cluster is a resolved group of wallets under a single union-find
// root, with accumulated per-cluster aggregates.
type Cluster struct {
	RootAddress  string
	Members      []string
	AddressCount int
	TotalVolume  float64
	TxCount      int64
}

// Alert is generated when a trigger fires for a mint, carrying the
// stats snapshot and per-channel delivery status.
type Alert struct {
	ID int64

	Mint        string
	TokenName   string
	TokenSymbol string

	TriggerName   string
	TriggerReason string

	BuyCount5m      int64
	UniqueBuyers5m  int64
	VolumeSOL5m     float64
	BuySellRatio5m  float64

	TopBuyers       []WalletVolume
	ClusterSummary  string
	CoordinationScore float64
	RiskLevel       string
	EnrichmentDegraded bool

	PriceSOL    *float64
	McapSOL     *float64
	TokenSupply *int64

	CreatedAt time.Time

	// Delivered tracks per-channel delivery success, keyed by channel name.
	Delivered map[string]bool
}

// WalletVolume pairs a wallet address with an accumulated SOL volume,
// used for top-buyer surfacing.
type WalletVolume struct {
	Wallet string
	Volume float64
}

// DegradationMode is the backpressure controller's operating mode.
type DegradationMode string

const (
	ModeNormal   DegradationMode = "normal"
	ModeDegraded DegradationMode = "degraded"
	ModeCritical DegradationMode = "critical"
)

// RollingStats is the flattened view of a mint's counters over a
// single window, as produced by the Counter Store and consumed by the
// Trigger Evaluator and Scorer.
type RollingStats struct {
	WindowSeconds int

	BuyCount       int64
	SellCount      int64
	UniqueBuyers   int64
	UniqueSellers  int64
	BuyVolumeSOL   float64
	AvgBuySize     float64
	BuySellRatio   float64 // +Inf when SellCount == 0 and BuyCount > 0

	Top3BuyersVolumeShare float64
	NewWalletPct          float64
	NewWalletCount        int64
}
