package models

// SwapSide is the direction of an inferred swap.
type SwapSide string

const (
	SwapSideBuy  SwapSide = "buy"
	SwapSideSell SwapSide = "sell"
)

// TokenDelta is the net change in an owner's balance of a single mint
// across a transaction, derived from pre/post token-account balances.
type TokenDelta struct {
	Owner string
	Mint  string
	Delta int64 // raw (non-decimal-adjusted) units
}

// SolDelta is the net lamport change for an account across a
// transaction, already fee- and rent-adjusted by the Delta Builder.
type SolDelta struct {
	Owner string
	Delta int64
}

// TxDeltaRecord is the rich per-transaction record retained for the
// configured retention window so that a token promoted to HOT can be
// backfilled without re-fetching historical data from a paid API.
type TxDeltaRecord struct {
	Signature        string
	Slot             uint64
	BlockTime        int64
	FeePayer         string
	ProgramsInvoked  []string
	TokenDeltas      []TokenDelta
	SolDeltas        []SolDelta
	MintsTouched     []string
	TxFee            int64
	AccountsCreated  int
}

// MintTouchedEvent is emitted for every ingested transaction regardless
// of whether a swap could be inferred, so that no token touched by any
// transaction is ever missed.
type MintTouchedEvent struct {
	Signature       string
	Slot            uint64
	BlockTime       int64
	FeePayer        string
	MintsTouched    []string
	ProgramsInvoked []string
	ComputeUnits    *uint64
}

// SwapCandidate is an intermediate result produced by the Swap
// Inferencer before it clears the minimum-confidence threshold and
// becomes a SwapEventFull.
type SwapCandidate struct {
	UserWallet  string
	Side        SwapSide
	BaseMint    string
	BaseAmount  int64
	QuoteMint   string
	QuoteAmount int64
	Confidence  float64
}

// SwapEventFull is a parsed swap with confidence at or above the
// configured minimum, ready for counting, triggering and storage.
type SwapEventFull struct {
	Signature   string
	Slot        uint64
	BlockTime   int64
	Venue       string
	UserWallet  string
	Side        SwapSide
	BaseMint    string
	BaseAmount  int64
	QuoteMint   string
	QuoteAmount int64
	Confidence  float64
	RouteDepth  int
}
