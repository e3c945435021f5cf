// Package delta extracts balance deltas from raw transaction snapshots
// and infers swap intent from the resulting deltas.
package delta

import "github.com/rawblock/sentinel/pkg/models"

// WSOLMint is the wrapped-SOL mint address, normalized into SOL deltas
// by NormalizeWSOL.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Rent constants observed on associated-token-account and plain
// system-account creation. An account created in a transaction with a
// pre-balance of zero and a post-balance exactly matching one of these
// is rent, never a transfer, and must not surface as a delta.
const (
	ATARentLamports     int64 = 2039280
	AccountRentLamports int64 = 890880
)

// QuoteMints are the mints treated as the "quote" side of a swap
// (wrapped SOL plus the two major USD stablecoins).
var QuoteMints = map[string]bool{
	WSOLMint: true,
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": true, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": true, // USDT
}

// BalanceSnapshot is the minimal raw input the Delta Builder needs for
// one token or system account touched by a transaction.
type BalanceSnapshot struct {
	Owner        string
	Mint         string // empty for a native-SOL (system account) entry
	PreLamports  int64
	PostLamports int64
	PreAmount    int64 // token pre-balance, raw units
	PostAmount   int64 // token post-balance, raw units
}

// RawTransaction is the minimal input shape the Delta Builder consumes.
// It is populated by the out-of-core-scope chain subscription adapter
// (internal/ingest) before being handed to Build.
type RawTransaction struct {
	Signature       string
	Slot            uint64
	BlockTime       int64
	FeePayer        string
	Fee             int64
	Balances        []BalanceSnapshot
	InnerProgramIDs []string
	ProgramIDs      []string
	// ProgramsInvoked is an explicit escape hatch for callers that
	// already know the full invoked-program set (e.g. synthetic/mock
	// data in tests) and want to bypass instruction-tree walking.
	ProgramsInvoked []string
}

// Builder extracts TokenDelta/SolDelta pairs from a RawTransaction.
type Builder struct{}

// NewBuilder constructs a Delta Builder. It holds no state; all work is
// pure per-transaction computation.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build computes token and SOL deltas for every account touched by tx,
// applying ATA/account-rent correction to the SOL side exactly as the
// original parser does: a zero-to-rent-exact transition is dropped
// entirely (pure account creation, not a transfer), while any other
// zero-to-positive transition has the ATA rent constant subtracted
// (the assumption is that such an account was just created to receive
// this transfer).
func (b *Builder) Build(tx RawTransaction) ([]models.TokenDelta, []models.SolDelta) {
	var tokenDeltas []models.TokenDelta
	solByOwner := make(map[string]int64)

	for _, bal := range tx.Balances {
		if bal.Mint != "" {
			d := bal.PostAmount - bal.PreAmount
			if d != 0 {
				tokenDeltas = append(tokenDeltas, models.TokenDelta{
					Owner: bal.Owner,
					Mint:  bal.Mint,
					Delta: d,
				})
			}
			continue
		}

		d := bal.PostLamports - bal.PreLamports
		if bal.Owner == tx.FeePayer {
			d += tx.Fee
		}

		if bal.PreLamports == 0 {
			if bal.PostLamports == ATARentLamports || bal.PostLamports == AccountRentLamports {
				continue
			}
			if bal.PostLamports > 0 {
				d -= ATARentLamports
			}
		}

		if d != 0 {
			solByOwner[bal.Owner] += d
		}
	}

	solDeltas := make([]models.SolDelta, 0, len(solByOwner))
	for owner, d := range solByOwner {
		solDeltas = append(solDeltas, models.SolDelta{Owner: owner, Delta: d})
	}

	return tokenDeltas, solDeltas
}

// NormalizeWSOL merges any wrapped-SOL token deltas additively into the
// SOL delta map, returning a new map keyed by owner. The input slices
// are not mutated.
func NormalizeWSOL(tokenDeltas []models.TokenDelta, solDeltas []models.SolDelta) map[string]int64 {
	merged := make(map[string]int64, len(solDeltas))
	for _, sd := range solDeltas {
		merged[sd.Owner] += sd.Delta
	}
	for _, td := range tokenDeltas {
		if td.Mint == WSOLMint {
			merged[td.Owner] += td.Delta
		}
	}
	return merged
}

// CandidateUsers returns the set of accounts that could plausibly be
// the human party to a swap: the fee payer plus every owner with a
// nonzero token delta.
func CandidateUsers(tokenDeltas []models.TokenDelta, feePayer string) []string {
	seen := map[string]bool{feePayer: true}
	out := []string{feePayer}
	for _, td := range tokenDeltas {
		if td.Delta == 0 || seen[td.Owner] {
			continue
		}
		seen[td.Owner] = true
		out = append(out, td.Owner)
	}
	return out
}

// MintsTouched returns every distinct non-WSOL mint present in
// tokenDeltas.
func MintsTouched(tokenDeltas []models.TokenDelta) []string {
	seen := make(map[string]bool)
	var out []string
	for _, td := range tokenDeltas {
		if td.Mint == WSOLMint || seen[td.Mint] {
			continue
		}
		seen[td.Mint] = true
		out = append(out, td.Mint)
	}
	return out
}

// ProgramsInvoked unions the instruction-level, inner-instruction-level
// and any explicitly-supplied program ID sets for a transaction.
func ProgramsInvoked(tx RawTransaction) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	add(tx.InnerProgramIDs)
	add(tx.ProgramIDs)
	add(tx.ProgramsInvoked)
	return out
}

// ToDeltaRecord assembles the durable TxDeltaRecord for tx given its
// already-computed deltas, for retention in the delta log.
func ToDeltaRecord(tx RawTransaction, tokenDeltas []models.TokenDelta, solDeltas []models.SolDelta) models.TxDeltaRecord {
	return models.TxDeltaRecord{
		Signature:       tx.Signature,
		Slot:            tx.Slot,
		BlockTime:       tx.BlockTime,
		FeePayer:        tx.FeePayer,
		ProgramsInvoked: ProgramsInvoked(tx),
		TokenDeltas:     tokenDeltas,
		SolDeltas:       solDeltas,
		MintsTouched:    MintsTouched(tokenDeltas),
		TxFee:           tx.Fee,
	}
}
