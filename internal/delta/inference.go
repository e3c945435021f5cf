package delta

import (
	"math"
	"sort"

	"github.com/rawblock/sentinel/pkg/models"
)

// VenuePrograms maps known DEX/venue program IDs to a short venue name.
// Mirrors the original system's venue table exactly.
var VenuePrograms = map[string]string{
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "pump",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":   "pump",
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":   "jupiter",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8":  "raydium",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK":  "raydium",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":   "orca",
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP":  "orca",
	"Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB":  "meteora",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":   "meteora",
}

// minSwapConfidence is the default minimum confidence required for a
// SwapCandidate to be promoted to a SwapEventFull; the orchestrator may
// override this via configuration (MIN_SWAP_CONFIDENCE).
const minSwapConfidence = 0.7

// MinSwapConfidence returns the default minimum confidence threshold
// for swap promotion; it does not read MIN_SWAP_CONFIDENCE.
func MinSwapConfidence() float64 { return minSwapConfidence }

// Inferencer derives swap intent from a transaction's computed deltas.
type Inferencer struct{}

// NewInferencer constructs a Swap Inferencer. It holds no state.
func NewInferencer() *Inferencer {
	return &Inferencer{}
}

// userDeltas groups token deltas by owner, excluding WSOL (which is
// folded into the SOL side by the caller).
func userDeltas(tokenDeltas []models.TokenDelta, owner string) []models.TokenDelta {
	var out []models.TokenDelta
	for _, td := range tokenDeltas {
		if td.Owner == owner && td.Mint != WSOLMint {
			out = append(out, td)
		}
	}
	return out
}

// Infer examines every candidate user and returns the single
// highest-confidence swap candidate across all of them, or nil if no
// buy or sell pattern was found for any candidate. Ties are broken
// first by the larger absolute quote amount, then lexicographically by
// user wallet address, giving a fully deterministic result.
func (inf *Inferencer) Infer(tokenDeltas []models.TokenDelta, solDeltas []models.SolDelta, candidates []string) *models.SwapCandidate {
	solMerged := NormalizeWSOL(tokenDeltas, solDeltas)

	var best *models.SwapCandidate

	consider := func(c *models.SwapCandidate) {
		if c == nil {
			return
		}
		if best == nil {
			best = c
			return
		}
		if c.Confidence > best.Confidence {
			best = c
			return
		}
		if c.Confidence == best.Confidence {
			if abs64(c.QuoteAmount) > abs64(best.QuoteAmount) {
				best = c
				return
			}
			if abs64(c.QuoteAmount) == abs64(best.QuoteAmount) && c.UserWallet < best.UserWallet {
				best = c
			}
		}
	}

	for _, user := range candidates {
		ud := userDeltas(tokenDeltas, user)
		lamports := solMerged[user]
		consider(checkBuy(user, ud, lamports))
		consider(checkSell(user, ud, lamports))
	}

	return best
}

// checkBuy looks for: SOL/WSOL or quote-mint token spent (negative),
// non-quote token received (positive).
func checkBuy(user string, userDeltas []models.TokenDelta, lamportsDelta int64) *models.SwapCandidate {
	type spend struct {
		mint   string
		amount int64
	}
	var quoteSpent []spend
	if lamportsDelta < 0 {
		quoteSpent = append(quoteSpent, spend{WSOLMint, lamportsDelta})
	}
	var tokenReceived []models.TokenDelta

	for _, td := range userDeltas {
		if QuoteMints[td.Mint] && td.Delta < 0 {
			quoteSpent = append(quoteSpent, spend{td.Mint, td.Delta})
		} else if !QuoteMints[td.Mint] && td.Delta > 0 {
			tokenReceived = append(tokenReceived, td)
		}
	}

	if len(quoteSpent) == 0 || len(tokenReceived) == 0 {
		return nil
	}

	maxQuote := quoteSpent[0]
	for _, s := range quoteSpent[1:] {
		if abs64(s.amount) > abs64(maxQuote.amount) {
			maxQuote = s
		}
	}
	maxToken := tokenReceived[0]
	for _, t := range tokenReceived[1:] {
		if t.Delta > maxToken.Delta {
			maxToken = t
		}
	}

	confidence := calculateConfidence(userDeltas, len(quoteSpent), lamportsDelta)

	return &models.SwapCandidate{
		UserWallet:  user,
		Side:        models.SwapSideBuy,
		BaseMint:    maxToken.Mint,
		BaseAmount:  maxToken.Delta,
		QuoteMint:   maxQuote.mint,
		QuoteAmount: abs64(maxQuote.amount),
		Confidence:  confidence,
	}
}

// checkSell is the exact mirror of checkBuy: non-quote token sold
// (negative), SOL/WSOL or quote token received (positive).
func checkSell(user string, userDeltas []models.TokenDelta, lamportsDelta int64) *models.SwapCandidate {
	type recv struct {
		mint   string
		amount int64
	}
	var quoteReceived []recv
	if lamportsDelta > 0 {
		quoteReceived = append(quoteReceived, recv{WSOLMint, lamportsDelta})
	}
	var tokenSold []models.TokenDelta

	for _, td := range userDeltas {
		if QuoteMints[td.Mint] && td.Delta > 0 {
			quoteReceived = append(quoteReceived, recv{td.Mint, td.Delta})
		} else if !QuoteMints[td.Mint] && td.Delta < 0 {
			tokenSold = append(tokenSold, td)
		}
	}

	if len(quoteReceived) == 0 || len(tokenSold) == 0 {
		return nil
	}

	maxQuote := quoteReceived[0]
	for _, r := range quoteReceived[1:] {
		if abs64(r.amount) > abs64(maxQuote.amount) {
			maxQuote = r
		}
	}
	maxToken := tokenSold[0]
	for _, t := range tokenSold[1:] {
		if abs64(t.Delta) > abs64(maxToken.Delta) {
			maxToken = t
		}
	}

	confidence := calculateConfidence(userDeltas, len(quoteReceived), lamportsDelta)

	return &models.SwapCandidate{
		UserWallet:  user,
		Side:        models.SwapSideSell,
		BaseMint:    maxToken.Mint,
		BaseAmount:  maxToken.Delta,
		QuoteMint:   maxQuote.mint,
		QuoteAmount: abs64(maxQuote.amount),
		Confidence:  confidence,
	}
}

// calculateConfidence reproduces the original penalty schedule exactly:
// start at 1.0, -0.2 for multi-hop (>1 non-quote token delta), -0.2 for
// no quote leg, -0.1 for multiple quote legs, -0.1 when the lamports
// delta exactly equals the ATA rent constant (a rent-account artifact
// rather than a genuine transfer), -0.1 for >3 total user deltas,
// floored at 0.0.
func calculateConfidence(userDeltas []models.TokenDelta, numQuoteLegs int, lamportsDelta int64) float64 {
	confidence := 1.0

	nonQuote := 0
	for _, td := range userDeltas {
		if !QuoteMints[td.Mint] {
			nonQuote++
		}
	}
	if nonQuote > 1 {
		confidence -= 0.2
	}
	if numQuoteLegs == 0 {
		confidence -= 0.2
	}
	if numQuoteLegs > 1 {
		confidence -= 0.1
	}
	if lamportsDelta != 0 && abs64(lamportsDelta) == ATARentLamports {
		confidence -= 0.1
	}
	if len(userDeltas) > 3 {
		confidence -= 0.1
	}

	return math.Max(confidence, 0.0)
}

// IdentifyVenue returns the first known venue matching any of the
// invoked program IDs, or "unknown" if none match.
func IdentifyVenue(programsInvoked []string) string {
	sorted := append([]string(nil), programsInvoked...)
	sort.Strings(sorted)
	for _, id := range sorted {
		if v, ok := VenuePrograms[id]; ok {
			return v
		}
	}
	return "unknown"
}

// EstimateRouteDepth counts the distinct venue programs matched among
// programsInvoked, floored at 1.
func EstimateRouteDepth(programsInvoked []string) int {
	depth := 0
	for _, id := range programsInvoked {
		if _, ok := VenuePrograms[id]; ok {
			depth++
		}
	}
	if depth < 1 {
		depth = 1
	}
	return depth
}

// ToSwapEvent promotes a SwapCandidate to a full event if its
// confidence meets minConfidence, attaching venue/route metadata
// derived from the transaction's invoked programs.
func ToSwapEvent(tx RawTransaction, candidate *models.SwapCandidate, minConfidence float64) *models.SwapEventFull {
	return BuildSwapEvent(tx.Signature, tx.Slot, tx.BlockTime, ProgramsInvoked(tx), candidate, minConfidence)
}

// BuildSwapEvent is the transaction-shape-agnostic core of ToSwapEvent:
// it promotes candidate to a full event given only the identifying
// fields and invoked-program set, so a retained TxDeltaRecord (which
// never carries the original RawTransaction) can be replayed through
// the exact same promotion logic during HOT-promotion backfill.
func BuildSwapEvent(signature string, slot uint64, blockTime int64, programsInvoked []string, candidate *models.SwapCandidate, minConfidence float64) *models.SwapEventFull {
	if candidate == nil || candidate.Confidence < minConfidence {
		return nil
	}
	return &models.SwapEventFull{
		Signature:   signature,
		Slot:        slot,
		BlockTime:   blockTime,
		Venue:       IdentifyVenue(programsInvoked),
		UserWallet:  candidate.UserWallet,
		Side:        candidate.Side,
		BaseMint:    candidate.BaseMint,
		BaseAmount:  candidate.BaseAmount,
		QuoteMint:   candidate.QuoteMint,
		QuoteAmount: candidate.QuoteAmount,
		Confidence:  candidate.Confidence,
		RouteDepth:  EstimateRouteDepth(programsInvoked),
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
