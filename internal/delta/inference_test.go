package delta

import (
	"math"
	"testing"

	"github.com/rawblock/sentinel/pkg/models"
)

func TestInfer_DetectsSimpleBuy(t *testing.T) {
	inf := NewInferencer()
	tokenDeltas := []models.TokenDelta{
		{Owner: "buyer", Mint: "TOKENX", Delta: 1000},
	}
	solDeltas := []models.SolDelta{
		{Owner: "buyer", Delta: -1_000_000},
	}
	candidate := inf.Infer(tokenDeltas, solDeltas, []string{"buyer"})
	if candidate == nil {
		t.Fatal("expected a swap candidate")
	}
	if candidate.Side != models.SwapSideBuy {
		t.Errorf("expected a buy, got %s", candidate.Side)
	}
	if candidate.BaseMint != "TOKENX" {
		t.Errorf("expected base mint TOKENX, got %s", candidate.BaseMint)
	}
	if candidate.Confidence != 1.0 {
		t.Errorf("expected full confidence for a clean single-hop buy, got %.2f", candidate.Confidence)
	}
}

func TestInfer_DetectsSimpleSell(t *testing.T) {
	inf := NewInferencer()
	tokenDeltas := []models.TokenDelta{
		{Owner: "seller", Mint: "TOKENX", Delta: -1000},
	}
	solDeltas := []models.SolDelta{
		{Owner: "seller", Delta: 2_000_000},
	}
	candidate := inf.Infer(tokenDeltas, solDeltas, []string{"seller"})
	if candidate == nil || candidate.Side != models.SwapSideSell {
		t.Fatalf("expected a sell candidate, got %+v", candidate)
	}
}

func TestInfer_NoQuoteLegReturnsNil(t *testing.T) {
	inf := NewInferencer()
	tokenDeltas := []models.TokenDelta{
		{Owner: "wallet", Mint: "TOKENX", Delta: 1000},
	}
	candidate := inf.Infer(tokenDeltas, nil, []string{"wallet"})
	if candidate != nil {
		t.Errorf("expected nil with no quote leg on either side, got %+v", candidate)
	}
}

func TestInfer_TieBreakPrefersLargerQuoteAmount(t *testing.T) {
	inf := NewInferencer()
	tokenDeltas := []models.TokenDelta{
		{Owner: "small", Mint: "TOKENX", Delta: 500},
		{Owner: "big", Mint: "TOKENX", Delta: 500},
	}
	solDeltas := []models.SolDelta{
		{Owner: "small", Delta: -1_000_000},
		{Owner: "big", Delta: -5_000_000},
	}
	candidate := inf.Infer(tokenDeltas, solDeltas, []string{"small", "big"})
	if candidate == nil || candidate.UserWallet != "big" {
		t.Fatalf("expected the larger quote amount to win the tie, got %+v", candidate)
	}
}

func TestInfer_TieBreakFallsBackToLexicographicWallet(t *testing.T) {
	inf := NewInferencer()
	tokenDeltas := []models.TokenDelta{
		{Owner: "zeta", Mint: "TOKENX", Delta: 500},
		{Owner: "alpha", Mint: "TOKENX", Delta: 500},
	}
	solDeltas := []models.SolDelta{
		{Owner: "zeta", Delta: -1_000_000},
		{Owner: "alpha", Delta: -1_000_000},
	}
	candidate := inf.Infer(tokenDeltas, solDeltas, []string{"zeta", "alpha"})
	if candidate == nil || candidate.UserWallet != "alpha" {
		t.Fatalf("expected the lexicographically smaller wallet to win an exact tie, got %+v", candidate)
	}
}

func TestCalculateConfidence_PenaltySchedule(t *testing.T) {
	// Multi-hop (2 non-quote deltas) plus a rent-artifact lamports delta.
	userDeltas := []models.TokenDelta{
		{Owner: "w", Mint: "TOKENA", Delta: 100},
		{Owner: "w", Mint: "TOKENB", Delta: 200},
	}
	confidence := calculateConfidence(userDeltas, 1, ATARentLamports)
	want := 1.0 - 0.2 - 0.1 // multi-hop, rent-artifact
	if math.Abs(confidence-want) > 1e-9 {
		t.Errorf("expected confidence %.2f, got %.2f", want, confidence)
	}
}

func TestCalculateConfidence_StacksEveryApplicablePenalty(t *testing.T) {
	// Four non-quote deltas, no quote leg and a rent-artifact lamports
	// delta: the multi-hop, no-quote-leg, rent-artifact and >3-deltas
	// penalties all apply (multiple quote legs cannot coexist with none).
	userDeltas := []models.TokenDelta{
		{Owner: "w", Mint: "TOKENA", Delta: 100},
		{Owner: "w", Mint: "TOKENB", Delta: 200},
		{Owner: "w", Mint: "TOKENC", Delta: 300},
		{Owner: "w", Mint: "TOKEND", Delta: 400},
	}
	confidence := calculateConfidence(userDeltas, 0, ATARentLamports)
	want := 1.0 - 0.2 - 0.2 - 0.1 - 0.1
	if math.Abs(confidence-want) > 1e-9 {
		t.Errorf("expected confidence %.2f with every applicable penalty stacked, got %.2f", want, confidence)
	}
}

func TestIdentifyVenue_UnknownWhenNoMatch(t *testing.T) {
	if v := IdentifyVenue([]string{"someRandomProgram"}); v != "unknown" {
		t.Errorf("expected unknown venue, got %s", v)
	}
}

func TestIdentifyVenue_MatchesKnownProgram(t *testing.T) {
	if v := IdentifyVenue([]string{"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"}); v != "jupiter" {
		t.Errorf("expected jupiter, got %s", v)
	}
}

func TestToSwapEvent_RejectsBelowMinConfidence(t *testing.T) {
	candidate := &models.SwapCandidate{Confidence: 0.5}
	event := ToSwapEvent(RawTransaction{}, candidate, 0.7)
	if event != nil {
		t.Error("expected nil event below the confidence threshold")
	}
}

func TestToSwapEvent_PromotesAtOrAboveMinConfidence(t *testing.T) {
	candidate := &models.SwapCandidate{Confidence: 0.7, UserWallet: "w", BaseMint: "TOKENX"}
	event := ToSwapEvent(RawTransaction{}, candidate, 0.7)
	if event == nil {
		t.Fatal("expected a promoted event at the exact threshold")
	}
	if event.Venue != "unknown" {
		t.Errorf("expected unknown venue with no invoked programs, got %s", event.Venue)
	}
}
