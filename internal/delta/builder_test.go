package delta

import (
	"testing"

	"github.com/rawblock/sentinel/pkg/models"
)

func TestBuild_TokenDeltaIgnoredWhenZero(t *testing.T) {
	b := NewBuilder()
	tx := RawTransaction{
		Balances: []BalanceSnapshot{
			{Owner: "alice", Mint: "TOKEN1", PreAmount: 100, PostAmount: 100},
		},
	}
	tokenDeltas, _ := b.Build(tx)
	if len(tokenDeltas) != 0 {
		t.Errorf("expected no token delta for an unchanged balance, got %+v", tokenDeltas)
	}
}

func TestBuild_PureAccountCreationDropsRentExactTransition(t *testing.T) {
	b := NewBuilder()
	tx := RawTransaction{
		FeePayer: "payer",
		Balances: []BalanceSnapshot{
			{Owner: "newATA", PreLamports: 0, PostLamports: ATARentLamports},
		},
	}
	_, solDeltas := b.Build(tx)
	if len(solDeltas) != 0 {
		t.Errorf("expected a zero-to-rent-exact transition to produce no SOL delta, got %+v", solDeltas)
	}
}

func TestBuild_NewAccountTransferSubtractsRent(t *testing.T) {
	b := NewBuilder()
	tx := RawTransaction{
		FeePayer: "payer",
		Balances: []BalanceSnapshot{
			{Owner: "newATA", PreLamports: 0, PostLamports: ATARentLamports + 5_000_000},
		},
	}
	_, solDeltas := b.Build(tx)
	if len(solDeltas) != 1 {
		t.Fatalf("expected exactly one SOL delta, got %+v", solDeltas)
	}
	if solDeltas[0].Delta != 5_000_000 {
		t.Errorf("expected rent-corrected delta of 5,000,000 lamports, got %d", solDeltas[0].Delta)
	}
}

func TestBuild_FeePayerDeltaIncludesFeeAddback(t *testing.T) {
	b := NewBuilder()
	tx := RawTransaction{
		FeePayer: "payer",
		Fee:      5000,
		Balances: []BalanceSnapshot{
			{Owner: "payer", PreLamports: 1_000_000, PostLamports: 995_000},
		},
	}
	tokenDeltas, solDeltas := b.Build(tx)
	if len(tokenDeltas) != 0 {
		t.Errorf("expected no token deltas, got %+v", tokenDeltas)
	}
	if len(solDeltas) != 0 {
		t.Fatalf("expected the fee to be added back so a pure fee payment nets to 0 and is dropped, got %+v", solDeltas)
	}
}

func TestNormalizeWSOL_MergesWrappedSolIntoSolDelta(t *testing.T) {
	tokenDeltas := []models.TokenDelta{
		{Owner: "alice", Mint: WSOLMint, Delta: -1_000_000},
	}
	solDeltas := []models.SolDelta{
		{Owner: "alice", Delta: 500},
	}
	merged := NormalizeWSOL(tokenDeltas, solDeltas)
	if merged["alice"] != -999_500 {
		t.Errorf("expected wrapped-SOL delta merged additively with native SOL delta, got %d", merged["alice"])
	}
}

func TestCandidateUsers_IncludesFeePayerAndNonzeroOwnersOnly(t *testing.T) {
	tokenDeltas := []models.TokenDelta{
		{Owner: "buyer", Mint: "TOKENX", Delta: 100},
		{Owner: "untouched", Mint: "TOKENX", Delta: 0},
	}
	candidates := CandidateUsers(tokenDeltas, "feepayer")
	want := map[string]bool{"feepayer": true, "buyer": true}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", candidates)
	}
	for _, c := range candidates {
		if !want[c] {
			t.Errorf("unexpected candidate %s", c)
		}
	}
}

func TestMintsTouched_ExcludesWSOLAndDedupes(t *testing.T) {
	tokenDeltas := []models.TokenDelta{
		{Owner: "a", Mint: "TOKENX", Delta: 5},
		{Owner: "b", Mint: "TOKENX", Delta: -3},
		{Owner: "a", Mint: WSOLMint, Delta: -1000},
	}
	mints := MintsTouched(tokenDeltas)
	if len(mints) != 1 || mints[0] != "TOKENX" {
		t.Errorf("expected only TOKENX, got %+v", mints)
	}
}

func TestProgramsInvoked_UnionsAllThreeSources(t *testing.T) {
	tx := RawTransaction{
		InnerProgramIDs: []string{"A", "B"},
		ProgramIDs:      []string{"B", "C"},
		ProgramsInvoked: []string{"C", "D"},
	}
	programs := ProgramsInvoked(tx)
	if len(programs) != 4 {
		t.Errorf("expected 4 distinct programs, got %+v", programs)
	}
}
