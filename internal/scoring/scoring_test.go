package scoring

import (
	"math"
	"testing"

	"github.com/rawblock/sentinel/pkg/models"
)

func TestScoreToken_QuietTokenScoresMinimal(t *testing.T) {
	s := ScoreToken(Input{
		Stats: models.RollingStats{
			BuyCount:               2,
			UniqueBuyers:           2,
			BuySellRatio:           1.0,
			Top3BuyersVolumeShare:  0.1,
			NewWalletPct:           0.1,
			BuyVolumeSOL:           0.5,
		},
	})

	if RiskLevel(s.TotalScore) != "MINIMAL" {
		t.Errorf("expected MINIMAL risk for quiet activity, got %s (score %.2f)", RiskLevel(s.TotalScore), s.TotalScore)
	}
}

func TestScoreToken_CoordinatedBuyingScoresHigh(t *testing.T) {
	s := ScoreToken(Input{
		Stats: models.RollingStats{
			BuyCount:              50,
			UniqueBuyers:          5,
			BuySellRatio:          25,
			Top3BuyersVolumeShare: 0.9,
			NewWalletPct:          0.8,
			BuyVolumeSOL:          100,
		},
		TopBuyers: []models.WalletVolume{{}, {}, {}, {}, {}},
		Membership: ClusterMembership{
			Wallets:            []string{"a", "b", "c", "d", "e"},
			InMultiMemberCount: 5,
			LargestClusterSize: 5,
		},
	})

	if RiskLevel(s.TotalScore) != "HIGH" {
		t.Errorf("expected HIGH risk for concentrated coordinated buying, got %s (score %.2f)", RiskLevel(s.TotalScore), s.TotalScore)
	}
	if s.Confidence != 1.0 {
		t.Errorf("expected full confidence with ample sample size, got %.2f", s.Confidence)
	}
}

func TestScoreToken_ThinSampleErodesConfidence(t *testing.T) {
	s := ScoreToken(Input{
		Stats: models.RollingStats{
			BuyCount:     1,
			UniqueBuyers: 1,
			BuyVolumeSOL: 0.1,
		},
	})

	if s.Confidence >= 1.0 {
		t.Errorf("expected confidence penalty for a thin sample, got %.2f", s.Confidence)
	}
	if s.Confidence < 0.1 {
		t.Errorf("confidence should be floored at 0.1, got %.2f", s.Confidence)
	}
}

func TestScoreRatio_AllBuysNoSellsIsMaximal(t *testing.T) {
	var evidence []string
	inf := scoreRatio(math.Inf(1), &evidence)
	if inf != 1.0 {
		t.Errorf("expected an all-buys-no-sells ratio to score 1.0, got %.2f", inf)
	}
}

func TestRiskLevel_Boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "HIGH"},
		{0.7, "HIGH"},
		{0.69, "MEDIUM"},
		{0.4, "MEDIUM"},
		{0.39, "LOW"},
		{0.2, "LOW"},
		{0.19, "MINIMAL"},
		{0, "MINIMAL"},
	}
	for _, c := range cases {
		if got := RiskLevel(c.score); got != c.want {
			t.Errorf("RiskLevel(%.2f) = %s, want %s", c.score, got, c.want)
		}
	}
}
