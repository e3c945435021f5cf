// Package scoring computes a coordination-likelihood ("CTO" — Cabal /
// Team / Organization) score for a hot token from five weighted
// sub-scores, each a piecewise function of a single observable
// signal, plus a confidence estimate driven by sample-size quality.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/rawblock/sentinel/pkg/models"
)

// Weights for each component, summing to 1.0.
const (
	weightConcentration = 0.25
	weightCluster       = 0.30
	weightTiming        = 0.15
	weightNewWallet     = 0.15
	weightRatio         = 0.15
)

// ClusterMembership describes, for the wallets passed to Score, how
// many belong to a resolved multi-member (size >= 2) cluster.
type ClusterMembership struct {
	Wallets            []string
	InMultiMemberCount int
	LargestClusterSize int
}

// Input bundles everything the scorer needs for one evaluation.
type Input struct {
	Stats      models.RollingStats
	TopBuyers  []models.WalletVolume
	Membership ClusterMembership
}

// Score is the outcome of scoring one token, with full component
// breakdown and supporting evidence for alert display.
type Score struct {
	TotalScore float64
	Confidence float64

	ConcentrationScore float64
	ClusterScore       float64
	TimingScore        float64
	NewWalletScore     float64
	RatioScore         float64

	Evidence []string
}

// ScoreToken computes the composite score for in.
func ScoreToken(in Input) Score {
	var evidence []string

	concentration := scoreConcentration(in.Stats.Top3BuyersVolumeShare, &evidence)
	cluster := scoreClustering(in.Membership, &evidence)
	timing := scoreTiming(in.Stats, &evidence)
	newWallet := scoreNewWallets(in.Stats.NewWalletPct, &evidence)
	ratio := scoreRatio(in.Stats.BuySellRatio, &evidence)

	total := concentration*weightConcentration +
		cluster*weightCluster +
		timing*weightTiming +
		newWallet*weightNewWallet +
		ratio*weightRatio

	confidence := calculateConfidence(in.Stats, in.TopBuyers)

	return Score{
		TotalScore:         total,
		Confidence:         confidence,
		ConcentrationScore: concentration,
		ClusterScore:       cluster,
		TimingScore:        timing,
		NewWalletScore:     newWallet,
		RatioScore:         ratio,
		Evidence:           evidence,
	}
}

func scoreConcentration(top3Share float64, evidence *[]string) float64 {
	switch {
	case top3Share >= 0.8:
		*evidence = append(*evidence, fmt.Sprintf("Very high concentration: top 3 = %.0f%%", top3Share*100))
		return 1.0
	case top3Share >= 0.6:
		*evidence = append(*evidence, fmt.Sprintf("High concentration: top 3 = %.0f%%", top3Share*100))
		return 0.8
	case top3Share >= 0.4:
		return 0.5
	case top3Share >= 0.2:
		return 0.2
	default:
		return 0.0
	}
}

func scoreClustering(m ClusterMembership, evidence *[]string) float64 {
	if len(m.Wallets) == 0 {
		return 0.0
	}
	clusterPct := float64(m.InMultiMemberCount) / float64(len(m.Wallets))

	switch {
	case clusterPct >= 0.5:
		*evidence = append(*evidence, fmt.Sprintf("High clustering: %.0f%% in linked wallets, largest cluster = %d", clusterPct*100, m.LargestClusterSize))
		return math.Min(1.0, clusterPct+0.2)
	case clusterPct >= 0.2:
		*evidence = append(*evidence, fmt.Sprintf("Some clustering: %.0f%% in linked wallets", clusterPct*100))
		return clusterPct + 0.1
	default:
		return 0.0
	}
}

// scoreTiming uses buys-per-unique-buyer as a proxy for coordinated /
// automated activity, lacking per-tx timestamps for a proper timing
// analysis.
func scoreTiming(stats models.RollingStats, evidence *[]string) float64 {
	if stats.UniqueBuyers == 0 {
		return 0.0
	}
	buysPerBuyer := float64(stats.BuyCount) / float64(stats.UniqueBuyers)

	switch {
	case buysPerBuyer >= 10:
		*evidence = append(*evidence, fmt.Sprintf("High buy frequency: %.1f buys/wallet", buysPerBuyer))
		return 1.0
	case buysPerBuyer >= 5:
		*evidence = append(*evidence, fmt.Sprintf("Elevated buy frequency: %.1f buys/wallet", buysPerBuyer))
		return 0.7
	case buysPerBuyer >= 3:
		return 0.4
	case buysPerBuyer >= 2:
		return 0.2
	default:
		return 0.0
	}
}

func scoreNewWallets(newPct float64, evidence *[]string) float64 {
	switch {
	case newPct >= 0.7:
		*evidence = append(*evidence, fmt.Sprintf("Very high new wallet %%: %.0f%%", newPct*100))
		return 1.0
	case newPct >= 0.5:
		*evidence = append(*evidence, fmt.Sprintf("High new wallet %%: %.0f%%", newPct*100))
		return 0.7
	case newPct >= 0.3:
		return 0.4
	default:
		return 0.0
	}
}

func scoreRatio(ratio float64, evidence *[]string) float64 {
	if math.IsInf(ratio, 1) {
		*evidence = append(*evidence, "All buys, no sells")
		return 1.0
	}
	switch {
	case ratio >= 20:
		*evidence = append(*evidence, fmt.Sprintf("Extreme buy ratio: %.1fx", ratio))
		return 1.0
	case ratio >= 10:
		*evidence = append(*evidence, fmt.Sprintf("Very high buy ratio: %.1fx", ratio))
		return 0.8
	case ratio >= 5:
		return 0.5
	case ratio >= 3:
		return 0.3
	default:
		return 0.0
	}
}

// calculateConfidence penalizes thin samples: low buy counts, few
// top-buyer entries, and low absolute volume each erode confidence
// independently. Floored at 0.1 so a score is never reported with
// zero confidence.
func calculateConfidence(stats models.RollingStats, topBuyers []models.WalletVolume) float64 {
	confidence := 1.0

	switch {
	case stats.BuyCount < 5:
		confidence -= 0.3
	case stats.BuyCount < 10:
		confidence -= 0.2
	case stats.BuyCount < 20:
		confidence -= 0.1
	}

	switch {
	case len(topBuyers) < 3:
		confidence -= 0.2
	case len(topBuyers) < 5:
		confidence -= 0.1
	}

	switch {
	case stats.BuyVolumeSOL < 1.0:
		confidence -= 0.2
	case stats.BuyVolumeSOL < 5.0:
		confidence -= 0.1
	}

	return math.Max(0.1, confidence)
}

// RiskLevel maps a total score to a coarse human-facing label.
func RiskLevel(totalScore float64) string {
	switch {
	case totalScore >= 0.7:
		return "HIGH"
	case totalScore >= 0.4:
		return "MEDIUM"
	case totalScore >= 0.2:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

// FormatSummary renders a score for alert display: a risk-level
// headline followed by up to 3 evidence lines.
func FormatSummary(s Score) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CTO Risk: %s (%.0f%%)", RiskLevel(s.TotalScore), s.TotalScore*100)

	n := len(s.Evidence)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		b.WriteString("\n  ")
		b.WriteString(s.Evidence[i])
	}
	return b.String()
}
