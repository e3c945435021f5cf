// Package alert formats and delivers Alert records to configured
// channels (Discord, Telegram, and a plain-text fallback for logs),
// with per-channel rate limiting and retry.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/rawblock/sentinel/internal/scoring"
	"github.com/rawblock/sentinel/pkg/models"
)

var triggerColors = map[string]int{
	"concentrated_accumulation": 0xFF4444,
	"stealth_accumulation":      0xFF8800,
	"extreme_ratio":             0xFFAA00,
	"sybil_pattern":             0xFF0000,
	"whale_concentration":       0xFF6600,
	"slow_stealth_accumulation": 0xAA00FF,
	"slow_concentration":        0x8800FF,
	"gradual_accumulation":      0x6600FF,
}

const defaultColor = 0x00AAFF

var riskEmoji = map[string]string{
	"HIGH":    "\U0001F534",
	"MEDIUM":  "\U0001F7E0",
	"LOW":     "\U0001F7E1",
	"MINIMAL": "\U0001F7E2",
}

func tokenDisplay(a models.Alert) string {
	if a.TokenName != "" {
		return fmt.Sprintf("%s (%s)", a.TokenName, a.TokenSymbol)
	}
	if a.TokenSymbol != "" {
		return a.TokenSymbol
	}
	return truncate(a.Mint, 8) + "..."
}

func links(mint string) string {
	return fmt.Sprintf("[Solscan](https://solscan.io/token/%s) | [Birdeye](https://birdeye.so/token/%s) | [DexScreener](https://dexscreener.com/solana/%s)", mint, mint, mint)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// DiscordEmbed is the Discord webhook payload shape.
type DiscordEmbed struct {
	Content string `json:"-"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// FormatDiscordEmbed builds a Discord webhook payload for an alert,
// optionally including the coordination score breakdown.
func FormatDiscordEmbed(a models.Alert, score *scoring.Score) DiscordEmbed {
	color, ok := triggerColors[a.TriggerName]
	if !ok {
		color = defaultColor
	}

	fields := []embedField{
		{Name: "Token", Value: "`" + a.Mint + "`", Inline: false},
		{Name: "Trigger", Value: titleCase(a.TriggerName), Inline: true},
		{
			Name: "5m Stats",
			Value: fmt.Sprintf("Buys: %d\nBuyers: %d\nVolume: %.2f SOL\nRatio: %.1fx",
				a.BuyCount5m, a.UniqueBuyers5m, a.VolumeSOL5m, a.BuySellRatio5m),
			Inline: true,
		},
	}

	if score != nil {
		risk := scoring.RiskLevel(score.TotalScore)
		emoji := riskEmoji[risk]
		if emoji == "" {
			emoji = "⚪"
		}
		fields = append(fields, embedField{
			Name:   "CTO Risk",
			Value:  fmt.Sprintf("%s %s (%.0f%%)", emoji, risk, score.TotalScore*100),
			Inline: true,
		})
	}

	if len(a.TopBuyers) > 0 {
		var lines []string
		for i, b := range a.TopBuyers {
			if i >= 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. `%s...` - %.2f SOL", i+1, truncate(b.Wallet, 8), b.Volume))
		}
		fields = append(fields, embedField{Name: "Top Buyers", Value: strings.Join(lines, "\n"), Inline: false})
	}

	if a.ClusterSummary != "" {
		fields = append(fields, embedField{Name: "Cluster Analysis", Value: a.ClusterSummary, Inline: false})
	}

	if a.EnrichmentDegraded {
		fields = append(fields, embedField{Name: "⚠️ Warning", Value: "Enrichment degraded (credit limit)", Inline: false})
	}

	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return DiscordEmbed{
		Embeds: []embed{{
			Title:       "\U0001F6A8 " + tokenDisplay(a),
			Description: a.TriggerReason,
			Color:       color,
			Fields:      fields,
			Footer:      embedFooter{Text: "Sentinel | " + links(a.Mint)},
			Timestamp:   ts.Format(time.RFC3339),
		}},
	}
}

var triggerEmoji = map[string]string{
	"concentrated_accumulation": "\U0001F534",
	"stealth_accumulation":      "\U0001F7E0",
	"extreme_ratio":             "\U0001F7E1",
	"sybil_pattern":             "\U0001F6A8",
	"whale_concentration":       "\U0001F40B",
	"slow_stealth_accumulation": "\U0001F47B",
	"slow_concentration":        "\U0001F50D",
	"gradual_accumulation":      "\U0001F4C8",
}

// FormatTelegram renders a Markdown-formatted Telegram message body.
func FormatTelegram(a models.Alert, score *scoring.Score) string {
	emoji := triggerEmoji[a.TriggerName]
	if emoji == "" {
		emoji = "\U0001F514"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n", emoji, tokenDisplay(a))
	fmt.Fprintf(&b, "*Trigger:* %s\n", titleCase(a.TriggerName))
	fmt.Fprintf(&b, "*Reason:* %s\n\n", a.TriggerReason)
	b.WriteString("*5m Stats:*\n")
	fmt.Fprintf(&b, "  • Buys: %d\n", a.BuyCount5m)
	fmt.Fprintf(&b, "  • Unique Buyers: %d\n", a.UniqueBuyers5m)
	fmt.Fprintf(&b, "  • Volume: %.2f SOL\n", a.VolumeSOL5m)
	fmt.Fprintf(&b, "  • Buy/Sell Ratio: %.1fx", a.BuySellRatio5m)

	if score != nil {
		risk := scoring.RiskLevel(score.TotalScore)
		fmt.Fprintf(&b, "\n\n*CTO Risk:* %s (%.0f%%)", risk, score.TotalScore*100)
		n := len(score.Evidence)
		if n > 2 {
			n = 2
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "\n  • %s", score.Evidence[i])
		}
	}

	if len(a.TopBuyers) > 0 {
		b.WriteString("\n\n*Top Buyers:*")
		for i, buyer := range a.TopBuyers {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "\n  %d. `%s...` - %.2f SOL", i+1, truncate(buyer.Wallet, 8), buyer.Volume)
		}
	}

	if a.ClusterSummary != "" {
		fmt.Fprintf(&b, "\n\n*Clusters:* %s", a.ClusterSummary)
	}

	if a.EnrichmentDegraded {
		b.WriteString("\n\n⚠️ _Enrichment degraded (credit limit)_")
	}

	fmt.Fprintf(&b, "\n\n`%s`\n\n%s", a.Mint, links(a.Mint))
	return b.String()
}

// FormatPlain renders a single-line plain-text summary, for logging
// and for channels without rich formatting.
func FormatPlain(a models.Alert) string {
	token := a.TokenSymbol
	if token == "" {
		token = truncate(a.Mint, 8)
	}
	return fmt.Sprintf("[ALERT] %s | %s | Buys: %d, Buyers: %d, Vol: %.2f SOL",
		token, a.TriggerName, a.BuyCount5m, a.UniqueBuyers5m, a.VolumeSOL5m)
}
