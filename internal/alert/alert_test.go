package alert

import (
	"testing"
	"time"

	"github.com/rawblock/sentinel/internal/scoring"
	"github.com/rawblock/sentinel/pkg/models"
)

func TestTokenDisplay_PrefersNameAndSymbol(t *testing.T) {
	a := models.Alert{TokenName: "Dogwifhat", TokenSymbol: "WIF"}
	if got := tokenDisplay(a); got != "Dogwifhat (WIF)" {
		t.Errorf("unexpected display: %q", got)
	}
}

func TestTokenDisplay_FallsBackToTruncatedMint(t *testing.T) {
	a := models.Alert{Mint: "So11111111111111111111111111111111111111112"}
	want := truncate(a.Mint, 8) + "..."
	if got := tokenDisplay(a); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTruncate_ShorterStringUnchanged(t *testing.T) {
	if got := truncate("abc", 8); got != "abc" {
		t.Errorf("expected short string unchanged, got %q", got)
	}
}

func TestTruncate_LongerStringCut(t *testing.T) {
	if got := truncate("abcdefghij", 4); got != "abcd" {
		t.Errorf("expected cut to 4 chars, got %q", got)
	}
}

func TestTitleCase_UnderscoresToSpacedWords(t *testing.T) {
	if got := titleCase("concentrated_accumulation"); got != "Concentrated Accumulation" {
		t.Errorf("unexpected title case: %q", got)
	}
}

func TestFormatDiscordEmbed_UnknownTriggerUsesDefaultColor(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", TriggerName: "not_a_real_trigger"}
	embed := FormatDiscordEmbed(a, nil)
	if len(embed.Embeds) != 1 {
		t.Fatalf("expected exactly one embed, got %d", len(embed.Embeds))
	}
	if embed.Embeds[0].Color != defaultColor {
		t.Errorf("expected default color for an unrecognized trigger, got %#x", embed.Embeds[0].Color)
	}
}

func TestFormatDiscordEmbed_KnownTriggerUsesMappedColor(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", TriggerName: "sybil_pattern"}
	embed := FormatDiscordEmbed(a, nil)
	if embed.Embeds[0].Color != 0xFF0000 {
		t.Errorf("expected mapped color for sybil_pattern, got %#x", embed.Embeds[0].Color)
	}
}

func TestFormatDiscordEmbed_IncludesScoreFieldWhenPresent(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", TriggerName: "whale_concentration"}
	score := &scoring.Score{TotalScore: 0.8}
	embed := FormatDiscordEmbed(a, score)
	found := false
	for _, f := range embed.Embeds[0].Fields {
		if f.Name == "CTO Risk" {
			found = true
		}
	}
	if !found {
		t.Error("expected a CTO Risk field when a score is supplied")
	}
}

func TestFormatDiscordEmbed_OmitsScoreFieldWhenNil(t *testing.T) {
	a := models.Alert{Mint: "TOKENX"}
	embed := FormatDiscordEmbed(a, nil)
	for _, f := range embed.Embeds[0].Fields {
		if f.Name == "CTO Risk" {
			t.Error("did not expect a CTO Risk field with a nil score")
		}
	}
}

func TestFormatDiscordEmbed_CapsTopBuyersAtFive(t *testing.T) {
	var buyers []models.WalletVolume
	for i := 0; i < 8; i++ {
		buyers = append(buyers, models.WalletVolume{Wallet: "wallet12345", Volume: float64(i)})
	}
	a := models.Alert{Mint: "TOKENX", TopBuyers: buyers}
	embed := FormatDiscordEmbed(a, nil)
	for _, f := range embed.Embeds[0].Fields {
		if f.Name == "Top Buyers" {
			lines := 0
			for _, r := range f.Value {
				if r == '\n' {
					lines++
				}
			}
			if lines+1 != 5 {
				t.Errorf("expected 5 top-buyer lines, got %d", lines+1)
			}
		}
	}
}

func TestFormatDiscordEmbed_ZeroTimestampDefaultsToNow(t *testing.T) {
	a := models.Alert{Mint: "TOKENX"}
	before := time.Now().UTC()
	embed := FormatDiscordEmbed(a, nil)
	ts, err := time.Parse(time.RFC3339, embed.Embeds[0].Timestamp)
	if err != nil {
		t.Fatalf("expected a valid RFC3339 timestamp, got %q: %v", embed.Embeds[0].Timestamp, err)
	}
	if ts.Before(before.Add(-time.Minute)) {
		t.Errorf("expected timestamp to default near now, got %v", ts)
	}
}

func TestFormatTelegram_IncludesEvidenceCappedAtTwo(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", TriggerName: "gradual_accumulation"}
	score := &scoring.Score{TotalScore: 0.5, Evidence: []string{"e1", "e2", "e3"}}
	msg := FormatTelegram(a, score)
	if !contains(msg, "e1") || !contains(msg, "e2") {
		t.Error("expected the first two evidence lines present")
	}
	if contains(msg, "e3") {
		t.Error("expected evidence capped at two lines")
	}
}

func TestFormatTelegram_UnknownTriggerUsesDefaultEmoji(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", TriggerName: "made_up_trigger"}
	msg := FormatTelegram(a, nil)
	if !contains(msg, "\U0001F514") {
		t.Error("expected default bell emoji for an unrecognized trigger")
	}
}

func TestFormatTelegram_EnrichmentDegradedWarningPresent(t *testing.T) {
	a := models.Alert{Mint: "TOKENX", EnrichmentDegraded: true}
	msg := FormatTelegram(a, nil)
	if !contains(msg, "degraded") {
		t.Error("expected a degraded-enrichment warning in the message body")
	}
}

func TestFormatPlain_FallsBackToTruncatedMintWithoutSymbol(t *testing.T) {
	a := models.Alert{Mint: "So11111111111111111111111111111111111111112", TriggerName: "t", BuyCount5m: 3, UniqueBuyers5m: 2, VolumeSOL5m: 1.5}
	msg := FormatPlain(a)
	if !contains(msg, truncate(a.Mint, 8)) {
		t.Errorf("expected truncated mint in plain format, got %q", msg)
	}
}

func TestCheckRateLimit_StopsAtConfiguredCap(t *testing.T) {
	c := &Channel{RateLimitPerMin: 2}
	now := time.Now()
	if !c.checkRateLimit(now) || !c.checkRateLimit(now) {
		t.Fatal("expected the first two sends within a minute to be allowed")
	}
	if c.checkRateLimit(now) {
		t.Error("expected the third send in the same minute to be rate limited")
	}
}

func TestCheckRateLimit_ResetsOnNewMinute(t *testing.T) {
	c := &Channel{RateLimitPerMin: 1}
	now := time.Now()
	if !c.checkRateLimit(now) {
		t.Fatal("expected the first send to be allowed")
	}
	later := now.Add(time.Minute)
	if !c.checkRateLimit(later) {
		t.Error("expected the rate limit window to reset on a new minute")
	}
}

func TestStats_ReflectsSentAndErrorCounts(t *testing.T) {
	c := &Channel{Name: "discord"}
	c.recordSent()
	c.recordSent()
	c.recordError()
	stats := c.Stats()
	if stats.SentCount != 2 || stats.ErrorCount != 1 {
		t.Errorf("expected SentCount=2 ErrorCount=1, got %+v", stats)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (substr == "" || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
