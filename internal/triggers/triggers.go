// Package triggers implements the declarative trigger evaluator: a
// YAML-configured set of threshold conditions evaluated against a
// mint's flattened rolling stats, with 5-minute triggers evaluated
// before 1-hour triggers and the first fully-matching trigger winning.
package triggers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/rawblock/sentinel/pkg/models"
)

// Condition is a single field/operator/value comparison.
type Condition struct {
	Field    string  `yaml:"field"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
}

// Trigger is a named set of AND-conjoined conditions.
type Trigger struct {
	Name       string      `yaml:"name"`
	Conditions []Condition `yaml:"conditions"`
}

// fileConfig is the top-level YAML document shape.
type fileConfig struct {
	Triggers []Trigger `yaml:"triggers"`
}

// StatsSource supplies the rolling stats a mint needs evaluated.
type StatsSource interface {
	GetStats(ctx context.Context, mint string, windowSeconds int) (models.RollingStats, error)
}

// Evaluator holds the current (hot-reloadable) trigger set, split into
// 5-minute and 1-hour buckets exactly as the original system does: a
// trigger is categorized as 1-hour if ANY of its condition field names
// contains "_1h".
type Evaluator struct {
	stats StatsSource

	mu          sync.RWMutex
	triggers5m  []Trigger
	triggers1h  []Trigger
}

// NewEvaluator constructs an Evaluator backed by stats.
func NewEvaluator(stats StatsSource) *Evaluator {
	return &Evaluator{stats: stats}
}

// LoadFile parses the trigger YAML file at path and replaces the
// currently active rule set. Safe to call again at runtime to support
// hot-reload without a process restart.
func (e *Evaluator) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trigger config: %w", err)
	}
	return e.LoadYAML(data)
}

// LoadYAML parses and installs a new trigger set from raw YAML bytes.
func (e *Evaluator) LoadYAML(data []byte) error {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse trigger config: %w", err)
	}

	var t5m, t1h []Trigger
	for _, t := range cfg.Triggers {
		if isHourly(t) {
			t1h = append(t1h, t)
		} else {
			t5m = append(t5m, t)
		}
	}

	e.mu.Lock()
	e.triggers5m = t5m
	e.triggers1h = t1h
	e.mu.Unlock()
	return nil
}

func isHourly(t Trigger) bool {
	for _, c := range t.Conditions {
		if strings.Contains(c.Field, "_1h") {
			return true
		}
	}
	return false
}

// Result is the outcome of evaluating a mint's triggers: the first
// fully-matching trigger, or nil if none fired.
type Result struct {
	Trigger *Trigger
	Reason  string
}

// Evaluate fetches both windows' stats for mint once, then checks
// 5-minute triggers before 1-hour triggers, returning the first
// trigger whose conditions are all satisfied.
func (e *Evaluator) Evaluate(ctx context.Context, mint string) (*Result, error) {
	stats5m, err := e.stats.GetStats(ctx, mint, 300)
	if err != nil {
		return nil, fmt.Errorf("fetch 5m stats: %w", err)
	}
	stats1h, err := e.stats.GetStats(ctx, mint, 3600)
	if err != nil {
		return nil, fmt.Errorf("fetch 1h stats: %w", err)
	}

	fields := flatten(stats5m, stats1h)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, t := range e.triggers5m {
		if reason, ok := matchAll(t, fields); ok {
			return &Result{Trigger: &t, Reason: reason}, nil
		}
	}
	for _, t := range e.triggers1h {
		if reason, ok := matchAll(t, fields); ok {
			return &Result{Trigger: &t, Reason: reason}, nil
		}
	}
	return nil, nil
}

func flatten(s5m, s1h models.RollingStats) map[string]float64 {
	return map[string]float64{
		"buy_count_5m":                  float64(s5m.BuyCount),
		"sell_count_5m":                 float64(s5m.SellCount),
		"unique_buyers_5m":              float64(s5m.UniqueBuyers),
		"unique_sellers_5m":             float64(s5m.UniqueSellers),
		"buy_volume_sol_5m":             s5m.BuyVolumeSOL,
		"avg_buy_size_5m":               s5m.AvgBuySize,
		"buy_sell_ratio_5m":             s5m.BuySellRatio,
		"top_3_buyers_volume_share_5m":  s5m.Top3BuyersVolumeShare,
		"new_wallet_pct_5m":             s5m.NewWalletPct,

		"buy_count_1h":                 float64(s1h.BuyCount),
		"sell_count_1h":                float64(s1h.SellCount),
		"unique_buyers_1h":             float64(s1h.UniqueBuyers),
		"unique_sellers_1h":            float64(s1h.UniqueSellers),
		"buy_volume_sol_1h":            s1h.BuyVolumeSOL,
		"avg_buy_size_1h":              s1h.AvgBuySize,
		"buy_sell_ratio_1h":            s1h.BuySellRatio,
		"top_3_buyers_volume_share_1h": s1h.Top3BuyersVolumeShare,
		"new_wallet_pct_1h":            s1h.NewWalletPct,
	}
}

func matchAll(t Trigger, fields map[string]float64) (string, bool) {
	for _, c := range t.Conditions {
		actual, ok := fields[c.Field]
		if !ok || !compare(actual, c.Operator, c.Value) {
			return "", false
		}
	}
	return formatReason(t, fields), true
}

// compare tries 2-char operators before the 1-char prefixes they
// contain (">=" before ">", "<=" before "<"), matching the original
// parser's exact try-order.
func compare(actual float64, op string, value float64) bool {
	switch op {
	case ">=":
		return actual >= value
	case "<=":
		return actual <= value
	case "==":
		return actual == value
	case ">":
		return actual > value
	case "<":
		return actual < value
	default:
		return false
	}
}

func formatReason(t Trigger, fields map[string]float64) string {
	var b strings.Builder
	b.WriteString("Trigger: ")
	b.WriteString(t.Name)
	for _, c := range t.Conditions {
		b.WriteString(" | ")
		b.WriteString(c.Field)
		b.WriteString("=")
		b.WriteString(strconv.FormatFloat(fields[c.Field], 'f', 2, 64))
		b.WriteString(" (")
		b.WriteString(c.Operator)
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(c.Value, 'f', 2, 64))
		b.WriteString(")")
	}
	return b.String()
}
