package triggers

import (
	"context"
	"strings"
	"testing"

	"github.com/rawblock/sentinel/pkg/models"
)

type fakeStats struct {
	byWindow map[int]models.RollingStats
}

func (f *fakeStats) GetStats(ctx context.Context, mint string, windowSeconds int) (models.RollingStats, error) {
	return f.byWindow[windowSeconds], nil
}

const sampleYAML = `
triggers:
  - name: volume_spike
    conditions:
      - field: buy_volume_sol_5m
        operator: ">="
        value: 50
  - name: sustained_buying_1h
    conditions:
      - field: buy_count_1h
        operator: ">="
        value: 100
`

func TestEvaluate_FiveMinuteTriggerWinsOverHourly(t *testing.T) {
	stats := &fakeStats{byWindow: map[int]models.RollingStats{
		300:  {BuyVolumeSOL: 75},
		3600: {BuyCount: 200},
	}}
	e := NewEvaluator(stats)
	if err := e.LoadYAML([]byte(sampleYAML)); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	result, err := e.Evaluate(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a trigger to fire")
	}
	if result.Trigger.Name != "volume_spike" {
		t.Errorf("expected the 5-minute trigger to win, got %s", result.Trigger.Name)
	}
	if !strings.HasPrefix(result.Reason, "Trigger: volume_spike") {
		t.Errorf("unexpected reason string: %s", result.Reason)
	}
}

func TestEvaluate_FallsThroughToHourlyTrigger(t *testing.T) {
	stats := &fakeStats{byWindow: map[int]models.RollingStats{
		300:  {BuyVolumeSOL: 1},
		3600: {BuyCount: 150},
	}}
	e := NewEvaluator(stats)
	e.LoadYAML([]byte(sampleYAML))

	result, err := e.Evaluate(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result == nil || result.Trigger.Name != "sustained_buying_1h" {
		t.Fatalf("expected the hourly trigger to fire, got %+v", result)
	}
}

func TestEvaluate_NoMatchReturnsNilResult(t *testing.T) {
	stats := &fakeStats{byWindow: map[int]models.RollingStats{
		300:  {BuyVolumeSOL: 1},
		3600: {BuyCount: 1},
	}}
	e := NewEvaluator(stats)
	e.LoadYAML([]byte(sampleYAML))

	result, err := e.Evaluate(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result != nil {
		t.Errorf("expected no trigger to fire, got %+v", result)
	}
}

func TestEvaluate_AllConditionsMustMatch(t *testing.T) {
	const yamlWithTwoConditions = `
triggers:
  - name: both_required
    conditions:
      - field: buy_volume_sol_5m
        operator: ">="
        value: 10
      - field: new_wallet_pct_5m
        operator: ">="
        value: 0.5
`
	stats := &fakeStats{byWindow: map[int]models.RollingStats{
		300: {BuyVolumeSOL: 20, NewWalletPct: 0.1},
	}}
	e := NewEvaluator(stats)
	e.LoadYAML([]byte(yamlWithTwoConditions))

	result, err := e.Evaluate(context.Background(), "mint1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result != nil {
		t.Error("expected no fire when only one of two AND-conjoined conditions matches")
	}
}

func TestLoadYAML_HourlyClassificationBy1hFieldSuffix(t *testing.T) {
	e := NewEvaluator(&fakeStats{})
	if err := e.LoadYAML([]byte(sampleYAML)); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if len(e.triggers5m) != 1 || e.triggers5m[0].Name != "volume_spike" {
		t.Errorf("expected volume_spike classified as a 5-minute trigger, got %+v", e.triggers5m)
	}
	if len(e.triggers1h) != 1 || e.triggers1h[0].Name != "sustained_buying_1h" {
		t.Errorf("expected sustained_buying_1h classified as an hourly trigger, got %+v", e.triggers1h)
	}
}

func TestCompare_OperatorSemantics(t *testing.T) {
	cases := []struct {
		actual, value float64
		op            string
		want          bool
	}{
		{5, 5, ">=", true},
		{4, 5, ">=", false},
		{5, 5, "<=", true},
		{6, 5, "<=", false},
		{5, 5, "==", true},
		{5, 5, ">", false},
		{5, 5, "<", false},
		{1, 1, "??", false},
	}
	for _, c := range cases {
		if got := compare(c.actual, c.op, c.value); got != c.want {
			t.Errorf("compare(%v, %q, %v) = %v, want %v", c.actual, c.op, c.value, got, c.want)
		}
	}
}
