package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetDegradationMode_EncodesModeNumerically(t *testing.T) {
	cases := []struct {
		mode string
		want float64
	}{
		{"critical", 2},
		{"degraded", 1},
		{"normal", 0},
		{"unknown-mode", 0},
	}
	for _, c := range cases {
		SetDegradationMode(c.mode)
		if got := testutil.ToFloat64(DegradationMode); got != c.want {
			t.Errorf("SetDegradationMode(%q): gauge = %v, want %v", c.mode, got, c.want)
		}
	}
}
