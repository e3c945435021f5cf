package backpressure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rawblock/sentinel/pkg/models"
)

type fakeStreamLen struct {
	length int64
	err    error
}

func (f *fakeStreamLen) Len(ctx context.Context) (int64, error) {
	return f.length, f.err
}

func TestUpdate_NormalModeWhenLagAndBacklogAreLow(t *testing.T) {
	m := NewManager(&fakeStreamLen{length: 10}, 5*time.Second, 30*time.Second, 50000, 80000)
	mode := m.Update(context.Background(), time.Now())
	if mode != models.ModeNormal {
		t.Errorf("expected NORMAL, got %s", mode)
	}
	if !m.ShouldStoreSwapEvent() || !m.ShouldParseFull() || !m.ShouldEnrich() {
		t.Error("NORMAL mode should allow every gated operation")
	}
}

func TestUpdate_CriticalLagTakesPriorityOverStreamLen(t *testing.T) {
	m := NewManager(&fakeStreamLen{length: 10}, 5*time.Second, 30*time.Second, 50000, 80000)
	mode := m.Update(context.Background(), time.Now().Add(-1*time.Minute))
	if mode != models.ModeCritical {
		t.Fatalf("expected CRITICAL from excessive lag, got %s", mode)
	}
	if m.ShouldStoreSwapEvent() || m.ShouldParseFull() || m.ShouldEnrich() {
		t.Error("CRITICAL mode must gate every operation, including enrichment")
	}
}

func TestUpdate_DegradedStopsFullParseButAllowsEnrich(t *testing.T) {
	m := NewManager(&fakeStreamLen{length: 10}, 5*time.Second, 30*time.Second, 50000, 80000)
	mode := m.Update(context.Background(), time.Now().Add(-10*time.Second))
	if mode != models.ModeDegraded {
		t.Fatalf("expected DEGRADED, got %s", mode)
	}
	if m.ShouldParseFull() || m.ShouldStoreSwapEvent() {
		t.Error("DEGRADED mode must stop full parsing and swap-event storage")
	}
	if !m.ShouldEnrich() {
		t.Error("DEGRADED mode should still allow enrichment; only CRITICAL pauses it")
	}
}

func TestUpdate_CriticalFromStreamBacklogAlone(t *testing.T) {
	m := NewManager(&fakeStreamLen{length: 90000}, 5*time.Second, 30*time.Second, 50000, 80000)
	mode := m.Update(context.Background(), time.Now())
	if mode != models.ModeCritical {
		t.Errorf("expected CRITICAL from stream backlog alone, got %s", mode)
	}
}

func TestUpdate_ThrottledToOncePerSecond(t *testing.T) {
	src := &fakeStreamLen{length: 10}
	m := NewManager(src, 5*time.Second, 30*time.Second, 50000, 80000)
	m.Update(context.Background(), time.Now())

	src.length = 90000
	mode := m.Update(context.Background(), time.Now())
	if mode != models.ModeNormal {
		t.Errorf("expected the second Update within the same second to reuse the cached mode, got %s", mode)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond)
	failing := errors.New("downstream failure")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return failing }); err != failing {
			t.Fatalf("expected the underlying error before the breaker opens, got %v", err)
		}
	}

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen once the failure threshold is reached, got %v", err)
	}
}

func TestCircuitBreaker_ResetsAfterRecoveryTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.Call(func() error { return errors.New("fail") })

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected breaker open immediately after one failure, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("expected the breaker to allow calls again after recovery timeout, got %v", err)
	}
}

func TestCircuitBreaker_SuccessClearsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Second)
	cb.Call(func() error { return errors.New("fail") })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return errors.New("fail") })

	if cb.IsOpen() {
		t.Error("a success between two failures should reset the streak, keeping the breaker closed")
	}
}
