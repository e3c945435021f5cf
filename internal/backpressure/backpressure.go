// Package backpressure tracks processing lag and stream backlog to
// decide how much work the pipeline can afford to do, and guards the
// enrichment RPC behind a circuit breaker so a failing downstream
// dependency can't cascade into the hot path.
package backpressure

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/sentinel/pkg/models"
)

const checkInterval = time.Second

// StreamLenSource supplies the current Redis stream length.
type StreamLenSource interface {
	Len(ctx context.Context) (int64, error)
}

// ModeChangeCallback is invoked every time Update observes the
// degradation mode actually change, outside of any internal lock.
type ModeChangeCallback func(from, to models.DegradationMode)

// Manager derives a DegradationMode from processing lag and stream
// backlog, throttling its own recomputation to once per second.
type Manager struct {
	stream StreamLenSource

	degradedLag      time.Duration
	criticalLag      time.Duration
	degradedStreamLen int64
	criticalStreamLen int64

	mu           sync.RWMutex
	mode         models.DegradationMode
	lastCheck    time.Time
	lastBlockTime time.Time
	processingLag time.Duration
	streamLength  int64
	modeChanges   int64

	onModeChange []ModeChangeCallback
}

// OnModeChange registers a callback fired after every observed
// degradation-mode transition (not on every Update call — only when
// the mode actually differs from the previous check).
func (m *Manager) OnModeChange(cb ModeChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onModeChange = append(m.onModeChange, cb)
}

// NewManager constructs a Manager with the given thresholds.
func NewManager(stream StreamLenSource, degradedLag, criticalLag time.Duration, degradedStreamLen, criticalStreamLen int64) *Manager {
	return &Manager{
		stream:            stream,
		degradedLag:       degradedLag,
		criticalLag:       criticalLag,
		degradedStreamLen: degradedStreamLen,
		criticalStreamLen: criticalStreamLen,
		mode:              models.ModeNormal,
	}
}

// Mode returns the current degradation mode.
func (m *Manager) Mode() models.DegradationMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// IsNormal reports whether the pipeline is currently undegraded.
func (m *Manager) IsNormal() bool {
	return m.Mode() == models.ModeNormal
}

// IsDegraded reports whether the pipeline is in DEGRADED or CRITICAL.
func (m *Manager) IsDegraded() bool {
	mode := m.Mode()
	return mode == models.ModeDegraded || mode == models.ModeCritical
}

// IsCritical reports whether the pipeline is in CRITICAL mode.
func (m *Manager) IsCritical() bool {
	return m.Mode() == models.ModeCritical
}

// Update recomputes the degradation mode from the latest processed
// blockTime (zero if unknown) and the stream's current length. It
// throttles itself to at most once per second, matching the original
// system's check-interval guard.
func (m *Manager) Update(ctx context.Context, blockTime time.Time) models.DegradationMode {
	now := time.Now()

	m.mu.Lock()
	if now.Sub(m.lastCheck) < checkInterval {
		mode := m.mode
		m.mu.Unlock()
		return mode
	}
	m.lastCheck = now
	if !blockTime.IsZero() {
		m.lastBlockTime = blockTime
		m.processingLag = now.Sub(blockTime)
	}
	m.mu.Unlock()

	streamLen, err := m.stream.Len(ctx)
	if err != nil {
		log.Printf("backpressure: failed to get stream length: %v", err)
	} else {
		m.mu.Lock()
		m.streamLength = streamLen
		m.mu.Unlock()
	}

	m.mu.Lock()
	newMode := m.calculateModeLocked()
	oldMode := m.mode
	changed := newMode != oldMode
	if changed {
		m.modeChanges++
		log.Printf("backpressure: mode changed %s -> %s (lag=%s, stream=%d)", oldMode, newMode, m.processingLag, m.streamLength)
		m.mode = newMode
	}
	callbacks := append([]ModeChangeCallback(nil), m.onModeChange...)
	m.mu.Unlock()

	if changed {
		for _, cb := range callbacks {
			cb(oldMode, newMode)
		}
	}
	return newMode
}

// calculateModeLocked must be called with m.mu held.
func (m *Manager) calculateModeLocked() models.DegradationMode {
	if m.processingLag > m.criticalLag {
		return models.ModeCritical
	}
	if m.streamLength > m.criticalStreamLen {
		return models.ModeCritical
	}
	if m.processingLag > m.degradedLag {
		return models.ModeDegraded
	}
	if m.streamLength > m.degradedStreamLen {
		return models.ModeDegraded
	}
	return models.ModeNormal
}

// ShouldStoreSwapEvent reports whether full SwapEventFull records
// should be persisted at the current mode.
func (m *Manager) ShouldStoreSwapEvent() bool {
	return m.Mode() == models.ModeNormal
}

// ShouldEnrich reports whether enrichment RPCs should run at the
// current mode — paused only in CRITICAL.
func (m *Manager) ShouldEnrich() bool {
	return m.Mode() != models.ModeCritical
}

// ShouldParseFull reports whether full transaction parsing should run
// at the current mode.
func (m *Manager) ShouldParseFull() bool {
	return m.Mode() == models.ModeNormal
}

// Stats is a snapshot of the Manager's current state for the
// inspection API.
type Stats struct {
	Mode               models.DegradationMode
	ProcessingLag      time.Duration
	StreamLength       int64
	ModeChanges        int64
	DegradedLag        time.Duration
	CriticalLag        time.Duration
	DegradedStreamLen  int64
	CriticalStreamLen  int64
}

// Stats returns a point-in-time snapshot.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Mode:              m.mode,
		ProcessingLag:     m.processingLag,
		StreamLength:      m.streamLength,
		ModeChanges:       m.modeChanges,
		DegradedLag:       m.degradedLag,
		CriticalLag:       m.criticalLag,
		DegradedStreamLen: m.degradedStreamLen,
		CriticalStreamLen: m.criticalStreamLen,
	}
}

// CircuitBreaker protects a downstream call from cascading failure:
// after failureThreshold consecutive failures it opens and rejects
// calls until recoveryTimeout has elapsed.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	isOpen      bool
}

// NewCircuitBreaker constructs a CircuitBreaker.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// IsOpen reports whether the breaker is currently blocking calls,
// auto-resetting it if the recovery timeout has elapsed.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return false
	}
	if time.Since(b.lastFailure) > b.recoveryTimeout {
		b.isOpen = false
		b.failures = 0
		log.Printf("backpressure: circuit breaker reset")
		return false
	}
	return true
}

// RecordSuccess clears the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure increments the failure count, opening the breaker
// once failureThreshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.failureThreshold {
		b.isOpen = true
		log.Printf("backpressure: circuit breaker opened after %d failures", b.failures)
	}
}

// ErrCircuitOpen is returned by Call when the breaker is open.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")

// Call executes fn under circuit-breaker protection, recording the
// outcome and short-circuiting with ErrCircuitOpen while open.
func (b *CircuitBreaker) Call(fn func() error) error {
	if b.IsOpen() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// BreakerStats is a snapshot of circuit breaker state.
type BreakerStats struct {
	IsOpen           bool
	Failures         int
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Stats returns a point-in-time snapshot.
func (b *CircuitBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		IsOpen:           b.isOpen,
		Failures:         b.failures,
		FailureThreshold: b.failureThreshold,
		RecoveryTimeout:  b.recoveryTimeout,
	}
}
