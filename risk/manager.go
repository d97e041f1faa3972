// risk/manager.go
package risk

import (
	"math/rand"
	"sync"
	"time"

	"time_horizon/config"
	"time_horizon/logs"
	"time_horizon/market"
)

// softThrottleProbability is the share of soft-throttle cycles that actually delay.
const softThrottleProbability = 0.8

var (
	broadStressedAssets  = []string{"SPY", "QQQ", "VIX Futures", "Tech ETFs", "High-Yield Bonds"}
	narrowStressedAssets = []string{"SPY", "QQQ", "TLT"}
)

// RandSource is the randomness the soft throttle draws from.
// *rand.Rand satisfies it; tests inject deterministic sources.
type RandSource interface {
	Float64() float64
	Intn(n int) int
}

// lockedRand makes a *rand.Rand safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// NewRandSource returns a concurrency-safe source seeded from the clock.
func NewRandSource() RandSource {
	return &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Classify maps a stress level to an intervention level, checking the most
// severe threshold first.
func Classify(stress float64, t config.ThresholdConfig) market.InterventionLevel {
	switch {
	case stress >= t.Level4:
		return market.GlobalSpeedLimit
	case stress >= t.Level3:
		return market.CoolingOff
	case stress >= t.Level2:
		return market.Throttle
	case stress >= t.Level1B:
		return market.SoftThrottle
	default:
		return market.Monitoring
	}
}

// StressedAssets picks the asset classes placed under cooling-off. The cut-offs
// are independent of the level thresholds.
func StressedAssets(stress float64) []string {
	switch {
	case stress > 0.8:
		return append([]string{}, broadStressedAssets...)
	case stress > 0.6:
		return append([]string{}, narrowStressedAssets...)
	default:
		return []string{}
	}
}

// Machine is the intervention state machine. It owns the active level and the
// soft-throttle counter; callers serialize Decide and Transition per controller.
type Machine struct {
	delays    config.ThrottleDelayConfig
	cooling   config.CoolingOffConfig
	rnd       RandSource
	current   market.InterventionLevel
	softCount int
}

// NewMachine creates a machine starting at Monitoring.
func NewMachine(cfg config.Config, rnd RandSource) *Machine {
	if rnd == nil {
		rnd = NewRandSource()
	}
	return &Machine{
		delays:  cfg.ThrottleDelays,
		cooling: cfg.CoolingOff,
		rnd:     rnd,
		current: market.Monitoring,
	}
}

// Decide computes the action for level at the given stress.
func (m *Machine) Decide(level market.InterventionLevel, stress float64) Action {
	switch level {
	case market.SoftThrottle:
		return &SoftThrottleAction{DelayMs: m.preemptiveDelay()}
	case market.Throttle:
		return &ThrottleAction{DelayMs: m.delays.Level2}
	case market.CoolingOff:
		return &CoolingOffAction{
			DelayMs:        m.delays.Level3,
			Minutes:        m.cooling.Standard,
			AffectedAssets: StressedAssets(stress),
		}
	case market.GlobalSpeedLimit:
		return &GlobalSpeedLimitAction{DelayMs: m.delays.Level4, Minutes: m.cooling.Extended}
	default:
		return &MonitorAction{}
	}
}

// preemptiveDelay draws the soft-throttle delay: a uniform integer in
// [min,max] for 80% of calls, zero otherwise.
func (m *Machine) preemptiveDelay() int {
	if m.rnd.Float64() >= softThrottleProbability {
		return 0
	}
	span := m.delays.Level1BMax - m.delays.Level1BMin + 1
	m.softCount++
	return m.delays.Level1BMin + m.rnd.Intn(span)
}

// Transition records level as the active one. It logs a warning and reports
// changed=true only when the level differs from the previous one.
func (m *Machine) Transition(level market.InterventionLevel, stress float64) (from market.InterventionLevel, changed bool) {
	from = m.current
	if level == from {
		return from, false
	}
	logs.Warnf("INTERVENTION CHANGE: %s → %s (Stress: %.1f%%)", from, level, stress*100)
	m.current = level
	return from, true
}

// Current returns the active level.
func (m *Machine) Current() market.InterventionLevel {
	return m.current
}

// SoftThrottleCount returns how many soft-throttle cycles applied a delay.
func (m *Machine) SoftThrottleCount() int {
	return m.softCount
}

// Restore rehydrates the soft-throttle counter from persisted history.
func (m *Machine) Restore(softThrottleCount int) {
	m.softCount = softThrottleCount
}
