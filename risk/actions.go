// risk/actions.go
package risk

import (
	"fmt"

	"time_horizon/market"
)

// Action is the level-specific intervention returned by the state machine.
// Description is the human-readable message carried into the outcome.
type Action interface {
	Level() market.InterventionLevel
	Description() string
	Delay() int
	CoolingOff() int
	Assets() []string
}

// === Specific Action Implementations ===

// MonitorAction means normal conditions: no delay, no cooling period.
type MonitorAction struct{}

func (a *MonitorAction) Level() market.InterventionLevel { return market.Monitoring }
func (a *MonitorAction) Description() string             { return "Monitoring: Normal market conditions" }
func (a *MonitorAction) Delay() int                      { return 0 }
func (a *MonitorAction) CoolingOff() int                 { return 0 }
func (a *MonitorAction) Assets() []string                { return []string{} }

// SoftThrottleAction is the preemptive, randomized delay. DelayMs may be zero
// when the randomizer skipped this cycle.
type SoftThrottleAction struct {
	DelayMs int
}

func (a *SoftThrottleAction) Level() market.InterventionLevel { return market.SoftThrottle }
func (a *SoftThrottleAction) Description() string {
	return fmt.Sprintf("Preemptive Soft Throttling: %dms random delay", a.DelayMs)
}
func (a *SoftThrottleAction) Delay() int       { return a.DelayMs }
func (a *SoftThrottleAction) CoolingOff() int  { return 0 }
func (a *SoftThrottleAction) Assets() []string { return []string{} }

// ThrottleAction adds a fixed latency penalty for HFT flow.
type ThrottleAction struct {
	DelayMs int
}

func (a *ThrottleAction) Level() market.InterventionLevel { return market.Throttle }
func (a *ThrottleAction) Description() string {
	return fmt.Sprintf("HFT Throttling: +%dms latency", a.DelayMs)
}
func (a *ThrottleAction) Delay() int       { return a.DelayMs }
func (a *ThrottleAction) CoolingOff() int  { return 0 }
func (a *ThrottleAction) Assets() []string { return []string{} }

// CoolingOffAction restricts the stressed asset set for a standard period.
type CoolingOffAction struct {
	DelayMs        int
	Minutes        int
	AffectedAssets []string
}

func (a *CoolingOffAction) Level() market.InterventionLevel { return market.CoolingOff }
func (a *CoolingOffAction) Description() string {
	return fmt.Sprintf("Cooling Off: %dmin for %d assets", a.Minutes, len(a.AffectedAssets))
}
func (a *CoolingOffAction) Delay() int      { return a.DelayMs }
func (a *CoolingOffAction) CoolingOff() int { return a.Minutes }
func (a *CoolingOffAction) Assets() []string {
	return append([]string{}, a.AffectedAssets...)
}

// GlobalSpeedLimitAction slows the whole venue instead of halting it.
type GlobalSpeedLimitAction struct {
	DelayMs int
	Minutes int
}

func (a *GlobalSpeedLimitAction) Level() market.InterventionLevel { return market.GlobalSpeedLimit }
func (a *GlobalSpeedLimitAction) Description() string {
	return fmt.Sprintf("GLOBAL SPEED LIMIT: %dms latency + FIFO queue (%dmin)", a.DelayMs, a.Minutes)
}
func (a *GlobalSpeedLimitAction) Delay() int       { return a.DelayMs }
func (a *GlobalSpeedLimitAction) CoolingOff() int  { return a.Minutes }
func (a *GlobalSpeedLimitAction) Assets() []string { return []string{} }
