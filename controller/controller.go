// Package controller runs evaluation cycles: fetch live indicators, aggregate
// stress, classify, act, publish and record.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"time_horizon/config"
	"time_horizon/ledger"
	"time_horizon/logs"
	"time_horizon/market"
	"time_horizon/metrics"
	"time_horizon/oracle"
	"time_horizon/risk"
	"time_horizon/state"
	"time_horizon/stress"

	"github.com/google/uuid"
)

// IndicatorSource supplies live indicators. *oracle.Coordinator implements it.
type IndicatorSource interface {
	Fetch(ctx context.Context) oracle.Indicators
}

// Dependencies are the collaborators a controller needs. Any of them may be
// nil: without indicators the snapshot is used as given, without a publisher
// nothing is published, without history nothing is persisted.
type Dependencies struct {
	Indicators IndicatorSource
	Publisher  *ledger.Publisher
	History    state.HistoryStore
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the decision clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand injects the soft-throttle random source.
func WithRand(r risk.RandSource) Option {
	return func(c *Controller) { c.rnd = r }
}

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the single owner of the breaker state. Evaluate may be called
// from several goroutines; the state-mutating tail of a cycle is serialized.
type Controller struct {
	cfg        config.Config
	indicators IndicatorSource
	publisher  *ledger.Publisher
	history    state.HistoryStore
	metrics    *metrics.Recorder
	now        func() time.Time
	rnd        risk.RandSource

	mu         sync.Mutex
	machine    *risk.Machine
	historyLen int
}

// New validates cfg, wires the collaborators and rehydrates from history.
// A history that cannot be loaded is logged and treated as empty.
func New(cfg config.Config, deps Dependencies, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Controller{
		cfg:        cfg.Clone(),
		indicators: deps.Indicators,
		publisher:  deps.Publisher,
		history:    deps.History,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.machine = risk.NewMachine(cfg, c.rnd)

	if c.history != nil {
		entries, err := c.history.LoadAll()
		if err != nil {
			logs.Errorf("[Controller] Failed to load history: %v", err)
		} else {
			c.restore(entries)
		}
	}
	return c, nil
}

// restore rehydrates the history length and the soft-throttle counter. The
// active level is not restored: every process starts at Monitoring.
func (c *Controller) restore(entries []state.Entry) {
	softThrottles := 0
	softName := market.SoftThrottle.String()
	for _, e := range entries {
		if e.Level == softName && e.ThrottleDelayMs > 0 {
			softThrottles++
		}
	}
	c.historyLen = len(entries)
	c.machine.Restore(softThrottles)
	logs.Infof("[Controller] Loaded %d historical interventions", len(entries))
}

// Evaluate runs one cycle and always returns an outcome. Indicator, ledger and
// history failures degrade the result but never abort the cycle.
func (c *Controller) Evaluate(ctx context.Context, snap market.Snapshot) market.Outcome {
	cycleID := uuid.NewString()

	effective := snap
	if c.indicators != nil {
		ind := c.indicators.Fetch(ctx)
		effective = snap.WithLiveIndicators(ind.Sentiment, ind.Geopolitical)
	}

	breakdown := stress.Explain(effective, c.cfg.Weights)
	stressLevel := breakdown.Stress
	level := risk.Classify(stressLevel, c.cfg.Thresholds)
	logs.Debugf("[Controller] cycle %s: normalized=%+v contribution=%v stress=%.4f level=%s",
		cycleID, breakdown.Normalized, breakdown.Contribution, stressLevel, level)

	c.mu.Lock()
	defer c.mu.Unlock()

	softBefore := c.machine.SoftThrottleCount()
	action := c.machine.Decide(level, stressLevel)
	if c.metrics != nil && c.machine.SoftThrottleCount() > softBefore {
		c.metrics.ObserveSoftThrottle()
	}

	decidedAt := c.now()
	var pub ledger.Publication
	if c.publisher != nil {
		// Publication is bounded by its own timeout; caller cancellation must
		// not cut a started cycle short.
		pub = c.publisher.MaybePublish(context.WithoutCancel(ctx), ledger.Request{
			CycleID:  cycleID,
			Level:    level,
			Stress:   stressLevel,
			Snapshot: effective,
			Time:     decidedAt,
		})
	}

	if from, changed := c.machine.Transition(level, stressLevel); changed && c.metrics != nil {
		c.metrics.ObserveTransition(from, level)
	}

	outcome := market.Outcome{
		ID:                cycleID,
		Level:             level,
		StressLevel:       stressLevel,
		ThrottleDelayMs:   action.Delay(),
		CoolingOffMinutes: action.CoolingOff(),
		AffectedAssets:    action.Assets(),
		Message:           action.Description(),
		TransactionID:     pub.TxID,
		Proof:             pub.Proof,
		Timestamp:         decidedAt,
	}

	c.historyLen++
	if c.history != nil {
		if err := c.history.Append(state.EntryFromOutcome(outcome)); err != nil {
			logs.Errorf("[Controller] Failed to save history: %v", err)
			if c.metrics != nil {
				c.metrics.ObserveHistoryFailure()
			}
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveOutcome(outcome)
	}
	return outcome
}

// CurrentLevel returns the active intervention level.
func (c *Controller) CurrentLevel() market.InterventionLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// HistoryLen returns the number of decisions known to this controller,
// including rehydrated ones.
func (c *Controller) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyLen
}

// SoftThrottleCount returns the number of soft-throttle cycles that applied a delay.
func (c *Controller) SoftThrottleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.SoftThrottleCount()
}

// Config returns a copy of the frozen configuration.
func (c *Controller) Config() config.Config {
	return c.cfg.Clone()
}
