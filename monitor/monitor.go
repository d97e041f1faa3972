// Package monitor drives the breaker: it pulls snapshots from a feed and runs
// one evaluation cycle per tick.
package monitor

import (
	"context"
	"fmt"
	"time"

	"time_horizon/logs"
	"time_horizon/market"
)

// Evaluator runs one decision cycle. *controller.Controller implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, snap market.Snapshot) market.Outcome
}

// OutcomeHandler is called after every cycle.
type OutcomeHandler func(market.Outcome)

// Options tune the loop.
type Options struct {
	// Interval between cycles. Zero or negative evaluates back to back.
	Interval time.Duration
	// Heartbeat is how often a liveness line is logged. Zero disables it.
	Heartbeat time.Duration
	// OnOutcome receives every outcome, after it has been logged.
	OnOutcome OutcomeHandler
}

// Run evaluates one snapshot per tick until the feed is exhausted or ctx is
// cancelled. It returns the number of completed cycles. Exhaustion is not an
// error; cancellation returns ctx.Err().
func Run(ctx context.Context, ev Evaluator, feed Feed, opts Options) (int, error) {
	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	lastHeartbeat := time.Now()
	cycles := 0
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				logs.Info("Monitor received stop signal, exiting.")
				return cycles, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			logs.Info("Monitor received stop signal, exiting.")
			return cycles, err
		}

		snap, ok, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logs.Info("Monitor received stop signal, exiting.")
				return cycles, ctx.Err()
			}
			return cycles, fmt.Errorf("feed failed after %d cycles: %w", cycles, err)
		}
		if !ok {
			logs.Infof("[Monitor] Feed exhausted after %d cycles.", cycles)
			return cycles, nil
		}

		outcome := ev.Evaluate(ctx, snap)
		cycles++
		Report(outcome)
		if opts.OnOutcome != nil {
			opts.OnOutcome(outcome)
		}

		if opts.Heartbeat > 0 && time.Since(lastHeartbeat) >= opts.Heartbeat {
			logs.Infof("[Heartbeat] Breaker alive: %d cycles, current level %s", cycles, outcome.Level)
			lastHeartbeat = time.Now()
		}
	}
}

// Report logs one outcome, louder for the halting levels.
func Report(o market.Outcome) {
	entry := logs.WithFields(map[string]interface{}{
		"cycle":  o.ID,
		"level":  o.Level.String(),
		"stress": fmt.Sprintf("%.4f", o.StressLevel),
	})
	switch o.Level {
	case market.CoolingOff, market.GlobalSpeedLimit:
		entry.Warnf("[Monitor] %s", o.Message)
	case market.Throttle, market.SoftThrottle:
		entry.Infof("[Monitor] %s", o.Message)
	default:
		entry.Debugf("[Monitor] %s", o.Message)
	}
	if o.Published() {
		entry.Infof("[Monitor] Decision committed to ledger: tx=%s proof=%s", o.TransactionID, o.Proof)
	}
}
