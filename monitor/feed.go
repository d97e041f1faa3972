package monitor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"time_horizon/market"
)

// Feed supplies market snapshots, one per evaluation cycle.
type Feed interface {
	// Next returns the next snapshot; ok is false once the feed is exhausted.
	Next(ctx context.Context) (snap market.Snapshot, ok bool, err error)
}

// ReplayFeed replays a fixed timeline.
type ReplayFeed struct {
	snapshots []market.Snapshot
	pos       int
}

// NewReplayFeed creates a feed over snapshots in order.
func NewReplayFeed(snapshots []market.Snapshot) *ReplayFeed {
	return &ReplayFeed{snapshots: append([]market.Snapshot(nil), snapshots...)}
}

func (f *ReplayFeed) Next(ctx context.Context) (market.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, false, err
	}
	if f.pos >= len(f.snapshots) {
		return market.Snapshot{}, false, nil
	}
	s := f.snapshots[f.pos]
	f.pos++
	return s, true, nil
}

// Len returns the total number of snapshots in the timeline.
func (f *ReplayFeed) Len() int { return len(f.snapshots) }

// FlashCrash2010 is a simplified five-step timeline of the 6 May 2010 flash
// crash, one snapshot every five minutes starting at start.
func FlashCrash2010(start time.Time) []market.Snapshot {
	rows := []struct {
		vol, geo, sent      float64
		velocity            int64
		imbalance, etf, hft float64
	}{
		{25.0, 0.3, 0.2, 50000, 0.1, 0.1, 0.3},      // T+0: normal morning
		{32.0, 0.35, 0.4, 85000, 0.3, 0.2, 0.45},    // T+5: algo starts selling
		{45.0, 0.4, 0.65, 120000, 0.6, 0.5, 0.7},    // T+10: acceleration
		{68.0, 0.7, 0.9, 180000, 0.9, 0.85, 0.9},    // T+15: peak panic
		{72.0, 0.75, 0.95, 200000, 0.95, 0.9, 0.95}, // T+20: a classic breaker would halt here
	}
	out := make([]market.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = market.Snapshot{
			VolatilityIndex:    r.vol,
			GeopoliticalRisk:   r.geo,
			SentimentFragility: r.sent,
			MarketVelocity:     r.velocity,
			OrderbookImbalance: r.imbalance,
			ETFFlowSpike:       r.etf,
			HFTConcentration:   r.hft,
			Timestamp:          start.Add(time.Duration(i) * 5 * time.Minute),
		}
	}
	return out
}

// SimulatedFeed produces a mean-reverting random walk with occasional shocks,
// for running the breaker without a market data source.
type SimulatedFeed struct {
	rnd     *rand.Rand
	current market.Snapshot
	now     func() time.Time
}

// NewSimulatedFeed starts the walk from calm conditions.
func NewSimulatedFeed(seed int64) *SimulatedFeed {
	return &SimulatedFeed{
		rnd: rand.New(rand.NewSource(seed)),
		current: market.Snapshot{
			VolatilityIndex:    18,
			GeopoliticalRisk:   0.2,
			SentimentFragility: 0.2,
			MarketVelocity:     40000,
			OrderbookImbalance: 0.05,
			ETFFlowSpike:       0.05,
			HFTConcentration:   0.3,
		},
		now: time.Now,
	}
}

func (f *SimulatedFeed) Next(ctx context.Context) (market.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, false, err
	}
	shock := 0.0
	if f.rnd.Float64() < 0.05 {
		shock = 0.5 + f.rnd.Float64()
	}
	s := f.current
	s.VolatilityIndex = math.Max(5, s.VolatilityIndex+(18-s.VolatilityIndex)*0.2+f.rnd.NormFloat64()*2+shock*25)
	s.GeopoliticalRisk = f.walk(s.GeopoliticalRisk, 0.2, 0.03, shock*0.3)
	s.SentimentFragility = f.walk(s.SentimentFragility, 0.2, 0.05, shock*0.4)
	s.MarketVelocity = int64(math.Max(0, float64(s.MarketVelocity)+(40000-float64(s.MarketVelocity))*0.2+f.rnd.NormFloat64()*5000+shock*80000))
	s.OrderbookImbalance = math.Max(-1, math.Min(1, s.OrderbookImbalance*0.7+f.rnd.NormFloat64()*0.05+shock*0.5))
	s.ETFFlowSpike = f.walk(s.ETFFlowSpike, 0.05, 0.03, shock*0.5)
	s.HFTConcentration = f.walk(s.HFTConcentration, 0.3, 0.03, shock*0.4)
	s.Timestamp = f.now()
	f.current = s
	return s, true, nil
}

// walk mean-reverts v toward mean with gaussian noise plus a shock, bounded to [0,1].
func (f *SimulatedFeed) walk(v, mean, sigma, shock float64) float64 {
	v += (mean-v)*0.2 + f.rnd.NormFloat64()*sigma + shock
	return math.Max(0, math.Min(1, v))
}
