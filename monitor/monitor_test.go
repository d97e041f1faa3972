package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"time_horizon/logs"
	"time_horizon/market"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// levelByVolatility fakes a controller: the level follows the volatility index.
type levelByVolatility struct {
	mu   sync.Mutex
	seen []market.Snapshot
}

func (e *levelByVolatility) Evaluate(ctx context.Context, snap market.Snapshot) market.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, snap)
	level := market.Monitoring
	if snap.VolatilityIndex > 60 {
		level = market.GlobalSpeedLimit
	}
	return market.Outcome{Level: level, StressLevel: snap.VolatilityIndex / 100, Message: "m"}
}

type failingFeed struct{}

func (failingFeed) Next(ctx context.Context) (market.Snapshot, bool, error) {
	return market.Snapshot{}, false, errors.New("exchange feed disconnected")
}

func TestFlashCrash2010Timeline(t *testing.T) {
	start := time.Date(2010, 5, 6, 14, 30, 0, 0, time.UTC)
	tl := FlashCrash2010(start)
	require.Len(t, tl, 5)
	assert.Equal(t, start, tl[0].Timestamp)
	assert.Equal(t, start.Add(20*time.Minute), tl[4].Timestamp)
	assert.Equal(t, 72.0, tl[4].VolatilityIndex)
	assert.Equal(t, int64(200000), tl[4].MarketVelocity)
	for i := 1; i < len(tl); i++ {
		assert.Greater(t, tl[i].VolatilityIndex, tl[i-1].VolatilityIndex)
	}
}

func TestRunReplaysUntilExhausted(t *testing.T) {
	ev := &levelByVolatility{}
	var outcomes []market.Outcome
	feed := NewReplayFeed(FlashCrash2010(time.Now()))

	n, err := Run(context.Background(), ev, feed, Options{
		OnOutcome: func(o market.Outcome) { outcomes = append(outcomes, o) },
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, feed.Len())
	assert.Len(t, outcomes, 5)
	assert.Equal(t, market.GlobalSpeedLimit, outcomes[4].Level)
	assert.Equal(t, 25.0, ev.seen[0].VolatilityIndex)

	// An exhausted feed stays exhausted.
	n, err = Run(context.Background(), ev, feed, Options{})
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := &levelByVolatility{}
	done := make(chan struct{})
	var n int
	var err error
	go func() {
		n, err = Run(ctx, ev, NewSimulatedFeed(1), Options{Interval: 5 * time.Millisecond})
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Greater(t, n, 0)
}

func TestRunReportsFeedErrors(t *testing.T) {
	n, err := Run(context.Background(), &levelByVolatility{}, failingFeed{}, Options{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disconnected")
	assert.Zero(t, n)
}

func TestReportEscalatesLogLevel(t *testing.T) {
	hook := new(test.Hook)
	logs.AddHook(hook)
	t.Cleanup(logs.ResetHooks)

	Report(market.Outcome{Level: market.GlobalSpeedLimit, Message: "GLOBAL SPEED LIMIT", TransactionID: "GF_1", Proof: "p"})
	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.WarnLevel, entries[0].Level)
	assert.Equal(t, "LEVEL_4_GLOBAL_SPEED_LIMIT", entries[0].Data["level"])
	assert.Contains(t, entries[1].Message, "GF_1")
}

func TestSimulatedFeedStaysInRange(t *testing.T) {
	a := NewSimulatedFeed(99)
	b := NewSimulatedFeed(99)
	for i := 0; i < 500; i++ {
		sa, ok, err := a.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		sb, _, _ := b.Next(context.Background())
		assert.Equal(t, sa.VolatilityIndex, sb.VolatilityIndex, "same seed, same walk")

		assert.GreaterOrEqual(t, sa.VolatilityIndex, 5.0)
		assert.GreaterOrEqual(t, sa.MarketVelocity, int64(0))
		for _, v := range []float64{sa.GeopoliticalRisk, sa.SentimentFragility, sa.ETFFlowSpike, sa.HFTConcentration} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.LessOrEqual(t, sa.OrderbookImbalance, 1.0)
		assert.GreaterOrEqual(t, sa.OrderbookImbalance, -1.0)
	}
}
