package controller

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"time_horizon/config"
	"time_horizon/ledger"
	"time_horizon/logs"
	"time_horizon/market"
	"time_horizon/metrics"
	"time_horizon/monitor"
	"time_horizon/oracle"
	"time_horizon/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var demoSnapshot = market.Snapshot{
	VolatilityIndex:    62.3,
	GeopoliticalRisk:   0.7,
	SentimentFragility: 0.8,
	MarketVelocity:     120000,
	OrderbookImbalance: 0.85,
	ETFFlowSpike:       0.9,
	HFTConcentration:   0.75,
}

type staticIndicators oracle.Indicators

func (s staticIndicators) Fetch(ctx context.Context) oracle.Indicators { return oracle.Indicators(s) }

type memoryLedger struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (m *memoryLedger) Publish(ctx context.Context, ev ledger.Event) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ledger.TxID(ev)
}

func (m *memoryLedger) Close() error { return nil }

type memoryHistory struct {
	mu      sync.Mutex
	entries []state.Entry
	err     error
}

func (m *memoryHistory) Append(e state.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryHistory) LoadAll() ([]state.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.Entry(nil), m.entries...), nil
}

func (m *memoryHistory) Close() error { return nil }

func newController(t *testing.T, deps Dependencies, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithRand(rand.New(rand.NewSource(1)))}, opts...)
	c, err := New(config.Default(), deps, opts...)
	require.NoError(t, err)
	return c
}

func TestEvaluateDemoSnapshot(t *testing.T) {
	l := &memoryLedger{}
	hist := &memoryHistory{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newController(t, Dependencies{
		Publisher: ledger.NewPublisher(l, config.Default().GlassFloor),
		History:   hist,
	}, WithClock(func() time.Time { return now }))

	out := c.Evaluate(context.Background(), demoSnapshot)

	assert.InDelta(t, 0.9159, out.StressLevel, 1e-3)
	assert.Equal(t, market.GlobalSpeedLimit, out.Level)
	assert.Equal(t, 500, out.ThrottleDelayMs)
	assert.Equal(t, 15, out.CoolingOffMinutes)
	assert.Equal(t, "GLOBAL SPEED LIMIT: 500ms latency + FIFO queue (15min)", out.Message)
	assert.True(t, out.Published())
	assert.Len(t, out.Proof, 64)
	assert.Equal(t, now, out.Timestamp)
	assert.NotEmpty(t, out.ID)

	require.Len(t, l.events, 1)
	ev := l.events[0]
	assert.Equal(t, out.ID, ev.CycleID)
	assert.NoError(t, ledger.VerifyRecord(ledger.Record{Event: ev, TxID: out.TransactionID}))

	assert.Equal(t, market.GlobalSpeedLimit, c.CurrentLevel())
	require.Len(t, hist.entries, 1)
	assert.Equal(t, out.TransactionID, hist.entries[0].GlassFloorTx)
	assert.Equal(t, 1, c.HistoryLen())
}

func TestEvaluateCalmMarket(t *testing.T) {
	l := &memoryLedger{}
	c := newController(t, Dependencies{
		Indicators: staticIndicators{},
		Publisher:  ledger.NewPublisher(l, config.Default().GlassFloor),
	})

	out := c.Evaluate(context.Background(), market.Snapshot{})
	assert.Equal(t, 0.0, out.StressLevel)
	assert.Equal(t, market.Monitoring, out.Level)
	assert.Equal(t, 0, out.ThrottleDelayMs)
	assert.Empty(t, out.Proof)
	assert.False(t, out.Published())
	assert.Empty(t, l.events)
	assert.Equal(t, []string{}, out.AffectedAssets)
}

func TestEvaluateUsesConservativeFallback(t *testing.T) {
	c := newController(t, Dependencies{
		Indicators: staticIndicators{Sentiment: 0.5, Geopolitical: 0.5, Fallback: true, Attempts: 3},
	})
	out := c.Evaluate(context.Background(), market.Snapshot{})
	assert.InDelta(t, 0.25*0.5+0.20*0.5, out.StressLevel, 1e-12)
	assert.Equal(t, market.Monitoring, out.Level)
}

func TestLiveIndicatorsOnlyRaiseStress(t *testing.T) {
	snap := market.Snapshot{VolatilityIndex: 20, GeopoliticalRisk: 0.6, SentimentFragility: 0.3}
	plain := newController(t, Dependencies{}).Evaluate(context.Background(), snap)

	higher := newController(t, Dependencies{Indicators: staticIndicators{Sentiment: 0.9}}).
		Evaluate(context.Background(), snap)
	assert.Greater(t, higher.StressLevel, plain.StressLevel)

	lower := newController(t, Dependencies{Indicators: staticIndicators{Sentiment: 0.1, Geopolitical: 0.1}}).
		Evaluate(context.Background(), snap)
	assert.Equal(t, plain.StressLevel, lower.StressLevel)
}

func TestFlashCrashEscalatesWithoutHalting(t *testing.T) {
	hook := new(test.Hook)
	logs.AddHook(hook)
	t.Cleanup(logs.ResetHooks)

	c := newController(t, Dependencies{})
	var levels []market.InterventionLevel
	for _, snap := range monitor.FlashCrash2010(time.Date(2010, 5, 6, 14, 30, 0, 0, time.UTC)) {
		levels = append(levels, c.Evaluate(context.Background(), snap).Level)
	}

	assert.Equal(t, []market.InterventionLevel{
		market.Monitoring, market.SoftThrottle, market.Throttle, market.GlobalSpeedLimit, market.GlobalSpeedLimit,
	}, levels)

	changes := 0
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "INTERVENTION CHANGE") {
			changes++
		}
	}
	assert.Equal(t, 3, changes, "a level change is logged exactly once")
}

func TestHistoryRecordsEveryCycleDespiteLedgerFailure(t *testing.T) {
	hist := &memoryHistory{}
	c := newController(t, Dependencies{
		Publisher: ledger.NewPublisher(&memoryLedger{err: errors.New("ledger down")}, config.Default().GlassFloor),
		History:   hist,
	})

	var ids []string
	snaps := monitor.FlashCrash2010(time.Now())
	for _, snap := range snaps {
		out := c.Evaluate(context.Background(), snap)
		ids = append(ids, out.ID)
		assert.False(t, out.Published())
		if out.StressLevel >= 0.4 {
			assert.NotEmpty(t, out.Proof, "proof survives a failed publish")
		}
	}

	require.Len(t, hist.entries, len(snaps))
	for i, e := range hist.entries {
		assert.Equal(t, ids[i], e.CycleID)
	}
	assert.Equal(t, len(snaps), c.HistoryLen())
}

func TestHistoryFailureDoesNotAbortCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newController(t, Dependencies{History: &memoryHistory{err: errors.New("disk full")}},
		WithMetrics(metrics.New(reg)))

	out := c.Evaluate(context.Background(), demoSnapshot)
	assert.Equal(t, market.GlobalSpeedLimit, out.Level)
	assert.Equal(t, 1, c.HistoryLen())
}

func TestPublishSurvivesCallerCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	fl, err := ledger.NewFileLedger(path)
	require.NoError(t, err)
	defer fl.Close()

	c := newController(t, Dependencies{Publisher: ledger.NewPublisher(fl, config.Default().GlassFloor)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := c.Evaluate(ctx, demoSnapshot)
	assert.True(t, out.Published())

	records, err := ledger.ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, out.TransactionID, records[0].TxID)
}

func TestRehydrateFromHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	h, err := state.NewJSONHistory(path)
	require.NoError(t, err)
	for _, e := range []state.Entry{
		{CycleID: "1", Level: market.SoftThrottle.String(), ThrottleDelayMs: 7},
		{CycleID: "2", Level: market.SoftThrottle.String(), ThrottleDelayMs: 0},
		{CycleID: "3", Level: market.SoftThrottle.String(), ThrottleDelayMs: 12},
		{CycleID: "4", Level: market.GlobalSpeedLimit.String(), ThrottleDelayMs: 500},
	} {
		require.NoError(t, h.Append(e))
	}

	c := newController(t, Dependencies{History: h})
	assert.Equal(t, 4, c.HistoryLen())
	assert.Equal(t, 2, c.SoftThrottleCount())
	assert.Equal(t, market.Monitoring, c.CurrentLevel(), "the active level always starts at monitoring")

	c.Evaluate(context.Background(), market.Snapshot{})
	assert.Equal(t, 5, c.HistoryLen())
	all, _ := h.LoadAll()
	assert.Equal(t, "4", all[3].CycleID)
	assert.Len(t, all, 5)
}

func TestConcurrentEvaluate(t *testing.T) {
	hist := &memoryHistory{}
	c := newController(t, Dependencies{
		Publisher: ledger.NewPublisher(&memoryLedger{}, config.Default().GlassFloor),
		History:   hist,
	})

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := demoSnapshot
			if i%2 == 0 {
				snap = market.Snapshot{}
			}
			c.Evaluate(context.Background(), snap)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, c.HistoryLen())
	assert.Len(t, hist.entries, n)
	seen := map[string]bool{}
	for _, e := range hist.entries {
		assert.False(t, seen[e.CycleID], "cycle ids are unique")
		seen[e.CycleID] = true
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Thresholds.Level2 = 0.95
	_, err := New(cfg, Dependencies{})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Thresholds.Level4 = math.NaN()
	_, err = New(cfg, Dependencies{})
	assert.Error(t, err, "a NaN threshold would make the top level unreachable")
}

func TestNonFiniteReadingStillProducesVerifiableProof(t *testing.T) {
	l := &memoryLedger{}
	c := newController(t, Dependencies{Publisher: ledger.NewPublisher(l, config.Default().GlassFloor)})

	snap := demoSnapshot
	snap.VolatilityIndex = math.Inf(1)
	snap.HFTConcentration = math.NaN()
	out := c.Evaluate(context.Background(), snap)

	assert.InDelta(t, 0.9159, out.StressLevel, 1e-3)
	assert.Equal(t, market.GlobalSpeedLimit, out.Level)
	assert.Len(t, out.Proof, 64)
	assert.True(t, out.Published())
	require.Len(t, l.events, 1)
	assert.NoError(t, ledger.VerifyRecord(ledger.Record{Event: l.events[0], TxID: out.TransactionID}))
	assert.True(t, ledger.VerifyProof(ledger.NewProofInputs(out.StressLevel, snap), out.Proof))
}

func TestConfigIsFrozenCopy(t *testing.T) {
	cfg := config.Default()
	c, err := New(cfg, Dependencies{})
	require.NoError(t, err)

	cfg.Thresholds.Level4 = 0.1
	got := c.Config()
	got.Indicators.SentimentKeywords[0] = "changed"
	assert.Equal(t, 0.90, c.Config().Thresholds.Level4)
	assert.Equal(t, "market crash", c.Config().Indicators.SentimentKeywords[0])
}
