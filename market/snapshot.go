package market

import (
	"math"
	"time"
)

// Snapshot is the market state captured by the caller once per evaluation cycle.
// It is a value type: enrichment produces a new Snapshot rather than mutating one.
type Snapshot struct {
	VolatilityIndex    float64   `json:"volatility_index"`
	GeopoliticalRisk   float64   `json:"geopolit_risk_score"`
	SentimentFragility float64   `json:"sentiment_fragility"`
	MarketVelocity     int64     `json:"market_velocity"`
	OrderbookImbalance float64   `json:"orderbook_imbalance_rate"`
	ETFFlowSpike       float64   `json:"etf_flow_spike"`
	HFTConcentration   float64   `json:"hft_concentration"`
	Timestamp          time.Time `json:"timestamp"`
}

// WithLiveIndicators returns a copy whose sentiment and geopolitical fields are
// raised to the live readings when those are higher. Live data never lowers a field.
func (s Snapshot) WithLiveIndicators(sentiment, geopolitical float64) Snapshot {
	s.SentimentFragility = math.Max(s.SentimentFragility, sentiment)
	s.GeopoliticalRisk = math.Max(s.GeopoliticalRisk, geopolitical)
	return s
}

// Finite returns a copy safe for JSON encoding and hashing: NaN becomes 0 and
// ±Inf becomes ±math.MaxFloat64. Every derived value (normalized factors,
// proofs, ledger events) is computed from this form, so a published record
// re-derives to the same digest.
func (s Snapshot) Finite() Snapshot {
	s.VolatilityIndex = finite(s.VolatilityIndex)
	s.GeopoliticalRisk = finite(s.GeopoliticalRisk)
	s.SentimentFragility = finite(s.SentimentFragility)
	s.OrderbookImbalance = finite(s.OrderbookImbalance)
	s.ETFFlowSpike = finite(s.ETFFlowSpike)
	s.HFTConcentration = finite(s.HFTConcentration)
	return s
}

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	default:
		return v
	}
}
