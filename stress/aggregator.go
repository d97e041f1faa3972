// Package stress turns a market snapshot into a single stress scalar in [0,1].
package stress

import (
	"math"

	"time_horizon/config"
	"time_horizon/market"
	"time_horizon/utils"
)

const (
	// VolatilityCeiling is the volatility index that normalizes to 1.
	VolatilityCeiling = 50.0
	// ScalingKnee is where exponential scaling starts to push values toward 1.
	ScalingKnee = 0.65

	velocityPerOrder      = 1e-6
	velocityImbalanceMult = 0.3
	velocityETFMult       = 0.2
)

// Factors holds the five normalized inputs in their fixed positional order.
type Factors struct {
	Volatility         float64 `json:"volatility"`
	Geopolitical       float64 `json:"geopolitical"`
	Sentiment          float64 `json:"sentiment"`
	Velocity           float64 `json:"velocity"`
	OrderbookImbalance float64 `json:"orderbook_imbalance"`
}

// Ordered returns the factors as {volatility, geopolitical, sentiment, velocity, orderbook_imbalance}.
func (f Factors) Ordered() [5]float64 {
	return [5]float64{f.Volatility, f.Geopolitical, f.Sentiment, f.Velocity, f.OrderbookImbalance}
}

// Breakdown explains how a stress value was produced.
type Breakdown struct {
	Normalized   Factors    `json:"normalized"`
	Scaled       Factors    `json:"scaled"`
	Contribution [5]float64 `json:"contribution"`
	Stress       float64    `json:"stress"`
}

// Normalize maps raw snapshot fields to [0,1] factors. It never rejects input:
// negative or NaN readings collapse to 0 and oversized or infinite ones
// saturate at 1. Input is reduced to its Finite form first.
func Normalize(s market.Snapshot) Factors {
	s = s.Finite()
	imbalance := math.Abs(s.OrderbookImbalance)
	velocity := float64(s.MarketVelocity)*velocityPerOrder +
		imbalance*velocityImbalanceMult +
		s.ETFFlowSpike*velocityETFMult

	return Factors{
		Volatility:         utils.Clamp01(s.VolatilityIndex / VolatilityCeiling),
		Geopolitical:       utils.Clamp01(s.GeopoliticalRisk),
		Sentiment:          utils.Clamp01(s.SentimentFragility),
		Velocity:           utils.Clamp01(velocity),
		OrderbookImbalance: utils.Clamp01(imbalance),
	}
}

// ExponentialScale is the identity up to the knee and 1-(1-x)^4 above it, so
// factors already past the concerning level compound instead of averaging away.
func ExponentialScale(x float64) float64 {
	if x <= ScalingKnee {
		return x
	}
	return 1 - math.Pow(1-x, 4)
}

// Explain computes the stress level together with its intermediate values.
// Only volatility, geopolitical and sentiment are scaled.
func Explain(s market.Snapshot, weights config.WeightConfig) Breakdown {
	n := Normalize(s)
	scaled := Factors{
		Volatility:         ExponentialScale(n.Volatility),
		Geopolitical:       ExponentialScale(n.Geopolitical),
		Sentiment:          ExponentialScale(n.Sentiment),
		Velocity:           n.Velocity,
		OrderbookImbalance: n.OrderbookImbalance,
	}

	b := Breakdown{Normalized: n, Scaled: scaled}
	w := weights.Ordered()
	var sum float64
	for i, f := range scaled.Ordered() {
		b.Contribution[i] = f * w[i]
		sum += b.Contribution[i]
	}
	b.Stress = utils.Clamp01(sum)
	return b
}

// Aggregate returns the stress level of s under weights. It is pure and deterministic.
func Aggregate(s market.Snapshot, weights config.WeightConfig) float64 {
	return Explain(s, weights).Stress
}
