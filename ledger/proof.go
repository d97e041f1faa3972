package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"time_horizon/market"
	"time_horizon/stress"
)

// Canonical renders v as JSON with every object's keys sorted. Equal content
// always produces identical bytes.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal: %w", err)
	}
	return out, nil
}

// ProofInputs are the causal inputs of one decision.
type ProofInputs struct {
	StressLevel        float64        `json:"stress_level"`
	Volatility         float64        `json:"volatility"`
	Geopolitical       float64        `json:"geopolitical"`
	Sentiment          float64        `json:"sentiment"`
	Velocity           int64          `json:"velocity"`
	OrderbookImbalance float64        `json:"orderbook_imbalance"`
	ETFFlowSpike       float64        `json:"etf_flow_spike"`
	Normalized         stress.Factors `json:"normalized"`
}

// NewProofInputs collects the inputs from the effective snapshot in its
// Finite form. The normalized factors are derived from the snapshot, so a
// verifier needs only the published snapshot and stress level.
func NewProofInputs(stressLevel float64, s market.Snapshot) ProofInputs {
	s = s.Finite()
	return ProofInputs{
		StressLevel:        stressLevel,
		Volatility:         s.VolatilityIndex,
		Geopolitical:       s.GeopoliticalRisk,
		Sentiment:          s.SentimentFragility,
		Velocity:           s.MarketVelocity,
		OrderbookImbalance: s.OrderbookImbalance,
		ETFFlowSpike:       s.ETFFlowSpike,
		Normalized:         stress.Normalize(s),
	}
}

// Proof is the SHA-256 hex digest of the canonical inputs. It is a content
// commitment, not a signature.
func Proof(in ProofInputs) (string, error) {
	data, err := Canonical(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyProof recomputes the digest for in and compares it with digest.
func VerifyProof(in ProofInputs, digest string) bool {
	got, err := Proof(in)
	return err == nil && got == digest
}
