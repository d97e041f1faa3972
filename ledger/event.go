package ledger

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"time_horizon/market"
)

// ErrUnavailable is returned by ledgers that could not accept an event.
var ErrUnavailable = errors.New("ledger unavailable")

// Event is the public record of one intervention decision.
type Event struct {
	CycleID        string          `json:"cycle_id"`
	Timestamp      string          `json:"timestamp"`
	StressLevel    float64         `json:"stress_level"`
	Intervention   string          `json:"intervention"`
	Proof          string          `json:"proof"`
	MarketSnapshot market.Snapshot `json:"market_snapshot"`
	NodeSignature  string          `json:"node_signature"`
}

// Record is an event as stored by an append-only ledger.
type Record struct {
	Event
	TxID string `json:"tx_id"`
}

// Ledger is the external append-only transparency record.
type Ledger interface {
	// Publish appends ev and returns its transaction id.
	Publish(ctx context.Context, ev Event) (string, error)
	Close() error
}

// TxID derives the transaction id: "GF_" plus the first 16 hex characters of
// the MD5 of the canonical event.
func TxID(ev Event) (string, error) {
	data, err := Canonical(ev)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return "GF_" + hex.EncodeToString(sum[:])[:16], nil
}

// VerifyRecord checks that a stored record is internally consistent: its proof
// matches the published snapshot and stress level, and its tx id matches the event.
func VerifyRecord(rec Record) error {
	if !VerifyProof(NewProofInputs(rec.StressLevel, rec.MarketSnapshot), rec.Proof) {
		return fmt.Errorf("record %s: proof does not match published inputs", rec.TxID)
	}
	want, err := TxID(rec.Event)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.TxID, err)
	}
	if want != rec.TxID {
		return fmt.Errorf("record %s: tx id mismatch, recomputed %s", rec.TxID, want)
	}
	return nil
}
