package state

import (
	"fmt"
	"time"

	"time_horizon/config"
	"time_horizon/market"
)

// Entry is one persisted decision. Entries are only ever appended.
type Entry struct {
	CycleID           string    `json:"cycle_id"`
	Timestamp         time.Time `json:"timestamp"`
	Stress            float64   `json:"stress"`
	Level             string    `json:"level"`
	ThrottleDelayMs   int       `json:"throttle_delay_ms"`
	CoolingOffMinutes int       `json:"cooling_off_min"`
	GlassFloorTx      string    `json:"glass_floor_tx,omitempty"`
	Proof             string    `json:"proof,omitempty"`
	Message           string    `json:"message"`
}

// EntryFromOutcome converts a final decision into its history entry.
func EntryFromOutcome(o market.Outcome) Entry {
	return Entry{
		CycleID:           o.ID,
		Timestamp:         o.Timestamp,
		Stress:            o.StressLevel,
		Level:             o.Level.String(),
		ThrottleDelayMs:   o.ThrottleDelayMs,
		CoolingOffMinutes: o.CoolingOffMinutes,
		GlassFloorTx:      o.TransactionID,
		Proof:             o.Proof,
		Message:           o.Message,
	}
}

// HistoryStore is the local, durable audit trail of decisions. It is
// independent of the transparency ledger.
type HistoryStore interface {
	// Append persists e after every previously appended entry.
	Append(e Entry) error
	// LoadAll returns all entries in append order; empty when none exist.
	LoadAll() ([]Entry, error)
	Close() error
}

// NewHistoryStore opens the backend selected by cfg.
func NewHistoryStore(cfg config.HistoryConfig) (HistoryStore, error) {
	switch cfg.Backend {
	case "json":
		return NewJSONHistory(cfg.Path)
	case "sqlite":
		return NewSQLiteHistory(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
