package market

import "time"

// Outcome is the immutable result of one evaluation cycle.
type Outcome struct {
	ID                string            `json:"cycle_id"`
	Level             InterventionLevel `json:"intervention_level"`
	StressLevel       float64           `json:"stress_level"`
	ThrottleDelayMs   int               `json:"throttle_delay_ms"`
	CoolingOffMinutes int               `json:"cooling_off_period_min"`
	AffectedAssets    []string          `json:"affected_assets"`
	Message           string            `json:"message"`
	TransactionID     string            `json:"glass_floor_tx_id,omitempty"`
	Proof             string            `json:"proof_of_calculation,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Published reports whether the outcome was committed to the transparency ledger.
func (o Outcome) Published() bool {
	return o.TransactionID != ""
}
