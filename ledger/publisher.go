package ledger

import (
	"context"
	"errors"
	"time"

	"time_horizon/config"
	"time_horizon/logs"
	"time_horizon/market"
)

// Publication results reported to the observer.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

var errNoLedger = errors.New("no ledger configured")

// PublishObserver receives publication telemetry. metrics.Recorder implements it.
type PublishObserver interface {
	ObservePublish(result string)
}

// Request carries one decision to the publisher.
type Request struct {
	CycleID  string
	Level    market.InterventionLevel
	Stress   float64
	Snapshot market.Snapshot
	Time     time.Time
}

// Publication is what the publisher produced. Proof is set whenever the gate
// passed; TxID only when the ledger accepted the event.
type Publication struct {
	Proof string
	TxID  string
	Err   error
}

// Publisher is the transparency layer ("Glass Floor"): it commits decision
// inputs to an append-only ledger.
type Publisher struct {
	ledger   Ledger
	cfg      config.GlassFloorConfig
	observer PublishObserver
}

// NewPublisher creates a publisher. ledger may be nil, in which case every
// gated publication degrades to proof-only.
func NewPublisher(l Ledger, cfg config.GlassFloorConfig) *Publisher {
	return &Publisher{ledger: l, cfg: cfg}
}

// SetObserver attaches telemetry.
func (p *Publisher) SetObserver(o PublishObserver) {
	p.observer = o
}

// ShouldPublish is the gate: enabled and stress at or above the minimum.
func (p *Publisher) ShouldPublish(stress float64) bool {
	return p.cfg.Enabled && stress >= p.cfg.MinStressForPublish
}

// MaybePublish computes the proof and publishes the event when the gate passes.
// The ledger call is bounded by the configured publish timeout. Failures never
// propagate: the proof is kept and the tx id is left empty.
func (p *Publisher) MaybePublish(ctx context.Context, req Request) Publication {
	if !p.ShouldPublish(req.Stress) {
		p.observe(ResultSkipped)
		return Publication{}
	}

	proof, err := Proof(NewProofInputs(req.Stress, req.Snapshot))
	if err != nil {
		logs.Errorf("[GlassFloor] Failed to compute proof for cycle %s: %v", req.CycleID, err)
		p.observe(ResultFailed)
		return Publication{Err: err}
	}
	pub := Publication{Proof: proof}

	if p.ledger == nil {
		pub.Err = errNoLedger
		logs.Warnf("[GlassFloor] Event for cycle %s not published: %v", req.CycleID, pub.Err)
		p.observe(ResultFailed)
		return pub
	}

	ev := Event{
		CycleID:        req.CycleID,
		Timestamp:      req.Time.UTC().Format(time.RFC3339Nano),
		StressLevel:    req.Stress,
		Intervention:   req.Level.String(),
		Proof:          proof,
		MarketSnapshot: req.Snapshot.Finite(),
		NodeSignature:  p.cfg.NodeSignature,
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()
	txID, err := p.publish(publishCtx, ev)
	if err != nil {
		pub.Err = err
		logs.Warnf("[GlassFloor] Publish failed for cycle %s: %v", req.CycleID, err)
		p.observe(ResultFailed)
		return pub
	}

	pub.TxID = txID
	logs.Infof("[GlassFloor] Event published: %s", txID)
	p.observe(ResultPublished)
	return pub
}

// publish runs the ledger call and gives up when ctx expires, even if the
// ledger implementation itself ignores the context.
func (p *Publisher) publish(ctx context.Context, ev Event) (string, error) {
	type result struct {
		txID string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		txID, err := p.ledger.Publish(ctx, ev)
		done <- result{txID, err}
	}()
	select {
	case r := <-done:
		return r.txID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Publisher) observe(result string) {
	if p.observer != nil {
		p.observer.ObservePublish(result)
	}
}
