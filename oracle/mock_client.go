package oracle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

//
// Simulated oracles for running the controller without live providers.
//

var (
	_ Oracle = (*SentimentSimulator)(nil)
	_ Oracle = (*GeopoliticalSimulator)(nil)
)

// panicKeywords maps monitored phrases to their base fragility contribution.
var panicKeywords = map[string]float64{
	"market crash":       0.4,
	"black swan":         0.3,
	"forced liquidation": 0.25,
	"vixplosion":         0.2,
	"flash crash":        0.35,
	"circuit breaker":    0.15,
}

// geopoliticalFactor is one simulated driver with its uniform range and weight.
type geopoliticalFactor struct {
	name   string
	low    float64
	high   float64
	weight float64
}

var geopoliticalFactors = []geopoliticalFactor{
	{"taiwan_strait_tensions", 0.3, 0.9, 0.3},
	{"naval_mobilization", 0.1, 0.7, 0.25},
	{"state_media_tone", 0.2, 0.8, 0.2},
	{"diplomatic_leaks", 0.1, 0.6, 0.15},
	{"economic_sanctions", 0.2, 0.5, 0.1},
}

// simulator holds what both simulated oracles share: a random source and a
// latency that respects the caller's deadline.
type simulator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	latency time.Duration
}

func newSimulator(seed int64, latency time.Duration) *simulator {
	return &simulator{rnd: rand.New(rand.NewSource(seed)), latency: latency}
}

func (s *simulator) uniform(low, high float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return low + (high-low)*s.rnd.Float64()
}

func (s *simulator) wait(ctx context.Context, name string) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: %w", name, ErrTimeout)
		}
		return fmt.Errorf("%s: %w: %v", name, ErrUnavailable, ctx.Err())
	}
}

// SentimentSimulator scores social-media fragility from panic keyword activity.
type SentimentSimulator struct {
	*simulator
	keywords []string
}

// NewSentimentSimulator creates a simulator monitoring keywords.
func NewSentimentSimulator(keywords []string, seed int64, latency time.Duration) *SentimentSimulator {
	return &SentimentSimulator{
		simulator: newSimulator(seed, latency),
		keywords:  append([]string(nil), keywords...),
	}
}

func (o *SentimentSimulator) Name() string { return "sentiment" }

// Fetch returns 0.3 plus each known keyword's weight jittered by ±20%, capped at 1.
func (o *SentimentSimulator) Fetch(ctx context.Context) (float64, error) {
	if err := o.wait(ctx, o.Name()); err != nil {
		return 0, err
	}
	score := 0.3
	for _, kw := range o.keywords {
		if w, ok := panicKeywords[kw]; ok {
			score += w * o.uniform(0.8, 1.2)
		}
	}
	return math.Min(score, 1.0), nil
}

// GeopoliticalSimulator produces a weighted blend of simulated risk drivers.
type GeopoliticalSimulator struct {
	*simulator
}

// NewGeopoliticalSimulator creates the geopolitical risk simulator.
func NewGeopoliticalSimulator(seed int64, latency time.Duration) *GeopoliticalSimulator {
	return &GeopoliticalSimulator{simulator: newSimulator(seed, latency)}
}

func (o *GeopoliticalSimulator) Name() string { return "geopolitical" }

func (o *GeopoliticalSimulator) Fetch(ctx context.Context) (float64, error) {
	if err := o.wait(ctx, o.Name()); err != nil {
		return 0, err
	}
	var sum float64
	for _, f := range geopoliticalFactors {
		sum += o.uniform(f.low, f.high) * f.weight
	}
	return math.Min(sum, 1.0), nil
}
