package oracle

import (
	"context"
	"errors"
	"time"

	"time_horizon/config"
	"time_horizon/logs"
	"time_horizon/utils"
)

var errCancelled = errors.New("indicator fetch cancelled")

// Indicators is the pair of live readings used to enrich a snapshot.
type Indicators struct {
	Sentiment    float64
	Geopolitical float64
	Attempts     int
	Fallback     bool
}

// FetchObserver receives fetch telemetry. metrics.Recorder implements it.
type FetchObserver interface {
	ObserveFetch(attempts int, fallback bool, elapsed time.Duration)
}

// Coordinator queries the sentiment and geopolitical oracles as a pair.
// Timeouts retry the whole pair; any other failure falls back at once.
type Coordinator struct {
	sentiment    Oracle
	geopolitical Oracle
	maxAttempts  int
	deadline     time.Duration
	retryDelay   time.Duration
	observer     FetchObserver
}

// NewCoordinator builds a coordinator from the indicator settings.
func NewCoordinator(sentiment, geopolitical Oracle, cfg config.IndicatorConfig) *Coordinator {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Coordinator{
		sentiment:    sentiment,
		geopolitical: geopolitical,
		maxAttempts:  attempts,
		deadline:     cfg.Deadline,
		retryDelay:   cfg.RetryDelay,
	}
}

// SetObserver attaches telemetry. Call before the first Fetch.
func (c *Coordinator) SetObserver(o FetchObserver) {
	c.observer = o
}

// Fetch returns live indicators, or the conservative pair when they cannot be
// obtained. It never fails.
func (c *Coordinator) Fetch(ctx context.Context) Indicators {
	start := time.Now()
	ind := c.fetch(ctx)
	if c.observer != nil {
		c.observer.ObserveFetch(ind.Attempts, ind.Fallback, time.Since(start))
	}
	return ind
}

func (c *Coordinator) fetch(ctx context.Context) Indicators {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		sentiment, geopolitical, err := c.fetchPair(ctx)
		if err == nil {
			return Indicators{
				Sentiment:    utils.Clamp01(sentiment),
				Geopolitical: utils.Clamp01(geopolitical),
				Attempts:     attempt,
			}
		}

		if !IsTimeout(err) || ctx.Err() != nil {
			logs.Errorf("[Coordinator] Indicator error: %v, using conservative defaults", err)
			return conservative(attempt)
		}

		logs.Warnf("[Coordinator] Indicator timeout (attempt %d/%d): %v", attempt, c.maxAttempts, err)
		if attempt == c.maxAttempts {
			logs.Error("[Coordinator] All indicator attempts failed, using conservative defaults")
			return conservative(attempt)
		}

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logs.Errorf("[Coordinator] Cancelled while waiting to retry, using conservative defaults")
			return conservative(attempt)
		case <-timer.C:
		}
	}
	return conservative(c.maxAttempts)
}

type reading struct {
	value float64
	err   error
}

// fetchPair runs both oracles concurrently under one deadline covering the pair.
// The first non-timeout error abandons the attempt without waiting for the other call.
func (c *Coordinator) fetchPair(ctx context.Context) (float64, float64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	sentimentCh := make(chan reading, 1)
	geopoliticalCh := make(chan reading, 1)
	go func() {
		v, err := c.sentiment.Fetch(attemptCtx)
		sentimentCh <- reading{v, err}
	}()
	go func() {
		v, err := c.geopolitical.Fetch(attemptCtx)
		geopoliticalCh <- reading{v, err}
	}()

	var sentiment, geopolitical float64
	for pending := 2; pending > 0; pending-- {
		var r reading
		var isSentiment bool
		select {
		case r = <-sentimentCh:
			isSentiment = true
		case r = <-geopoliticalCh:
		case <-attemptCtx.Done():
			if ctx.Err() != nil {
				return 0, 0, errCancelled
			}
			return 0, 0, ErrTimeout
		}
		if r.err != nil {
			return 0, 0, r.err
		}
		if isSentiment {
			sentiment = r.value
		} else {
			geopolitical = r.value
		}
	}
	return sentiment, geopolitical, nil
}

func conservative(attempts int) Indicators {
	return Indicators{
		Sentiment:    ConservativeScore,
		Geopolitical: ConservativeScore,
		Attempts:     attempts,
		Fallback:     true,
	}
}
