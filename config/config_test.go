package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, [5]float64{0.30, 0.25, 0.20, 0.15, 0.10}, cfg.Weights.Ordered())
	assert.InDelta(t, 1.0, cfg.Weights.Sum(), 1e-9)
	assert.Equal(t, 0.40, cfg.Thresholds.Level1B)
	assert.Equal(t, 0.90, cfg.Thresholds.Level4)
	assert.Equal(t, 5, cfg.ThrottleDelays.Level1BMin)
	assert.Equal(t, 20, cfg.ThrottleDelays.Level1BMax)
	assert.Equal(t, 500, cfg.ThrottleDelays.Level4)
	assert.Equal(t, 15, cfg.CoolingOff.Extended)
	assert.Equal(t, 0.4, cfg.GlassFloor.MinStressForPublish)
	assert.Equal(t, 3, cfg.Indicators.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Indicators.Deadline)
	assert.Equal(t, 500*time.Millisecond, cfg.Indicators.RetryDelay)
}

func TestValidateRejectsInconsistentConfig(t *testing.T) {
	cases := map[string]func(c *Config){
		"weight above one":        func(c *Config) { c.Weights.Sentiment = 1.5 },
		"negative weight":         func(c *Config) { c.Weights.Velocity = -0.1 },
		"thresholds decreasing":   func(c *Config) { c.Thresholds.Level3 = 0.5 },
		"threshold out of range":  func(c *Config) { c.Thresholds.Level4 = 1.2 },
		"soft min above max":      func(c *Config) { c.ThrottleDelays.Level1BMin = 30 },
		"negative delay":          func(c *Config) { c.ThrottleDelays.Level2 = -1 },
		"negative cooling off":    func(c *Config) { c.CoolingOff.Standard = -5 },
		"zero publish timeout":    func(c *Config) { c.GlassFloor.PublishTimeout = 0 },
		"no attempts":             func(c *Config) { c.Indicators.MaxAttempts = 0 },
		"zero deadline":           func(c *Config) { c.Indicators.Deadline = 0 },
		"live without urls":       func(c *Config) { c.Indicators.UseSimulation = false },
		"kafka without brokers":   func(c *Config) { c.Ledger.Backend = "kafka" },
		"unknown ledger backend":  func(c *Config) { c.Ledger.Backend = "s3" },
		"unknown history backend": func(c *Config) { c.History.Backend = "redis" },
		"empty history path":      func(c *Config) { c.History.Path = "" },
		"nan weight":              func(c *Config) { c.Weights.Geopolitical = math.NaN() },
		"infinite weight":         func(c *Config) { c.Weights.Volatility = math.Inf(1) },
		"nan threshold":           func(c *Config) { c.Thresholds.Level4 = math.NaN() },
		"nan lowest threshold":    func(c *Config) { c.Thresholds.Level1B = math.NaN() },
		"infinite threshold":      func(c *Config) { c.Thresholds.Level3 = math.Inf(-1) },
		"nan publish minimum":     func(c *Config) { c.GlassFloor.MinStressForPublish = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigRejectsNaNThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  level_4: .nan\n"), 0644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "thresholds.level_4")
}

func TestWeightsNeedNotSumToOne(t *testing.T) {
	cfg := Default()
	cfg.Weights.Volatility = 0.9
	assert.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.6, cfg.Weights.Sum(), 1e-9)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
thresholds:
  level_1b: 0.35
  level_2: 0.5
  level_3: 0.7
  level_4: 0.85
glass_floor:
  publish_timeout: 750ms
history:
  backend: sqlite
  path: history.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.35, cfg.Thresholds.Level1B)
	assert.Equal(t, 0.85, cfg.Thresholds.Level4)
	assert.Equal(t, 750*time.Millisecond, cfg.GlassFloor.PublishTimeout)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Weights, cfg.Weights)
	assert.Equal(t, Default().ThrottleDelays, cfg.ThrottleDelays)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  level_2: 0.1\n"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "non-decreasing")
}

func TestApplyEnvAndClone(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	env := LoadEnvConfig()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, env.KafkaBrokers)

	base := Default()
	cfg := base.ApplyEnv(env)
	cfg.Ledger.Backend = "kafka"
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, base.Ledger.Kafka.Brokers)

	clone := cfg.Clone()
	clone.Ledger.Kafka.Brokers[0] = "changed"
	clone.Indicators.SentimentKeywords[0] = "changed"
	assert.Equal(t, "k1:9092", cfg.Ledger.Kafka.Brokers[0])
	assert.Equal(t, "market crash", cfg.Indicators.SentimentKeywords[0])
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().Thresholds, cfg.Thresholds)
	assert.Equal(t, ":9108", cfg.Normal.MetricsAddr)
}
