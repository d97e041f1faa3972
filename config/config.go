// config/config.go
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// WeightConfig holds the stress factor weights. Weights are paired with factors
// by position (see Ordered), so the field order here is load-bearing.
type WeightConfig struct {
	Volatility         float64 `yaml:"volatility"`
	Geopolitical       float64 `yaml:"geopolitical"`
	Sentiment          float64 `yaml:"sentiment"`
	Velocity           float64 `yaml:"velocity"`
	OrderbookImbalance float64 `yaml:"orderbook_imbalance"`
}

// Ordered returns the weights in the fixed factor order
// {volatility, geopolitical, sentiment, velocity, orderbook_imbalance}.
func (w WeightConfig) Ordered() [5]float64 {
	return [5]float64{w.Volatility, w.Geopolitical, w.Sentiment, w.Velocity, w.OrderbookImbalance}
}

// Sum is informational only; weights are never renormalized.
func (w WeightConfig) Sum() float64 {
	var s float64
	for _, v := range w.Ordered() {
		s += v
	}
	return s
}

// ThresholdConfig holds the stress thresholds for each intervention level.
// Level1 is informational; classification starts at Level1B.
type ThresholdConfig struct {
	Level1  float64 `yaml:"level_1"`
	Level1B float64 `yaml:"level_1b"`
	Level2  float64 `yaml:"level_2"`
	Level3  float64 `yaml:"level_3"`
	Level4  float64 `yaml:"level_4"`
}

// ThrottleDelayConfig holds per-level latency penalties in milliseconds.
type ThrottleDelayConfig struct {
	Level1BMin int `yaml:"level_1b_min"`
	Level1BMax int `yaml:"level_1b_max"`
	Level2     int `yaml:"level_2"`
	Level3     int `yaml:"level_3"`
	Level4     int `yaml:"level_4"`
}

// CoolingOffConfig holds cooling-off periods in minutes.
type CoolingOffConfig struct {
	Standard int `yaml:"standard"`
	Extended int `yaml:"extended"`
}

// GlassFloorConfig controls the transparency publisher.
type GlassFloorConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MinStressForPublish float64       `yaml:"min_stress_for_publish"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
	NodeSignature       string        `yaml:"node_signature"`
}

// IndicatorConfig controls the live indicator fetch.
type IndicatorConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	Deadline          time.Duration `yaml:"deadline"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	UseSimulation     bool          `yaml:"use_simulation"`
	SentimentURL      string        `yaml:"sentiment_url"`
	GeopoliticalURL   string        `yaml:"geopolitical_url"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	SentimentKeywords []string      `yaml:"sentiment_keywords"`
	TimeWindow        string        `yaml:"time_window"`
	MinVirality       int           `yaml:"min_virality"`
}

// KafkaConfig holds the Kafka ledger settings.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	RequiredAcks int      `yaml:"required_acks"`
	Compression  string   `yaml:"compression"`
}

// LedgerConfig selects the transparency ledger backend.
type LedgerConfig struct {
	Backend  string      `yaml:"backend"` // "file" or "kafka"
	FilePath string      `yaml:"file_path"`
	Kafka    KafkaConfig `yaml:"kafka"`
}

// HistoryConfig selects the durable history backend.
type HistoryConfig struct {
	Backend string `yaml:"backend"` // "json" or "sqlite"
	Path    string `yaml:"path"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-decision configuration.
type NormalConfig struct {
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
	LogDirectory       string        `yaml:"log_directory"`
	StateDirectory     string        `yaml:"state_directory"`
	MetricsAddr        string        `yaml:"metrics_addr"`
}

// Config is the top-level configuration. It is built once and passed by value;
// nothing mutates it after construction.
type Config struct {
	Weights        WeightConfig        `yaml:"weights"`
	Thresholds     ThresholdConfig     `yaml:"thresholds"`
	ThrottleDelays ThrottleDelayConfig `yaml:"throttle_delays"`
	CoolingOff     CoolingOffConfig    `yaml:"cooling_off_periods"`
	GlassFloor     GlassFloorConfig    `yaml:"glass_floor"`
	Indicators     IndicatorConfig     `yaml:"indicators"`
	Ledger         LedgerConfig        `yaml:"ledger"`
	History        HistoryConfig       `yaml:"history"`
	Logs           LogConfig           `yaml:"logs"`
	Normal         NormalConfig        `yaml:"normal_config"`
}

// Default returns the stock parameters of the protocol.
func Default() Config {
	return Config{
		Weights: WeightConfig{
			Volatility:         0.30,
			Geopolitical:       0.25,
			Sentiment:          0.20,
			Velocity:           0.15,
			OrderbookImbalance: 0.10,
		},
		Thresholds: ThresholdConfig{
			Level1:  0.25,
			Level1B: 0.40,
			Level2:  0.55,
			Level3:  0.75,
			Level4:  0.90,
		},
		ThrottleDelays: ThrottleDelayConfig{
			Level1BMin: 5,
			Level1BMax: 20,
			Level2:     50,
			Level3:     100,
			Level4:     500,
		},
		CoolingOff: CoolingOffConfig{
			Standard: 5,
			Extended: 15,
		},
		GlassFloor: GlassFloorConfig{
			Enabled:             true,
			MinStressForPublish: 0.4,
			PublishTimeout:      2 * time.Second,
			NodeSignature:       "signed_by_regulator_node_v1",
		},
		Indicators: IndicatorConfig{
			MaxAttempts:    3,
			Deadline:       3 * time.Second,
			RetryDelay:     500 * time.Millisecond,
			UseSimulation:  true,
			RequestTimeout: 2 * time.Second,
			SentimentKeywords: []string{
				"market crash", "black swan", "forced liquidation", "flash crash",
			},
			TimeWindow:  "last_2h",
			MinVirality: 10000,
		},
		Ledger: LedgerConfig{
			Backend:  "file",
			FilePath: "glass_floor_ledger.jsonl",
			Kafka: KafkaConfig{
				Topic:        "glass-floor-events",
				RequiredAcks: -1,
				Compression:  "gzip",
			},
		},
		History: HistoryConfig{
			Backend: "json",
			Path:    "intervention_history.json",
		},
		Logs: LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Normal: NormalConfig{
			EvaluationInterval: 5 * time.Second,
			LogDirectory:       "logs",
			StateDirectory:     "state",
		},
	}
}

// Clone returns a deep copy, so a holder of the copy never shares slices
// with the original.
func (c Config) Clone() Config {
	c.Indicators.SentimentKeywords = append([]string(nil), c.Indicators.SentimentKeywords...)
	c.Ledger.Kafka.Brokers = append([]string(nil), c.Ledger.Kafka.Brokers...)
	return c
}

// LoadConfig loads configuration from path on top of Default and validates it.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found at %s", path)
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	// Brokers may come from the environment only.
	cfg = cfg.ApplyEnv(LoadEnvConfig())

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the logical consistency of the configuration. Weights are
// range-checked but their sum is not enforced.
func (c Config) Validate() error {
	names := [5]string{"volatility", "geopolitical", "sentiment", "velocity", "orderbook_imbalance"}
	for i, w := range c.Weights.Ordered() {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("weights.%s must be within [0,1], got %.4f", names[i], w)
		}
	}

	t := c.Thresholds
	ordered := []struct {
		name  string
		value float64
	}{
		{"level_1b", t.Level1B}, {"level_2", t.Level2}, {"level_3", t.Level3}, {"level_4", t.Level4},
	}
	for i, th := range ordered {
		if math.IsNaN(th.value) || th.value < 0 || th.value > 1 {
			return fmt.Errorf("thresholds.%s must be within [0,1], got %.4f", th.name, th.value)
		}
		if i > 0 && th.value < ordered[i-1].value {
			return fmt.Errorf("thresholds must be non-decreasing: %s (%.4f) is below %s (%.4f)",
				th.name, th.value, ordered[i-1].name, ordered[i-1].value)
		}
	}

	d := c.ThrottleDelays
	if d.Level1BMin < 0 || d.Level1BMax < 0 || d.Level2 < 0 || d.Level3 < 0 || d.Level4 < 0 {
		return fmt.Errorf("throttle_delays cannot be negative")
	}
	if d.Level1BMin > d.Level1BMax {
		return fmt.Errorf("throttle_delays.level_1b_min (%d) must not exceed level_1b_max (%d)", d.Level1BMin, d.Level1BMax)
	}
	if c.CoolingOff.Standard < 0 || c.CoolingOff.Extended < 0 {
		return fmt.Errorf("cooling_off_periods cannot be negative")
	}

	if m := c.GlassFloor.MinStressForPublish; math.IsNaN(m) || m < 0 || m > 1 {
		return fmt.Errorf("glass_floor.min_stress_for_publish must be within [0,1]")
	}
	if c.GlassFloor.PublishTimeout <= 0 {
		return fmt.Errorf("glass_floor.publish_timeout must be positive")
	}

	if c.Indicators.MaxAttempts < 1 {
		return fmt.Errorf("indicators.max_attempts must be at least 1")
	}
	if c.Indicators.Deadline <= 0 {
		return fmt.Errorf("indicators.deadline must be positive")
	}
	if c.Indicators.RetryDelay < 0 {
		return fmt.Errorf("indicators.retry_delay cannot be negative")
	}
	if !c.Indicators.UseSimulation && (c.Indicators.SentimentURL == "" || c.Indicators.GeopoliticalURL == "") {
		return fmt.Errorf("indicators.sentiment_url and indicators.geopolitical_url are required when use_simulation is false")
	}

	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.FilePath == "" {
			return fmt.Errorf("ledger.file_path is required for the file backend")
		}
	case "kafka":
		if len(c.Ledger.Kafka.Brokers) == 0 || c.Ledger.Kafka.Topic == "" {
			return fmt.Errorf("ledger.kafka.brokers and ledger.kafka.topic are required for the kafka backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be 'file' or 'kafka', got %q", c.Ledger.Backend)
	}

	switch c.History.Backend {
	case "json", "sqlite":
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required")
		}
	default:
		return fmt.Errorf("history.backend must be 'json' or 'sqlite', got %q", c.History.Backend)
	}

	return nil
}

// EnvConfig holds secrets and deployment overrides read from the environment.
type EnvConfig struct {
	SentimentAPIKey    string
	GeopoliticalAPIKey string
	KafkaBrokers       []string
}

func LoadEnvConfig() *EnvConfig {
	env := &EnvConfig{
		SentimentAPIKey:    os.Getenv("SENTIMENT_API_KEY"),
		GeopoliticalAPIKey: os.Getenv("GEOPOLITICAL_API_KEY"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				env.KafkaBrokers = append(env.KafkaBrokers, b)
			}
		}
	}
	return env
}

// ApplyEnv overlays environment overrides and returns the resulting copy.
func (c Config) ApplyEnv(env *EnvConfig) Config {
	if env != nil && len(env.KafkaBrokers) > 0 {
		c.Ledger.Kafka.Brokers = append([]string(nil), env.KafkaBrokers...)
	}
	return c
}
