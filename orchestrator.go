package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"time_horizon/config"
	"time_horizon/controller"
	"time_horizon/ledger"
	"time_horizon/logs"
	"time_horizon/market"
	"time_horizon/metrics"
	"time_horizon/monitor"
	"time_horizon/oracle"
	"time_horizon/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator owns every long-lived component of the breaker node.
type Orchestrator struct {
	cfg        config.Config
	controller *controller.Controller
	ledger     ledger.Ledger
	history    state.HistoryStore
	metricsSrv *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewOrchestrator wires oracles, ledger, history store, metrics and the
// controller from cfg. Relative ledger and history paths live under the
// state directory. In backtest mode snapshots are replayed as recorded (no
// live indicators) and decisions go to separate backtest_ files.
func NewOrchestrator(cfg config.Config, envCfg *config.EnvConfig, backtest bool) (*Orchestrator, error) {
	if envCfg == nil {
		envCfg = &config.EnvConfig{}
	}
	if backtest {
		cfg.Ledger.Backend = "file"
		cfg.Ledger.FilePath = backtestPath(cfg.Ledger.FilePath)
		cfg.History.Path = backtestPath(cfg.History.Path)
		cfg.Normal.MetricsAddr = ""
	}
	cfg = cfg.ApplyEnv(envCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after environment overrides: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	var sentiment, geopolitical oracle.Oracle
	if cfg.Indicators.UseSimulation {
		seed := time.Now().UnixNano()
		sentiment = oracle.NewSentimentSimulator(cfg.Indicators.SentimentKeywords, seed, 0)
		geopolitical = oracle.NewGeopoliticalSimulator(seed+1, 0)
		logs.Warnf("<<<<<<<<<< WARNING: Running with simulated indicator oracles >>>>>>>>>>")
	} else {
		sentiment = oracle.NewSentimentClient(cfg.Indicators.SentimentURL, envCfg.SentimentAPIKey,
			cfg.Indicators.SentimentKeywords, cfg.Indicators.TimeWindow, cfg.Indicators.MinVirality,
			cfg.Indicators.RequestTimeout)
		geopolitical = oracle.NewGeopoliticalClient(cfg.Indicators.GeopoliticalURL, envCfg.GeopoliticalAPIKey,
			cfg.Indicators.RequestTimeout)
	}
	coordinator := oracle.NewCoordinator(sentiment, geopolitical, cfg.Indicators)
	coordinator.SetObserver(recorder)

	o := &Orchestrator{cfg: cfg}

	var publisher *ledger.Publisher
	if cfg.GlassFloor.Enabled {
		l, err := openLedger(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		o.ledger = l
		publisher = ledger.NewPublisher(l, cfg.GlassFloor)
		publisher.SetObserver(recorder)
	} else {
		logs.Warn("[Orchestrator] Glass Floor disabled, decisions will not be published.")
	}

	histCfg := cfg.History
	histCfg.Path = underDir(cfg.Normal.StateDirectory, histCfg.Path)
	history, err := state.NewHistoryStore(histCfg)
	if err != nil {
		o.closeStores()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	o.history = history
	logs.Infof("History store initialized (%s), decisions will be persisted to: %s", histCfg.Backend, histCfg.Path)

	deps := controller.Dependencies{
		Indicators: coordinator,
		Publisher:  publisher,
		History:    history,
	}
	if backtest {
		deps.Indicators = nil
	}
	ctrl, err := controller.New(cfg, deps, controller.WithMetrics(recorder))
	if err != nil {
		o.closeStores()
		return nil, err
	}
	o.controller = ctrl

	if cfg.Normal.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		o.metricsSrv = &http.Server{
			Addr:              cfg.Normal.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

func openLedger(cfg config.Config) (ledger.Ledger, error) {
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "kafka":
		k := cfg.Ledger.Kafka
		logs.Infof("[Orchestrator] Publishing Glass Floor events to Kafka topic %s via %v", k.Topic, k.Brokers)
		return ledger.NewKafkaLedger(k.Brokers, k.Topic, k.RequiredAcks, k.Compression)
	default:
		path := underDir(cfg.Normal.StateDirectory, cfg.Ledger.FilePath)
		logs.Infof("[Orchestrator] Publishing Glass Floor events to %s", path)
		return ledger.NewFileLedger(path)
	}
}

func backtestPath(path string) string {
	if path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(path), "backtest_"+filepath.Base(path))
}

func underDir(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Start launches the metrics endpoint and the live evaluation loop.
func (o *Orchestrator) Start(feed monitor.Feed) {
	if o.metricsSrv != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			logs.Infof("[Orchestrator] Serving metrics on %s/metrics", o.metricsSrv.Addr)
			if err := o.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("[Orchestrator] Metrics server failed: %v", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		cycles, err := monitor.Run(o.ctx, o.controller, feed, monitor.Options{
			Interval:  o.cfg.Normal.EvaluationInterval,
			Heartbeat: time.Minute,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logs.Errorf("[Orchestrator] Monitor stopped after %d cycles: %v", cycles, err)
		}
	}()
	logs.Info("[Orchestrator] Breaker node started.")
}

// Backtest replays snapshots back to back and prints each decision.
func (o *Orchestrator) Backtest(snapshots []market.Snapshot) error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("BACKTEST: Flash Crash May 6, 2010")
	fmt.Println(strings.Repeat("=", 60))

	step := 0
	_, err := monitor.Run(o.ctx, o.controller, monitor.NewReplayFeed(snapshots), monitor.Options{
		OnOutcome: func(r market.Outcome) {
			fmt.Printf("\n--- T+%d minutes ---\n", step*5)
			fmt.Printf("Stress Level: %.1f%%\n", r.StressLevel*100)
			fmt.Printf("Intervention: %s\n", r.Level)
			fmt.Printf("Action: %s\n", r.Message)
			if r.Published() {
				fmt.Printf("Glass Floor TX: %s\n", r.TransactionID)
			}
			step++
		},
	})
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("RESULT: Market would have slowed gradually without full halt")
	fmt.Println(strings.Repeat("=", 60))
	return nil
}

// Stop cancels the loop, waits for it, and releases every store.
func (o *Orchestrator) Stop() {
	logs.Info("[Orchestrator] Shutting down...")
	o.cancel()
	if o.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.metricsSrv.Shutdown(ctx); err != nil {
			logs.Errorf("[Orchestrator] Metrics server shutdown: %v", err)
		}
		cancel()
	}
	o.wg.Wait()
	o.closeStores()
	logs.Info("[Orchestrator] Shutdown complete.")
}

func (o *Orchestrator) closeStores() {
	if o.ledger != nil {
		if err := o.ledger.Close(); err != nil {
			logs.Errorf("[Orchestrator] Failed to close ledger: %v", err)
		}
	}
	if o.history != nil {
		if err := o.history.Close(); err != nil {
			logs.Errorf("[Orchestrator] Failed to close history: %v", err)
		}
	}
}
