package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"time_horizon/config"
	"time_horizon/logs"
	"time_horizon/monitor"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the config.yaml file")
	backtest := flag.Bool("backtest", false, "Replay the 2010 flash crash timeline and exit")
	seed := flag.Int64("seed", 0, "Seed for the simulated market feed (0 = time based)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: .env file not found, will continue using system environment variables.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Fatal error: Unable to load config file '%s': %v\n", *configPath, err)
		os.Exit(1)
	}
	envCfg := config.LoadEnvConfig()

	logFilename := filepath.Join(cfg.Normal.LogDirectory, "time_horizon.log")
	if err := logs.Init(cfg.Logs, logFilename); err != nil {
		fmt.Printf("Fatal error: Failed to initialize logging system: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()
	logs.Infof("Configuration loaded successfully, logs will be written to: %s", logFilename)

	orchestrator, err := NewOrchestrator(cfg, envCfg, *backtest)
	if err != nil {
		logs.Fatalf("Failed to initialize Orchestrator: %v", err)
	}

	if *backtest {
		if err := orchestrator.Backtest(monitor.FlashCrash2010(time.Date(2010, 5, 6, 14, 30, 0, 0, time.UTC))); err != nil {
			logs.Errorf("Backtest failed: %v", err)
		}
		orchestrator.Stop()
		return
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	orchestrator.Start(monitor.NewSimulatedFeed(*seed))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	orchestrator.Stop()
}
