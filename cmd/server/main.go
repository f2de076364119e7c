// Package main provides the entry point for the G13 trading
// orchestration engine: three Fibonacci strategy agents sharing one
// broker-terminal gateway, a global risk guard, a position manager, and
// a background strategist, driven by a single scheduler loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/g13trader/internal/agent"
	"github.com/atlas-desktop/g13trader/internal/broker"
	"github.com/atlas-desktop/g13trader/internal/config"
	"github.com/atlas-desktop/g13trader/internal/decider"
	"github.com/atlas-desktop/g13trader/internal/ledger"
	"github.com/atlas-desktop/g13trader/internal/opsapi"
	"github.com/atlas-desktop/g13trader/internal/position"
	"github.com/atlas-desktop/g13trader/internal/riskguard"
	"github.com/atlas-desktop/g13trader/internal/session"
	"github.com/atlas-desktop/g13trader/internal/strategist"
	"github.com/atlas-desktop/g13trader/internal/tradingloop"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fiboDefaults seeds the three Fibonacci agents' starting configuration
// when config/agents.json has never been written (spec.md §3, §9's
// "three identical agents differing only by config" design note).
var fiboDefaults = map[string]agent.Config{
	"fibo1": {
		Enabled: true, Symbol: "BTCUSD", Timeframe: "M15", FiboLevel: "0.236",
		FiboTolerancePct: 1.0, CooldownSeconds: 300, PositionSizePct: 0.01, MaxPositions: 2,
		TPSL: agent.TPSLConfig{TPPct: 0.5, SLPct: 0.3, TrailingEnabled: true, TrailingStartPct: 0.3, TrailingDistancePct: 0.15, BreakEvenEnabled: true, BreakEvenPct: 0.2},
	},
	"fibo2": {
		Enabled: true, Symbol: "BTCUSD", Timeframe: "M15", FiboLevel: "0.382",
		FiboTolerancePct: 1.0, CooldownSeconds: 300, PositionSizePct: 0.01, MaxPositions: 2,
		TPSL: agent.TPSLConfig{TPPct: 0.5, SLPct: 0.3, TrailingEnabled: true, TrailingStartPct: 0.3, TrailingDistancePct: 0.15, BreakEvenEnabled: true, BreakEvenPct: 0.2},
	},
	"fibo3": {
		Enabled: true, Symbol: "BTCUSD", Timeframe: "M15", FiboLevel: "0.618",
		FiboTolerancePct: 1.0, CooldownSeconds: 300, PositionSizePct: 0.01, MaxPositions: 2,
		TPSL: agent.TPSLConfig{TPPct: 0.5, SLPct: 0.3, TrailingEnabled: true, TrailingStartPct: 0.3, TrailingDistancePct: 0.15, BreakEvenEnabled: true, BreakEvenPct: 0.2},
	},
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting g13 trading orchestrator",
		zap.String("ledgerDir", cfg.LedgerDir),
		zap.String("opsAddr", cfg.OpsListenAddr),
		zap.Int("agents", len(cfg.Agents)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := ledger.NewStore(logger, cfg.LedgerDir)
	if err != nil {
		logger.Fatal("failed to initialize ledger store", zap.Error(err))
	}

	fake := broker.NewFake(broker.AccountInfo{
		Login: cfg.Agents[0].Credentials.Login,
		Balance: decimal.NewFromFloat(cfg.InitialBalance), Equity: decimal.NewFromFloat(cfg.InitialBalance),
	})
	seedFakeMarket(fake, cfg)

	gate := broker.NewGate(logger, fake)
	guard := riskguard.NewGuard(logger)
	posManager := position.NewManager(logger)

	metrics := opsapi.NewMetrics()

	var decisionEngine decider.Decider = decider.NewHTTPDecider(
		os.Getenv("G13_DECIDER_URL"), os.Getenv("G13_DECIDER_API_KEY"), os.Getenv("G13_DECIDER_MODEL"),
	)
	client := decider.NewClient(decisionEngine)

	var agentIDs []string
	var runtimes []*tradingloop.Runtime
	for _, entry := range cfg.Agents {
		agentIDs = append(agentIDs, entry.ID)

		agentCfg := fiboDefaults[entry.ID]
		store.LoadAgentConfig(entry.ID, &agentCfg)
		if err := store.SaveAgentConfig(entry.ID, agentCfg); err != nil {
			logger.Warn("failed to persist initial agent config", zap.String("agent", entry.ID), zap.Error(err))
		}

		strategyAgent := agent.New(logger, entry.ID, agentCfg, client, store)

		runtimes = append(runtimes, &tradingloop.Runtime{
			ID:     entry.ID,
			Agent:  strategyAgent,
			Config: agentCfg,
			Credentials: broker.Credentials{
				Path: entry.Credentials.Path, Login: entry.Credentials.Login,
				Password: entry.Credentials.Password, Server: entry.Credentials.Server,
				Timeout: 60 * time.Second,
			},
			ExpectedLogin:    entry.Credentials.Login,
			RiskConfig: riskguard.Config{
				MaxDrawdownPct: cfg.RiskGuard.MaxDrawdownPct, MaxDailyLossPct: cfg.RiskGuard.MaxDailyLossPct,
				EmergencyClosePct: cfg.RiskGuard.EmergencyClosePct, WinnerNeverLoser: cfg.RiskGuard.WinnerNeverLoser,
			},
			WinnerNeverLoser: cfg.RiskGuard.WinnerNeverLoser,
		})
	}

	strategistRunner := strategist.NewRunner(logger, store, posManager, nil)
	strategistRunner.SetMetrics(metrics)

	loop := tradingloop.New(logger, store, gate, guard, posManager, strategistRunner, runtimes)
	loop.SetMetrics(metrics)
	loop.SetCadences(cfg.TickPeriod, cfg.StatsCadence, cfg.StrategistCadence)

	lifecycle := session.NewLifecycle(logger, store, agentIDs)
	lifecycle.Start(decimal.NewFromFloat(cfg.InitialBalance))

	opsServer := opsapi.NewServer(logger, cfg.OpsListenAddr, metrics)

	go loop.Start(ctx)

	go func() {
		if err := opsServer.Start(); err != nil {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("g13 trading orchestrator started")
	<-sigChan
	logger.Info("shutdown signal received")

	loop.Stop()
	cancel()

	lifecycle.End()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := opsServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during ops server shutdown", zap.Error(err))
	}

	logger.Info("g13 trading orchestrator stopped")
}

// seedFakeMarket primes the built-in fake broker with tradable symbols so
// a fresh checkout runs end to end without a real MT5-style terminal,
// which is an explicit external collaborator (spec.md §1).
func seedFakeMarket(fake *broker.Fake, cfg config.Config) {
	symbols := map[string]bool{}
	for _, rt := range fiboDefaults {
		symbols[rt.Symbol] = true
	}
	for symbol := range symbols {
		fake.SetSymbol(symbol, broker.SymbolInfo{
			Symbol: symbol, VolumeMin: decimal.NewFromFloat(0.01), VolumeMax: decimal.NewFromFloat(50),
			VolumeStep: decimal.NewFromFloat(0.01), Point: decimal.NewFromFloat(0.01),
		})
		fake.SetTick(symbol, broker.Tick{
			Bid: decimal.NewFromFloat(60000), Ask: decimal.NewFromFloat(60005), Time: time.Now(),
		})
		var rates []broker.Rate
		price := decimal.NewFromFloat(60000)
		for i := 0; i < 120; i++ {
			rates = append(rates, broker.Rate{
				Time: time.Now().Add(time.Duration(i-120) * 15 * time.Minute),
				Open: price, High: price.Add(decimal.NewFromInt(50)), Low: price.Sub(decimal.NewFromInt(50)), Close: price,
			})
		}
		fake.SetRates(symbol, rates)
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
