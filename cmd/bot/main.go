package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid-trading-bybit/internal/api"
	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/core"
	"grid-trading-bybit/internal/logger"
	"grid-trading-bybit/internal/market"
	"grid-trading-bybit/internal/metrics"
	"grid-trading-bybit/internal/repository"
	"grid-trading-bybit/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, cfg.LogDir)
	logg.Info("Starting Bybit Grid Trading Bot...",
		"symbol", cfg.Symbol,
		"testnet", cfg.Testnet,
		"leverage", cfg.Leverage,
		"grid_levels", cfg.GridLevels,
		"check_interval", cfg.CheckInterval,
		"daily_loss_limit", cfg.DailyLossLimit,
		"max_drawdown", cfg.MaxDrawdown,
	)

	var m *metrics.Metrics
	if cfg.MetricsListenAddr != "" {
		m = metrics.New()
		metrics.Serve(cfg.MetricsListenAddr, logg)
	}

	client := api.NewBybitClient(cfg.APIKey, cfg.APISecret, cfg.Testnet, logg)
	analyzer := market.NewAnalyzer(cfg, client, logg)
	grid := core.NewGridEngine(cfg, logg)
	risk := core.NewRiskGovernor(cfg, logg)
	ledger := core.NewOrderLedger(cfg, client, grid, risk, m, logg)

	tradeWriter := repository.NewTradeWriter(cfg.LogDir, logg)
	ledger.AddSink(tradeWriter)

	telegram := service.NewTelegramService(cfg, logg)
	ledger.AddSink(telegram)

	perfWriter := repository.NewPerformanceWriter(cfg.LogDir, logg)
	storage := repository.NewStorage()

	bot := core.NewBot(cfg, client, analyzer, grid, ledger, risk, m, telegram, perfWriter, storage, logg)

	// Supplemental price feed for dashboards; trading decisions stay on REST.
	stream := service.NewTickerStream(cfg, m.SetLastPrice, logg)
	go func() {
		for {
			if err := stream.Start(); err != nil {
				logg.Error("❌ Failed to start ticker stream, retrying in 10s...", "error", err)
				time.Sleep(10 * time.Second)
				continue
			}
			// Start blocks in the read loop; returning means disconnect.
			select {
			case <-stream.StopCh:
				return
			default:
			}
			logg.Warn("⚠️ Ticker stream disconnected, reconnecting in 5s...")
			time.Sleep(5 * time.Second)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Initialize(); err != nil {
		logg.Error("Startup failed", "error", err)
		os.Exit(1)
	}

	bot.Run(ctx)
	stop()
	stream.Stop()
	logg.Info("Bot exited")
}
