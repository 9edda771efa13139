package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/market"
	"grid-trading-bybit/internal/metrics"
	"grid-trading-bybit/internal/model"
)

const (
	minStartBalance     = 10.0
	startupSettleDelay  = 2 * time.Second
	errorCooldown       = 5 * time.Minute
	performanceLogEvery = 10
)

var errTradingStopped = errors.New("trading halted by risk limits")

// Notifier pushes operator-facing alerts. The Telegram service satisfies it.
type Notifier interface {
	SendMessage(text string)
	SendRiskAlert(reason string, m RiskMetrics)
}

// PerformanceSink receives periodic account snapshots.
type PerformanceSink interface {
	RecordPerformance(p model.Performance)
}

// StateStore persists the risk state snapshot between restarts.
type StateStore interface {
	Write(path string, v interface{}) error
}

// Bot is the controller: one synchronous loop that polls the exchange,
// enforces risk limits, rebalances the grid and reconciles orders. All
// trading decisions happen here; no other goroutine places or cancels
// orders.
type Bot struct {
	cfg      *config.Config
	log      *slog.Logger
	client   Exchange
	analyzer *market.Analyzer
	grid     *GridEngine
	ledger   *OrderLedger
	risk     *RiskGovernor
	metrics  *metrics.Metrics
	notify   Notifier
	perf     PerformanceSink
	store    StateStore

	orderSize         float64
	iteration         int
	lastPositionCheck time.Time
	settleDelay       time.Duration
}

func NewBot(cfg *config.Config, client Exchange, analyzer *market.Analyzer, grid *GridEngine, ledger *OrderLedger, risk *RiskGovernor, m *metrics.Metrics, notify Notifier, perf PerformanceSink, store StateStore, log *slog.Logger) *Bot {
	return &Bot{
		cfg:         cfg,
		log:         log,
		client:      client,
		analyzer:    analyzer,
		grid:        grid,
		ledger:      ledger,
		risk:        risk,
		metrics:     m,
		notify:      notify,
		perf:        perf,
		store:       store,
		settleDelay: startupSettleDelay,
	}
}

// Initialize runs the startup sequence: leverage, leftover cleanup, balance
// check, risk arming, first grid build and the initial ladder. Any failure
// here aborts before the loop starts.
func (b *Bot) Initialize() error {
	if err := b.client.SetLeverage(b.cfg.Symbol, b.cfg.Leverage); err != nil {
		b.log.Warn("⚠️ Failed to set leverage", "leverage", b.cfg.Leverage, "error", err)
	}

	if err := b.client.CancelAllOrders(b.cfg.Symbol); err != nil {
		b.log.Warn("⚠️ Failed to cancel leftover orders on startup", "error", err)
	}
	time.Sleep(b.settleDelay)

	balance, err := b.client.GetBalance()
	if err != nil {
		return fmt.Errorf("fetch initial balance: %w", err)
	}
	if balance.Available < minStartBalance {
		return fmt.Errorf("available balance %.2f USDT below minimum %.2f", balance.Available, minStartBalance)
	}
	b.metrics.SetBalance(balance.Total)

	b.risk.Initialize(balance.Total)

	summary, err := b.analyzer.MarketSummary()
	if err != nil {
		return fmt.Errorf("initial market summary: %w", err)
	}
	if !summary.IsRange {
		b.log.Warn("⚠️ Market is trending, grid performance may suffer",
			"price", summary.Price, "volatility", summary.Volatility)
	}
	b.log.Info("📊 Market summary",
		"price", summary.Price,
		"atr", summary.ATR,
		"volatility", summary.Volatility,
		"is_range", summary.IsRange,
		"grid_lower", summary.GridLower,
		"grid_upper", summary.GridUpper,
	)
	b.metrics.SetLastPrice(summary.Price)

	b.grid.Rebuild(summary.Price, summary.GridLower, summary.GridUpper)

	b.orderSize = b.grid.OrderSize(balance.Available, summary.Price)
	if b.orderSize <= 0 {
		return fmt.Errorf("computed order size is zero")
	}

	buys, sells := b.ledger.PlaceLadder(b.orderSize)
	if buys+sells == 0 {
		return fmt.Errorf("failed to place any grid orders")
	}

	b.notify.SendMessage(fmt.Sprintf("🤖 Grid bot started on %s\nBalance: %.2f USDT\nBand: %.1f – %.1f\nOrders: %d buy / %d sell",
		b.cfg.Symbol, balance.Total, summary.GridLower, summary.GridUpper, buys, sells))
	return nil
}

// Run drives the polling loop until the context is cancelled or a risk limit
// latches. Cancellation is observed at iteration boundaries only, so an
// in-flight iteration always completes. Both exits cancel resting orders and
// write a final performance report.
func (b *Bot) Run(ctx context.Context) {
	b.log.Info("🚀 Trading loop started", "check_interval", b.cfg.CheckInterval)

	for {
		select {
		case <-ctx.Done():
			b.shutdown("operator shutdown")
			return
		default:
		}

		err := b.tick()
		if errors.Is(err, errTradingStopped) {
			return
		}
		if err != nil {
			b.log.Error("❌ Iteration failed, cooling down", "error", err, "cooldown", errorCooldown)
			if !sleepCtx(ctx, errorCooldown) {
				b.shutdown("operator shutdown")
				return
			}
			continue
		}

		if !sleepCtx(ctx, b.cfg.CheckInterval) {
			b.shutdown("operator shutdown")
			return
		}
	}
}

func (b *Bot) tick() error {
	b.iteration++

	balance, err := b.client.GetBalance()
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	b.metrics.SetBalance(balance.Total)
	b.metrics.SetDrawdown(b.risk.Metrics(balance.Total).DrawdownPct / 100)

	if stop, reason := b.risk.ShouldStop(balance.Total); stop {
		b.emergencyStop(reason, balance.Total)
		return errTradingStopped
	}

	price, err := b.analyzer.CurrentPrice()
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	b.metrics.SetLastPrice(price)

	if b.grid.ShouldRebalance(price, time.Now()) {
		b.rebalance(balance, price)
	}

	if err := b.ledger.Reconcile(); err != nil {
		b.log.Warn("⚠️ Reconcile skipped this iteration", "error", err)
	}

	if time.Since(b.lastPositionCheck) >= b.cfg.PositionCheckInterval {
		b.refreshPosition()
	}

	if b.iteration%performanceLogEvery == 0 {
		b.logPerformance(balance.Total)
	}
	return nil
}

// rebalance rebuilds the ladder around the current price, unless the daily
// profit target already hit (hold what we have for the rest of the day) or
// the open position is too large to add exposure.
func (b *Bot) rebalance(balance *model.Balance, price float64) {
	if b.risk.CheckDailyProfitTarget(balance.Total) {
		b.log.Info("🎯 Daily profit target reached, holding current grid")
		return
	}

	if pos, err := b.client.GetPosition(b.cfg.Symbol); err == nil {
		if b.risk.CheckPositionRatio(pos.Size*price, balance.Total) {
			b.log.Warn("⚠️ Position ratio limit reached, skipping rebalance",
				"position_size", pos.Size, "price", price, "balance", balance.Total)
			return
		}
	}

	summary, err := b.analyzer.MarketSummary()
	if err != nil {
		b.log.Warn("⚠️ Market summary unavailable, keeping current grid", "error", err)
		return
	}

	size := b.grid.OrderSize(balance.Available, summary.Price)
	if size <= 0 {
		b.log.Warn("⚠️ Computed order size is zero, keeping current grid",
			"available", balance.Available, "price", summary.Price)
		return
	}

	b.log.Info("♻️ Price left the grid band, rebalancing",
		"price", price, "new_lower", summary.GridLower, "new_upper", summary.GridUpper)

	b.grid.Rebuild(summary.Price, summary.GridLower, summary.GridUpper)
	b.orderSize = size
	b.ledger.PlaceLadder(b.orderSize)
	b.metrics.IncRebalance()
}

func (b *Bot) refreshPosition() {
	b.lastPositionCheck = time.Now()

	pos, err := b.client.GetPosition(b.cfg.Symbol)
	if err != nil {
		b.log.Warn("⚠️ Position refresh failed", "error", err)
		return
	}
	b.metrics.SetUnrealizedPnL(pos.UnrealizedPnL)
	b.log.Debug("Position refreshed",
		"side", pos.Side, "size", pos.Size, "entry_price", pos.EntryPrice, "unrealized_pnl", pos.UnrealizedPnL)
}

func (b *Bot) logPerformance(balance float64) {
	m := b.risk.Metrics(balance)

	var unrealized float64
	if pos, err := b.client.GetPosition(b.cfg.Symbol); err == nil {
		unrealized = pos.UnrealizedPnL
		b.metrics.SetUnrealizedPnL(unrealized)
	} else {
		b.log.Warn("⚠️ Position unavailable for performance snapshot", "error", err)
	}

	b.log.Info("📈 Performance",
		"balance", balance,
		"unrealized_pnl", unrealized,
		"total_return_pct", m.TotalReturnPct,
		"daily_return_pct", m.DailyReturnPct,
		"drawdown_pct", m.DrawdownPct,
		"total_trades", m.TotalTrades,
		"win_rate", m.WinRate,
		"cumulative_pnl", m.CumulativePnL,
		"active_orders", b.ledger.ActiveCount(),
	)

	b.perf.RecordPerformance(model.Performance{
		Timestamp:     time.Now(),
		Balance:       balance,
		RealizedPnL:   m.CumulativePnL,
		UnrealizedPnL: unrealized,
		TotalTrades:   m.TotalTrades,
		WinRate:       m.WinRate,
		DailyReturn:   m.DailyReturnPct,
		TotalReturn:   m.TotalReturnPct,
	})

	statePath := filepath.Join(b.cfg.LogDir, "risk_state.json")
	if err := b.store.Write(statePath, m); err != nil {
		b.log.Warn("⚠️ Failed to persist risk state", "error", err)
	}
}

func (b *Bot) emergencyStop(reason string, balance float64) {
	b.log.Error("🛑 Emergency stop", "reason", reason)
	b.ledger.CancelAll()
	b.logPerformance(balance)
	b.notify.SendRiskAlert(reason, b.risk.Metrics(balance))
}

func (b *Bot) shutdown(reason string) {
	b.log.Info("🛑 Shutting down", "reason", reason)
	b.ledger.CancelAll()

	if balance, err := b.client.GetBalance(); err == nil {
		b.logPerformance(balance.Total)
	}
	b.notify.SendMessage(fmt.Sprintf("🛑 Grid bot stopped: %s", reason))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
