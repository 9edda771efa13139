package core

import (
	"log/slog"
	"time"

	"grid-trading-bybit/internal/config"
)

// RiskGovernor tracks balances against the configured loss limits. Once any
// stopping limit trips the governor latches: trading stays halted for the
// life of the process even if balance later recovers.
type RiskGovernor struct {
	cfg *config.Config
	log *slog.Logger

	startBalance      float64
	dailyStartBalance float64
	peakBalance       float64
	dayStart          time.Time

	totalTrades   int
	winningTrades int
	cumulativePnL float64

	stopped    bool
	stopReason string

	now func() time.Time
}

// RiskMetrics is the aggregate snapshot used for performance logging and
// state persistence.
type RiskMetrics struct {
	StartBalance      float64 `json:"start_balance"`
	CurrentBalance    float64 `json:"current_balance"`
	PeakBalance       float64 `json:"peak_balance"`
	DailyStartBalance float64 `json:"daily_start_balance"`
	TotalReturnPct    float64 `json:"total_return_pct"`
	DailyReturnPct    float64 `json:"daily_return_pct"`
	DrawdownPct       float64 `json:"drawdown_pct"`
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	WinRate           float64 `json:"win_rate"`
	CumulativePnL     float64 `json:"cumulative_pnl"`
	Stopped           bool    `json:"stopped"`
	StopReason        string  `json:"stop_reason,omitempty"`
}

func NewRiskGovernor(cfg *config.Config, log *slog.Logger) *RiskGovernor {
	return &RiskGovernor{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Initialize seeds all balance anchors from the first observed balance.
func (r *RiskGovernor) Initialize(balance float64) {
	r.startBalance = balance
	r.dailyStartBalance = balance
	r.peakBalance = balance
	r.dayStart = r.now()

	r.log.Info("🛡️ Risk limits armed",
		"start_balance", balance,
		"daily_loss_limit", r.cfg.DailyLossLimit,
		"max_drawdown", r.cfg.MaxDrawdown,
		"daily_profit_target", r.cfg.DailyProfitTarget,
	)
}

// rollover resets the daily anchor when the calendar day changes.
func (r *RiskGovernor) rollover(balance float64) {
	now := r.now()
	y1, m1, d1 := r.dayStart.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}

	r.log.Info("📅 Daily anchor reset", "previous_anchor", r.dailyStartBalance, "new_anchor", balance)
	r.dailyStartBalance = balance
	r.dayStart = now
}

// CheckDailyLoss reports whether today's loss meets or exceeds the limit.
func (r *RiskGovernor) CheckDailyLoss(balance float64) (bool, float64) {
	r.rollover(balance)
	if r.dailyStartBalance <= 0 {
		return false, 0
	}
	lossPct := (r.dailyStartBalance - balance) / r.dailyStartBalance
	return lossPct >= r.cfg.DailyLossLimit, lossPct
}

// CheckDrawdown reports whether the drop from peak balance meets or exceeds
// the limit. The peak only ever rises.
func (r *RiskGovernor) CheckDrawdown(balance float64) (bool, float64) {
	if balance > r.peakBalance {
		r.peakBalance = balance
	}
	if r.peakBalance <= 0 {
		return false, 0
	}
	ddPct := (r.peakBalance - balance) / r.peakBalance
	return ddPct >= r.cfg.MaxDrawdown, ddPct
}

// CheckDailyProfitTarget reports whether today's gain has reached the target.
// Hitting the target is not a stop; the controller only suppresses new grid
// rebuilds for the rest of the day.
func (r *RiskGovernor) CheckDailyProfitTarget(balance float64) bool {
	r.rollover(balance)
	if r.dailyStartBalance <= 0 {
		return false
	}
	gainPct := (balance - r.dailyStartBalance) / r.dailyStartBalance
	return gainPct >= r.cfg.DailyProfitTarget
}

// CheckPositionRatio reports whether the open position consumes more of the
// balance than allowed. Breach skips new placements, it never stops trading.
func (r *RiskGovernor) CheckPositionRatio(positionValue, balance float64) bool {
	if balance <= 0 {
		return true
	}
	return positionValue/balance >= r.cfg.MaxPositionRatio
}

// ShouldStop evaluates every stopping condition and latches on the first
// breach. Subsequent calls return the original reason regardless of balance.
func (r *RiskGovernor) ShouldStop(balance float64) (bool, string) {
	if r.stopped {
		return true, r.stopReason
	}

	if breach, lossPct := r.CheckDailyLoss(balance); breach {
		r.latch("daily loss limit reached", "loss_pct", lossPct)
		return true, r.stopReason
	}

	if breach, ddPct := r.CheckDrawdown(balance); breach {
		r.latch("max drawdown reached", "drawdown_pct", ddPct)
		return true, r.stopReason
	}

	if r.startBalance > 0 && balance < r.startBalance*0.5 {
		r.latch("balance below 50% of starting balance", "balance", balance, "start_balance", r.startBalance)
		return true, r.stopReason
	}

	return false, ""
}

func (r *RiskGovernor) latch(reason string, args ...any) {
	r.stopped = true
	r.stopReason = reason
	r.log.Error("🚨 RISK ALERT: trading halted", append([]any{"reason", reason}, args...)...)
}

func (r *RiskGovernor) Stopped() bool { return r.stopped }

// RecordTrade registers one completed round trip.
func (r *RiskGovernor) RecordTrade(pnl float64, isWin bool) {
	r.totalTrades++
	if isWin {
		r.winningTrades++
	}
	r.cumulativePnL += pnl
}

func (r *RiskGovernor) WinRate() float64 {
	if r.totalTrades == 0 {
		return 0
	}
	return float64(r.winningTrades) / float64(r.totalTrades)
}

func (r *RiskGovernor) DailyReturn(balance float64) float64 {
	if r.dailyStartBalance <= 0 {
		return 0
	}
	return (balance - r.dailyStartBalance) / r.dailyStartBalance
}

func (r *RiskGovernor) TotalReturn(balance float64) float64 {
	if r.startBalance <= 0 {
		return 0
	}
	return (balance - r.startBalance) / r.startBalance
}

func (r *RiskGovernor) CumulativePnL() float64 { return r.cumulativePnL }

func (r *RiskGovernor) Metrics(balance float64) RiskMetrics {
	drawdown := 0.0
	if r.peakBalance > 0 {
		drawdown = (r.peakBalance - balance) / r.peakBalance
	}
	return RiskMetrics{
		StartBalance:      r.startBalance,
		CurrentBalance:    balance,
		PeakBalance:       r.peakBalance,
		DailyStartBalance: r.dailyStartBalance,
		TotalReturnPct:    r.TotalReturn(balance) * 100,
		DailyReturnPct:    r.DailyReturn(balance) * 100,
		DrawdownPct:       drawdown * 100,
		TotalTrades:       r.totalTrades,
		WinningTrades:     r.winningTrades,
		WinRate:           r.WinRate(),
		CumulativePnL:     r.cumulativePnL,
		Stopped:           r.stopped,
		StopReason:        r.stopReason,
	}
}
