package repository

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grid-trading-bybit/internal/model"
)

var tradeHeader = []string{"timestamp", "symbol", "side", "price", "qty", "order_id", "status", "pnl", "fee", "note"}

// TradeWriter appends trade records to a daily CSV file
// (trades_YYYY-MM-DD.csv). The header is written when the file is created.
type TradeWriter struct {
	dir string
	log *slog.Logger
	mu  sync.Mutex
}

func NewTradeWriter(dir string, log *slog.Logger) *TradeWriter {
	_ = os.MkdirAll(dir, 0755)
	return &TradeWriter{dir: dir, log: log}
}

func (w *TradeWriter) RecordTrade(rec model.TradeRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, fmt.Sprintf("trades_%s.csv", rec.Timestamp.Format("2006-01-02")))
	row := []string{
		rec.Timestamp.Format(time.RFC3339),
		rec.Symbol,
		string(rec.Side),
		fmt.Sprintf("%.2f", rec.Price),
		fmt.Sprintf("%.6f", rec.Qty),
		rec.OrderID,
		string(rec.Status),
		fmt.Sprintf("%.4f", rec.PnL),
		fmt.Sprintf("%.4f", rec.Fee),
		rec.Note,
	}

	if err := appendCSV(path, tradeHeader, row); err != nil {
		w.log.Error("Failed to write trade record", "path", path, "error", err)
	}
}

var performanceHeader = []string{"timestamp", "balance", "realized_pnl", "unrealized_pnl", "total_trades", "win_rate", "daily_return_pct", "total_return_pct"}

// PerformanceWriter appends periodic account snapshots to performance.csv.
type PerformanceWriter struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

func NewPerformanceWriter(dir string, log *slog.Logger) *PerformanceWriter {
	_ = os.MkdirAll(dir, 0755)
	return &PerformanceWriter{path: filepath.Join(dir, "performance.csv"), log: log}
}

func (w *PerformanceWriter) RecordPerformance(p model.Performance) {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{
		p.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("%.2f", p.Balance),
		fmt.Sprintf("%.4f", p.RealizedPnL),
		fmt.Sprintf("%.4f", p.UnrealizedPnL),
		fmt.Sprintf("%d", p.TotalTrades),
		fmt.Sprintf("%.4f", p.WinRate),
		fmt.Sprintf("%.4f", p.DailyReturn),
		fmt.Sprintf("%.4f", p.TotalReturn),
	}

	if err := appendCSV(w.path, performanceHeader, row); err != nil {
		w.log.Error("Failed to write performance snapshot", "path", w.path, "error", err)
	}
}

// appendCSV opens (or creates) the file and appends one row, writing the
// header first on a fresh file.
func appendCSV(path string, header, row []string) error {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open csv %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if isNew {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}
