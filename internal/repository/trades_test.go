package repository

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grid-trading-bybit/internal/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestTradeWriterDailyFile(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewTradeWriter(dir, log)

	day := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	w.RecordTrade(model.TradeRecord{
		Timestamp: day,
		Symbol:    "BTCUSDT",
		Side:      model.SideBuy,
		Price:     49500,
		Qty:       0.01,
		OrderID:   "ord-1",
		Status:    model.StatusFilled,
		Fee:       0.099,
		Note:      "grid fill",
	})
	w.RecordTrade(model.TradeRecord{
		Timestamp: day.Add(time.Hour),
		Symbol:    "BTCUSDT",
		Side:      model.SideSell,
		Price:     49700,
		Qty:       0.01,
		OrderID:   "ord-2",
		Status:    model.StatusFilled,
		PnL:       1.8016,
		Fee:       0.0994,
		Note:      "round trip closed",
	})

	path := filepath.Join(dir, "trades_2026-08-30.csv")
	rows := readCSV(t, path)

	// header once, then one row per record
	require.Len(t, rows, 3)
	require.Equal(t, tradeHeader, rows[0])
	require.Equal(t, "Buy", rows[1][2])
	require.Equal(t, "ord-1", rows[1][5])
	require.Equal(t, "1.8016", rows[2][7])
	require.Equal(t, "round trip closed", rows[2][9])
}

func TestTradeWriterRollsToNewDay(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewTradeWriter(dir, log)

	w.RecordTrade(model.TradeRecord{Timestamp: time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC), Symbol: "BTCUSDT"})
	w.RecordTrade(model.TradeRecord{Timestamp: time.Date(2026, 8, 31, 0, 1, 0, 0, time.UTC), Symbol: "BTCUSDT"})

	require.FileExists(t, filepath.Join(dir, "trades_2026-08-30.csv"))
	require.FileExists(t, filepath.Join(dir, "trades_2026-08-31.csv"))
}

func TestPerformanceWriterAppends(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewPerformanceWriter(dir, log)

	w.RecordPerformance(model.Performance{Timestamp: time.Now(), Balance: 1000, TotalTrades: 2})
	w.RecordPerformance(model.Performance{Timestamp: time.Now(), Balance: 1010, TotalTrades: 4})

	rows := readCSV(t, filepath.Join(dir, "performance.csv"))
	require.Len(t, rows, 3)
	require.Equal(t, performanceHeader, rows[0])
	require.Equal(t, "1000.00", rows[1][1])
	require.Equal(t, "4", rows[2][4])
}

func TestStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage()
	path := filepath.Join(dir, "state.json")

	type snapshot struct {
		Balance float64 `json:"balance"`
		Stopped bool    `json:"stopped"`
	}

	require.False(t, s.Exists(path))
	require.NoError(t, s.Write(path, snapshot{Balance: 1000, Stopped: true}))
	require.True(t, s.Exists(path))

	var got snapshot
	require.NoError(t, s.Read(path, &got))
	require.InDelta(t, 1000, got.Balance, 1e-9)
	require.True(t, got.Stopped)

	// missing file reads as a no-op
	var empty snapshot
	require.NoError(t, s.Read(filepath.Join(dir, "missing.json"), &empty))
	require.Zero(t, empty.Balance)
}
