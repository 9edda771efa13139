package core

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grid-trading-bybit/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Symbol:             "BTCUSDT",
		Leverage:           2,
		GridLevels:         10,
		GridRangePct:       0.02,
		MakerFee:           0.0002,
		OrderOffsetPct:     0,
		MaxPositionRatio:   0.5,
		DailyLossLimit:     0.05,
		MaxDrawdown:        0.15,
		DailyProfitTarget:  0.03,
		CheckInterval:      time.Minute,
		GridUpdateInterval: time.Hour,
	}
}

func TestBuildLevels(t *testing.T) {
	tests := []struct {
		name        string
		price       float64
		lower       float64
		upper       float64
		count       int
		wantBuys    int
		wantSells   int
		wantStep    float64
		wantTopBuy  float64
		wantLowSell float64
	}{
		{
			name:  "centered price fills both sides",
			price: 50000, lower: 49000, upper: 51000, count: 10,
			wantBuys: 5, wantSells: 5, wantStep: 200,
			wantTopBuy: 49800, wantLowSell: 50200,
		},
		{
			name:  "price near lower bound truncates buys",
			price: 49300, lower: 49000, upper: 51000, count: 10,
			wantBuys: 1, wantSells: 5, wantStep: 200,
			wantTopBuy: 49100, wantLowSell: 49500,
		},
		{
			name:  "price near upper bound truncates sells",
			price: 50900, lower: 49000, upper: 51000, count: 10,
			wantBuys: 5, wantSells: 0, wantStep: 200,
			wantTopBuy: 50700,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buys, sells := BuildLevels(tt.price, tt.lower, tt.upper, tt.count, 0)

			require.Len(t, buys, tt.wantBuys)
			require.Len(t, sells, tt.wantSells)

			if tt.wantBuys > 0 {
				require.InDelta(t, tt.wantTopBuy, buys[0].TargetPrice, 1e-9)
			}
			if tt.wantSells > 0 {
				require.InDelta(t, tt.wantLowSell, sells[0].TargetPrice, 1e-9)
			}

			// buys descend from the price, sells ascend, all inside the band
			for i, lvl := range buys {
				require.Less(t, lvl.TargetPrice, tt.price)
				require.GreaterOrEqual(t, lvl.TargetPrice, tt.lower)
				require.InDelta(t, tt.price-tt.wantStep*float64(i+1), lvl.TargetPrice, 1e-9)
			}
			for i, lvl := range sells {
				require.Greater(t, lvl.TargetPrice, tt.price)
				require.LessOrEqual(t, lvl.TargetPrice, tt.upper)
				require.InDelta(t, tt.price+tt.wantStep*float64(i+1), lvl.TargetPrice, 1e-9)
			}
		})
	}
}

func TestBuildLevelsDeterministic(t *testing.T) {
	b1, s1 := BuildLevels(50000, 49000, 51000, 10, 0.0005)
	b2, s2 := BuildLevels(50000, 49000, 51000, 10, 0.0005)
	require.Equal(t, b1, b2)
	require.Equal(t, s1, s2)
}

func TestBuildLevelsOffset(t *testing.T) {
	buys, sells := BuildLevels(50000, 49000, 51000, 10, 0.001)

	require.InDelta(t, 49800*(1-0.001), buys[0].AdjustedPrice, 1e-9)
	require.InDelta(t, 50200*(1+0.001), sells[0].AdjustedPrice, 1e-9)
}

func TestBuildLevelsDegenerateBand(t *testing.T) {
	buys, sells := BuildLevels(50000, 51000, 49000, 10, 0)
	require.Empty(t, buys)
	require.Empty(t, sells)
}

func TestShouldRebalance(t *testing.T) {
	cfg := testConfig()
	g := NewGridEngine(cfg, testLogger())

	// no grid yet
	require.False(t, g.ShouldRebalance(60000, time.Now()))

	g.Rebuild(50000, 49000, 51000)
	built := g.lastBuild

	// band width 2000, buffer 200
	tests := []struct {
		name  string
		price float64
		at    time.Time
		want  bool
	}{
		{"inside band too early", 50000, built.Add(time.Minute), false},
		{"outside band too early", 52000, built.Add(time.Minute), false},
		{"inside band after interval", 50000, built.Add(2 * time.Hour), false},
		{"inside upper buffer after interval", 51100, built.Add(2 * time.Hour), false},
		{"beyond upper buffer after interval", 51300, built.Add(2 * time.Hour), true},
		{"inside lower buffer after interval", 48900, built.Add(2 * time.Hour), false},
		{"beyond lower buffer after interval", 48700, built.Add(2 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, g.ShouldRebalance(tt.price, tt.at))
		})
	}
}

func TestOrderSize(t *testing.T) {
	cfg := testConfig()
	g := NewGridEngine(cfg, testLogger())

	// 1000 * 0.5 * 2 / 10 levels = 100 USDT per level, at 50000 -> 0.002
	size := g.OrderSize(1000, 50000)
	require.InDelta(t, 0.002, size, 1e-12)

	require.Zero(t, g.OrderSize(1000, 0))
}
