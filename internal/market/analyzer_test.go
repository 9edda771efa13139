package market

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/model"
)

type fakeMarketData struct {
	ticker    *model.Ticker
	tickerErr error
	candles   []model.Candle
	klinesErr error
}

func (f *fakeMarketData) GetTicker(symbol string) (*model.Ticker, error) {
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return f.ticker, nil
}

func (f *fakeMarketData) GetKlines(symbol, interval string, limit int) ([]model.Candle, error) {
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	if limit < len(f.candles) {
		return f.candles[len(f.candles)-limit:], nil
	}
	return f.candles, nil
}

func testAnalyzer(data *fakeMarketData) *Analyzer {
	cfg := &config.Config{
		Symbol:          "BTCUSDT",
		GridRangePct:    0.02,
		UseDynamicRange: true,
		MinRangePct:     0.01,
		MaxRangePct:     0.05,
		ATRMultiplier:   2.0,
		ATRPeriod:       2,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAnalyzer(cfg, data, log)
}

func candlesFromOHLC(highs, lows, closes []float64) []model.Candle {
	candles := make([]model.Candle, len(highs))
	for i := range highs {
		candles[i] = model.Candle{
			Timestamp: int64(i) * 3600_000,
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
		}
	}
	return candles
}

func TestATR(t *testing.T) {
	data := &fakeMarketData{
		candles: candlesFromOHLC(
			[]float64{105, 107, 104},
			[]float64{100, 102, 99},
			[]float64{103, 106, 101},
		),
	}
	a := testAnalyzer(data)

	// TR(candle 2) = max(107-102, |107-103|, |102-103|) = 5
	// TR(candle 3) = max(104-99, |104-106|, |99-106|) = 7
	atr, err := a.ATR(2)
	require.NoError(t, err)
	require.InDelta(t, 6.0, atr, 1e-9)
}

func TestATRInsufficientData(t *testing.T) {
	data := &fakeMarketData{
		candles: candlesFromOHLC([]float64{105}, []float64{100}, []float64{103}),
	}
	a := testAnalyzer(data)

	_, err := a.ATR(2)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestATRDataUnavailable(t *testing.T) {
	data := &fakeMarketData{klinesErr: errors.New("timeout")}
	a := testAnalyzer(data)

	_, err := a.ATR(2)
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestVolatility(t *testing.T) {
	// closes 100 -> 110 -> 99: returns +10% and -10%, mean 0, stddev 0.1
	data := &fakeMarketData{
		candles: candlesFromOHLC(
			[]float64{101, 111, 100},
			[]float64{99, 109, 98},
			[]float64{100, 110, 99},
		),
	}
	a := testAnalyzer(data)

	vol, err := a.Volatility(3)
	require.NoError(t, err)
	require.InDelta(t, 10.0, vol, 1e-9)
}

func TestVolatilityFlatSeries(t *testing.T) {
	data := &fakeMarketData{
		candles: candlesFromOHLC(
			[]float64{100, 100, 100},
			[]float64{100, 100, 100},
			[]float64{100, 100, 100},
		),
	}
	a := testAnalyzer(data)

	vol, err := a.Volatility(3)
	require.NoError(t, err)
	require.Zero(t, vol)
}

func TestCurrentPrice(t *testing.T) {
	a := testAnalyzer(&fakeMarketData{ticker: &model.Ticker{LastPrice: 50000}})
	price, err := a.CurrentPrice()
	require.NoError(t, err)
	require.InDelta(t, 50000, price, 1e-9)

	a = testAnalyzer(&fakeMarketData{tickerErr: errors.New("timeout")})
	_, err = a.CurrentPrice()
	require.ErrorIs(t, err, ErrDataUnavailable)

	a = testAnalyzer(&fakeMarketData{ticker: &model.Ticker{LastPrice: 0}})
	_, err = a.CurrentPrice()
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func rangeCandles(lastClose float64) []model.Candle {
	candles := make([]model.Candle, rangeLookback)
	for i := range candles {
		candles[i] = model.Candle{High: 110, Low: 90, Close: 100}
	}
	candles[len(candles)-1].Close = lastClose
	return candles
}

func TestIsRangeMarket(t *testing.T) {
	tests := []struct {
		name string
		data *fakeMarketData
		want bool
	}{
		{"close at band center", &fakeMarketData{candles: rangeCandles(101)}, true},
		{"close at band extreme", &fakeMarketData{candles: rangeCandles(109)}, false},
		{"insufficient data defaults to ranging", &fakeMarketData{candles: rangeCandles(109)[:3]}, true},
		{"fetch failure defaults to ranging", &fakeMarketData{klinesErr: errors.New("timeout")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnalyzer(tt.data)
			require.Equal(t, tt.want, a.IsRangeMarket(0.3))
		})
	}
}

func TestIsRangeMarketDefaultThreshold(t *testing.T) {
	// close 105 in a 90-110 band deviates 0.5 from center: ranging under
	// the 0.7 default, trending under a strict 0.3
	a := testAnalyzer(&fakeMarketData{candles: rangeCandles(105)})
	require.True(t, a.IsRangeMarket(0))
	require.False(t, a.IsRangeMarket(0.3))
}

func TestOptimalGridRange(t *testing.T) {
	t.Run("static fallback when candles unavailable", func(t *testing.T) {
		a := testAnalyzer(&fakeMarketData{klinesErr: errors.New("timeout")})
		lower, upper := a.OptimalGridRange(50000)
		require.InDelta(t, 49000, lower, 1e-9) // 2% static
		require.InDelta(t, 51000, upper, 1e-9)
	})

	t.Run("dynamic range clamped to max", func(t *testing.T) {
		// ATR 6 on a price of 10: 6*2/10 = 1.2, clamped to 0.05
		data := &fakeMarketData{
			candles: candlesFromOHLC(
				[]float64{105, 107, 104},
				[]float64{100, 102, 99},
				[]float64{103, 106, 101},
			),
		}
		a := testAnalyzer(data)
		lower, upper := a.OptimalGridRange(10)
		require.InDelta(t, 10*0.95, lower, 1e-9)
		require.InDelta(t, 10*1.05, upper, 1e-9)
	})

	t.Run("dynamic range clamped to min", func(t *testing.T) {
		// ATR 6 on a price of 100000: 0.00012, clamped to 0.01
		data := &fakeMarketData{
			candles: candlesFromOHLC(
				[]float64{105, 107, 104},
				[]float64{100, 102, 99},
				[]float64{103, 106, 101},
			),
		}
		a := testAnalyzer(data)
		lower, upper := a.OptimalGridRange(100000)
		require.InDelta(t, 99000, lower, 1e-9)
		require.InDelta(t, 101000, upper, 1e-9)
	})
}

func TestMarketSummary(t *testing.T) {
	data := &fakeMarketData{
		ticker: &model.Ticker{Symbol: "BTCUSDT", LastPrice: 50000, Bid: 49999, Ask: 50001},
		candles: candlesFromOHLC(
			[]float64{105, 107, 104},
			[]float64{100, 102, 99},
			[]float64{103, 106, 101},
		),
	}
	a := testAnalyzer(data)

	s, err := a.MarketSummary()
	require.NoError(t, err)
	require.InDelta(t, 50000, s.Price, 1e-9)
	require.InDelta(t, 6.0, s.ATR, 1e-9)
	require.True(t, s.IsRange) // too few candles for the 24h band
	require.Greater(t, s.GridUpper, s.GridLower)
}
