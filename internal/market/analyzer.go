package market

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/model"
)

var (
	ErrDataUnavailable  = errors.New("market data unavailable")
	ErrInsufficientData = errors.New("insufficient candle data")
)

// candle interval for analysis; range detection spans the last 24 bars.
const (
	klineInterval   = "60"
	rangeLookback   = 24
	rangeDevDefault = 0.7
)

// MarketData is the slice of the exchange client the analyzer needs.
type MarketData interface {
	GetTicker(symbol string) (*model.Ticker, error)
	GetKlines(symbol, interval string, limit int) ([]model.Candle, error)
}

type Analyzer struct {
	cfg    *config.Config
	log    *slog.Logger
	client MarketData
}

func NewAnalyzer(cfg *config.Config, client MarketData, log *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		log:    log,
		client: client,
	}
}

func (a *Analyzer) CurrentPrice() (float64, error) {
	ticker, err := a.client.GetTicker(a.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if ticker.LastPrice <= 0 {
		return 0, fmt.Errorf("%w: non-positive last price", ErrDataUnavailable)
	}
	return ticker.LastPrice, nil
}

// ATR returns the mean true range over the given period. True range of a bar
// accounts for gaps against the previous close, so period+1 candles are
// required.
func (a *Analyzer) ATR(period int) (float64, error) {
	candles, err := a.client.GetKlines(a.cfg.Symbol, klineInterval, period+1)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("%w: need %d candles, got %d", ErrInsufficientData, period+1, len(candles))
	}

	var sum float64
	count := 0
	for i := len(candles) - period; i < len(candles); i++ {
		prev := candles[i-1]
		cur := candles[i]
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		sum += tr
		count++
	}
	return sum / float64(count), nil
}

// Volatility is the standard deviation of simple close-to-close returns over
// the period, scaled to percent.
func (a *Analyzer) Volatility(period int) (float64, error) {
	candles, err := a.client.GetKlines(a.cfg.Symbol, klineInterval, period)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("%w: need %d candles, got %d", ErrInsufficientData, period, len(candles))
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
	}
	if len(returns) == 0 {
		return 0, fmt.Errorf("%w: no usable returns", ErrInsufficientData)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * 100, nil
}

// IsRangeMarket reports whether the last close sits near the midpoint of the
// 24h high/low band. When data is missing the market is assumed ranging,
// which is the safer default for a grid.
func (a *Analyzer) IsRangeMarket(threshold float64) bool {
	if threshold <= 0 {
		threshold = rangeDevDefault
	}

	candles, err := a.client.GetKlines(a.cfg.Symbol, klineInterval, rangeLookback)
	if err != nil || len(candles) < rangeLookback {
		return true
	}

	high := candles[0].High
	low := candles[0].Low
	for _, c := range candles[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}

	halfRange := (high - low) / 2
	if halfRange <= 0 {
		return true
	}

	center := (high + low) / 2
	lastClose := candles[len(candles)-1].Close
	deviation := math.Abs(lastClose-center) / halfRange
	return deviation < threshold
}

// OptimalGridRange derives the grid band around the current price. Dynamic
// mode scales the band with ATR, clamped to the configured bounds; the
// static percent is the fallback when candle data is unavailable.
func (a *Analyzer) OptimalGridRange(currentPrice float64) (lower, upper float64) {
	rangePct := a.cfg.GridRangePct

	if a.cfg.UseDynamicRange {
		atr, err := a.ATR(a.cfg.ATRPeriod)
		if err != nil {
			a.log.Warn("⚠️ ATR unavailable, using static grid range", "error", err, "range_pct", rangePct)
		} else {
			dynamic := atr * a.cfg.ATRMultiplier / currentPrice
			rangePct = math.Min(math.Max(dynamic, a.cfg.MinRangePct), a.cfg.MaxRangePct)
		}
	}

	return currentPrice * (1 - rangePct), currentPrice * (1 + rangePct)
}

type Summary struct {
	Price          float64
	Bid            float64
	Ask            float64
	Volume24h      float64
	PriceChangePct float64
	ATR            float64
	Volatility     float64
	IsRange        bool
	GridLower      float64
	GridUpper      float64
}

// MarketSummary aggregates everything needed at grid build time in one call.
func (a *Analyzer) MarketSummary() (*Summary, error) {
	ticker, err := a.client.GetTicker(a.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if ticker.LastPrice <= 0 {
		return nil, fmt.Errorf("%w: non-positive last price", ErrDataUnavailable)
	}

	s := &Summary{
		Price:          ticker.LastPrice,
		Bid:            ticker.Bid,
		Ask:            ticker.Ask,
		Volume24h:      ticker.Volume24h,
		PriceChangePct: ticker.PriceChangePct,
		IsRange:        a.IsRangeMarket(rangeDevDefault),
	}

	if atr, err := a.ATR(a.cfg.ATRPeriod); err == nil {
		s.ATR = atr
	}
	if vol, err := a.Volatility(a.cfg.ATRPeriod); err == nil {
		s.Volatility = vol
	}

	s.GridLower, s.GridUpper = a.OptimalGridRange(ticker.LastPrice)
	return s, nil
}
