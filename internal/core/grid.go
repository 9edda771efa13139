package core

import (
	"log/slog"
	"time"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/model"
)

// band buffer applied on top of the grid range before a rebalance triggers.
const rebalanceBufferPct = 0.10

// GridEngine owns the ladder geometry: the band, the rung spacing and the
// buy/sell levels. State is replaced wholesale on every rebuild, never
// patched in place.
type GridEngine struct {
	cfg *config.Config
	log *slog.Logger

	buyLevels  []model.GridLevel
	sellLevels []model.GridLevel
	lower      float64
	upper      float64
	step       float64
	lastBuild  time.Time
}

func NewGridEngine(cfg *config.Config, log *slog.Logger) *GridEngine {
	return &GridEngine{
		cfg: cfg,
		log: log,
	}
}

// BuildLevels computes the ladder for a band. Rungs step out symmetrically
// from the current price; anything that falls outside [lower, upper] is
// dropped rather than clamped. Buys come back nearest-first (descending),
// sells nearest-first (ascending).
func BuildLevels(currentPrice, lower, upper float64, count int, offsetPct float64) (buys, sells []model.GridLevel) {
	if count < 2 || upper <= lower {
		return nil, nil
	}

	step := (upper - lower) / float64(count)
	perSide := count / 2

	for i := 1; i <= perSide; i++ {
		price := currentPrice - step*float64(i)
		if price < lower {
			break
		}
		buys = append(buys, model.GridLevel{
			Side:          model.SideBuy,
			TargetPrice:   price,
			AdjustedPrice: price * (1 - offsetPct),
		})
	}

	for i := 1; i <= perSide; i++ {
		price := currentPrice + step*float64(i)
		if price > upper {
			break
		}
		sells = append(sells, model.GridLevel{
			Side:          model.SideSell,
			TargetPrice:   price,
			AdjustedPrice: price * (1 + offsetPct),
		})
	}

	return buys, sells
}

// Rebuild replaces the grid state for a new band centered on currentPrice.
func (g *GridEngine) Rebuild(currentPrice, lower, upper float64) {
	buys, sells := BuildLevels(currentPrice, lower, upper, g.cfg.GridLevels, g.cfg.OrderOffsetPct)

	g.buyLevels = buys
	g.sellLevels = sells
	g.lower = lower
	g.upper = upper
	g.step = (upper - lower) / float64(g.cfg.GridLevels)
	g.lastBuild = time.Now()

	g.log.Info("🔨 Grid rebuilt",
		"price", currentPrice,
		"lower", lower,
		"upper", upper,
		"step", g.step,
		"buy_levels", len(buys),
		"sell_levels", len(sells),
	)
}

// ShouldRebalance gates grid rebuilds on two conditions that must both hold:
// the update interval has elapsed, and price has escaped the band plus a 10%
// buffer of the band width. Small excursions inside the buffer never trigger.
func (g *GridEngine) ShouldRebalance(currentPrice float64, now time.Time) bool {
	if g.lastBuild.IsZero() {
		return false
	}
	if now.Sub(g.lastBuild) < g.cfg.GridUpdateInterval {
		return false
	}

	buffer := (g.upper - g.lower) * rebalanceBufferPct
	return currentPrice < g.lower-buffer || currentPrice > g.upper+buffer
}

// OrderSize converts the per-level capital allocation into base quantity.
// Capital committed is available balance scaled by the position ratio and
// leverage, split evenly across all levels.
func (g *GridEngine) OrderSize(availableBalance, currentPrice float64) float64 {
	if currentPrice <= 0 || g.cfg.GridLevels == 0 {
		return 0
	}
	notional := availableBalance * g.cfg.MaxPositionRatio * float64(g.cfg.Leverage)
	return notional / float64(g.cfg.GridLevels) / currentPrice
}

func (g *GridEngine) BuyLevels() []model.GridLevel  { return g.buyLevels }
func (g *GridEngine) SellLevels() []model.GridLevel { return g.sellLevels }
func (g *GridEngine) Step() float64                 { return g.step }
func (g *GridEngine) Band() (lower, upper float64)  { return g.lower, g.upper }
