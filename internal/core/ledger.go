package core

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/metrics"
	"grid-trading-bybit/internal/model"
)

// Exchange is the full client surface the trading core depends on.
// *api.BybitClient satisfies it.
type Exchange interface {
	GetBalance() (*model.Balance, error)
	GetTicker(symbol string) (*model.Ticker, error)
	GetKlines(symbol, interval string, limit int) ([]model.Candle, error)
	PlaceLimitOrder(symbol string, side model.Side, qty, price float64, linkID string) (*model.Order, error)
	CancelOrder(symbol, orderID string) error
	CancelAllOrders(symbol string) error
	GetOpenOrders(symbol string) ([]model.Order, error)
	GetOrderHistory(symbol string, limit int) ([]model.Order, error)
	GetPosition(symbol string) (*model.Position, error)
	SetLeverage(symbol string, leverage int) error
}

// TradeSink receives every trade event the ledger emits (CSV writer,
// Telegram notifier).
type TradeSink interface {
	RecordTrade(rec model.TradeRecord)
}

// OrderLedger tracks every resting order the bot owns, reconciles that view
// against the exchange, and turns fills into counter-orders and realized
// PnL. Exchange-assigned order ids are the single source of identity.
type OrderLedger struct {
	cfg     *config.Config
	log     *slog.Logger
	client  Exchange
	grid    *GridEngine
	risk    *RiskGovernor
	metrics *metrics.Metrics

	// sessionID makes link ids unique across restarts.
	sessionID  string
	counterSeq int

	active    map[string]model.Order // orderID -> resting order
	filled    map[string]model.Order // orderID -> observed fill
	pairs     map[string]string      // counter orderID -> entry orderID
	completed []model.OrderPair

	sinks []TradeSink

	settleDelay time.Duration
	placeDelay  time.Duration
}

func NewOrderLedger(cfg *config.Config, client Exchange, grid *GridEngine, risk *RiskGovernor, m *metrics.Metrics, log *slog.Logger) *OrderLedger {
	return &OrderLedger{
		cfg:         cfg,
		log:         log,
		client:      client,
		grid:        grid,
		risk:        risk,
		metrics:     m,
		sessionID:   strings.Split(uuid.NewString(), "-")[0],
		active:      make(map[string]model.Order),
		filled:      make(map[string]model.Order),
		pairs:       make(map[string]string),
		settleDelay: time.Second,
		placeDelay:  200 * time.Millisecond,
	}
}

func (l *OrderLedger) AddSink(s TradeSink) {
	l.sinks = append(l.sinks, s)
}

func (l *OrderLedger) emit(rec model.TradeRecord) {
	for _, s := range l.sinks {
		s.RecordTrade(rec)
	}
}

func (l *OrderLedger) linkID(side model.Side, buildMillis int64, index int) string {
	return fmt.Sprintf("grid_%s_%s_%d_%d", strings.ToLower(string(side)), l.sessionID, buildMillis, index)
}

// PlaceLadder cancels any resting orders, waits for the exchange to settle,
// then places one PostOnly limit order per grid level. A failed placement
// leaves that rung empty; the rest of the ladder still goes out.
func (l *OrderLedger) PlaceLadder(orderSize float64) (buyCount, sellCount int) {
	if err := l.client.CancelAllOrders(l.cfg.Symbol); err != nil {
		l.log.Warn("⚠️ Cancel-all before ladder failed", "error", err)
	}
	l.resetTracking()
	time.Sleep(l.settleDelay)

	buildMillis := time.Now().UnixMilli()

	for i, lvl := range l.grid.BuyLevels() {
		if l.placeLevel(lvl, orderSize, l.linkID(model.SideBuy, buildMillis, i)) {
			buyCount++
		}
		time.Sleep(l.placeDelay)
	}
	for i, lvl := range l.grid.SellLevels() {
		if l.placeLevel(lvl, orderSize, l.linkID(model.SideSell, buildMillis, i)) {
			sellCount++
		}
		time.Sleep(l.placeDelay)
	}

	l.metrics.SetActiveOrders(len(l.active))
	l.log.Info("📐 Grid ladder placed", "buy_orders", buyCount, "sell_orders", sellCount, "order_size", orderSize)
	return buyCount, sellCount
}

func (l *OrderLedger) placeLevel(lvl model.GridLevel, qty float64, linkID string) bool {
	order, err := l.client.PlaceLimitOrder(l.cfg.Symbol, lvl.Side, qty, lvl.AdjustedPrice, linkID)
	if err != nil {
		l.log.Error("❌ Order placement failed", "side", lvl.Side, "price", lvl.AdjustedPrice, "error", err)
		return false
	}
	order.Status = model.StatusNew
	l.active[order.OrderID] = *order
	return true
}

// Reconcile synchronizes the tracked set with the exchange. It runs in two
// phases: first every divergence is computed against a single snapshot, then
// removals and adoptions are applied. No order is processed as both
// open and resolved within one pass.
func (l *OrderLedger) Reconcile() error {
	open, err := l.client.GetOpenOrders(l.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}

	openSet := make(map[string]model.Order, len(open))
	for _, o := range open {
		openSet[o.OrderID] = o
	}

	// Phase 1: diff against the snapshot.
	var vanished []model.Order
	for id, o := range l.active {
		if _, ok := openSet[id]; !ok {
			vanished = append(vanished, o)
		}
	}
	var adopted []model.Order
	for id, o := range openSet {
		if _, ok := l.active[id]; !ok {
			adopted = append(adopted, o)
		}
	}

	var history map[string]model.OrderStatus
	if len(vanished) > 0 {
		history = l.fetchHistory()
	}

	// Phase 2: apply.
	for _, o := range vanished {
		delete(l.active, o.OrderID)

		status, ok := history[o.OrderID]
		if !ok {
			status = model.StatusUnknown
		}

		switch status {
		case model.StatusFilled:
			o.Status = model.StatusFilled
			l.handleFill(o)
		case model.StatusCancelled, model.StatusRejected:
			l.dropPair(o.OrderID)
			l.log.Debug("Order left the book without filling", "order_id", o.OrderID, "status", status)
		default:
			l.dropPair(o.OrderID)
			l.log.Warn("⚠️ Order vanished without a terminal status, dropping from tracking", "order_id", o.OrderID)
		}
	}

	for _, o := range adopted {
		o.Status = model.StatusNew
		l.active[o.OrderID] = o
		l.log.Info("👀 Adopted untracked open order", "order_id", o.OrderID, "side", o.Side, "price", o.Price)
	}

	l.metrics.SetActiveOrders(len(l.active))
	return nil
}

func (l *OrderLedger) fetchHistory() map[string]model.OrderStatus {
	history, err := l.client.GetOrderHistory(l.cfg.Symbol, 100)
	if err != nil {
		l.log.Warn("⚠️ Order history unavailable during reconcile", "error", err)
		return nil
	}
	statuses := make(map[string]model.OrderStatus, len(history))
	for _, o := range history {
		statuses[o.OrderID] = o.Status
	}
	return statuses
}

// handleFill processes one observed fill: place the counter-order one rung
// away, attribute round-trip PnL if this fill closes a pair, and emit the
// trade record.
func (l *OrderLedger) handleFill(o model.Order) {
	l.log.Info("✅ Order filled", "order_id", o.OrderID, "side", o.Side, "price", o.Price, "qty", o.Qty)
	l.filled[o.OrderID] = o
	l.metrics.IncFill(o.Side)

	l.placeCounterOrder(o)

	pnl, closed := l.attributePnL(o)
	if closed {
		l.risk.RecordTrade(pnl, pnl > 0)
		l.metrics.IncRoundTrip()
		l.metrics.SetRealizedPnL(l.risk.CumulativePnL())
	}

	note := "grid fill"
	if closed {
		note = "round trip closed"
	}
	l.emit(model.TradeRecord{
		Timestamp: time.Now(),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     o.Price,
		Qty:       o.Qty,
		OrderID:   o.OrderID,
		Status:    model.StatusFilled,
		PnL:       pnl,
		Fee:       o.Price * o.Qty * l.cfg.MakerFee,
		Note:      note,
	})
}

// placeCounterOrder rests the opposite side exactly one grid step away from
// the fill. Counters that would land outside the band are skipped.
func (l *OrderLedger) placeCounterOrder(filled model.Order) {
	step := l.grid.Step()
	if step <= 0 {
		return
	}

	side := filled.Side.Opposite()
	price := filled.Price + step
	if side == model.SideBuy {
		price = filled.Price - step
	}

	lower, upper := l.grid.Band()
	if price < lower || price > upper {
		l.log.Debug("Counter-order outside grid band, skipping",
			"side", side, "price", price, "lower", lower, "upper", upper)
		return
	}

	l.counterSeq++
	linkID := fmt.Sprintf("grid_%s_%s_%d_c%d", strings.ToLower(string(side)), l.sessionID, time.Now().UnixMilli(), l.counterSeq)

	order, err := l.client.PlaceLimitOrder(l.cfg.Symbol, side, filled.Qty, price, linkID)
	if err != nil {
		l.log.Error("❌ Counter-order placement failed", "side", side, "price", price, "error", err)
		return
	}

	order.Status = model.StatusNew
	l.active[order.OrderID] = *order
	l.pairs[order.OrderID] = filled.OrderID
	l.log.Info("🔁 Counter-order placed", "order_id", order.OrderID, "side", side, "price", price, "entry_order_id", filled.OrderID)
}

// attributePnL closes the round trip if the filled order is a known counter.
// Net PnL is the price difference minus maker fees on both legs. The pair
// entry is consumed so PnL is attributed exactly once.
func (l *OrderLedger) attributePnL(o model.Order) (float64, bool) {
	entryID, ok := l.pairs[o.OrderID]
	if !ok {
		return 0, false
	}
	delete(l.pairs, o.OrderID)

	entry, ok := l.filled[entryID]
	if !ok {
		l.log.Warn("⚠️ Counter filled but entry leg unknown, PnL not attributed", "order_id", o.OrderID, "entry_order_id", entryID)
		return 0, false
	}
	// the entry leg is consumed with its pair; nothing references it again
	delete(l.filled, entryID)

	buyPrice, sellPrice := entry.Price, o.Price
	if entry.Side == model.SideSell {
		buyPrice, sellPrice = o.Price, entry.Price
	}

	gross := (sellPrice - buyPrice) * o.Qty
	fees := (buyPrice + sellPrice) * o.Qty * l.cfg.MakerFee
	net := gross - fees

	l.completed = append(l.completed, model.OrderPair{
		EntryOrderID:   entryID,
		CounterOrderID: o.OrderID,
		Side:           entry.Side,
		Qty:            o.Qty,
		RealizedPnL:    net,
		ClosedAt:       time.Now(),
	})

	l.log.Info("💰 Round trip closed",
		"entry_order_id", entryID,
		"counter_order_id", o.OrderID,
		"buy_price", buyPrice,
		"sell_price", sellPrice,
		"qty", o.Qty,
		"net_pnl", net,
	)
	return net, true
}

// CancelAll clears the exchange book and the tracked set.
func (l *OrderLedger) CancelAll() {
	if err := l.client.CancelAllOrders(l.cfg.Symbol); err != nil {
		l.log.Error("❌ Cancel-all failed", "error", err)
		return
	}
	l.resetTracking()
	l.metrics.SetActiveOrders(0)
}

// resetTracking forgets all resting orders and every pair whose counter leg
// died with them. Cancelling the book invalidates pending pairs, so keeping
// them would only leak entries that can never close.
func (l *OrderLedger) resetTracking() {
	l.active = make(map[string]model.Order)
	l.pairs = make(map[string]string)
	l.filled = make(map[string]model.Order)
}

// dropPair forgets a pending pair whose counter leg left the book unfilled.
func (l *OrderLedger) dropPair(counterID string) {
	if entryID, ok := l.pairs[counterID]; ok {
		delete(l.pairs, counterID)
		delete(l.filled, entryID)
	}
}

func (l *OrderLedger) ActiveCount() int { return len(l.active) }

func (l *OrderLedger) CompletedPairs() []model.OrderPair { return l.completed }
