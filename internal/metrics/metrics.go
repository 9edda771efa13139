package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grid-trading-bybit/internal/model"
)

// Metrics holds the Prometheus instruments. A nil *Metrics is valid and all
// methods become no-ops, so metrics can be disabled by configuration.
type Metrics struct {
	balance       prometheus.Gauge
	lastPrice     prometheus.Gauge
	activeOrders  prometheus.Gauge
	unrealizedPnL prometheus.Gauge
	drawdown      prometheus.Gauge
	realizedPnL   prometheus.Gauge

	fills      *prometheus.CounterVec
	roundTrips prometheus.Counter
	rebalances prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		balance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_balance_usdt",
			Help: "Total account equity in USDT.",
		}),
		lastPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_last_price",
			Help: "Last observed market price.",
		}),
		activeOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_active_orders",
			Help: "Number of tracked resting orders.",
		}),
		unrealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_unrealized_pnl_usdt",
			Help: "Unrealized PnL of the open position.",
		}),
		drawdown: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_drawdown_pct",
			Help: "Current drawdown from peak balance, as a fraction.",
		}),
		realizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_realized_pnl_usdt",
			Help: "Cumulative realized PnL since start.",
		}),
		fills: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gridbot_fills_total",
			Help: "Order fills observed, by side.",
		}, []string{"side"}),
		roundTrips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_round_trips_total",
			Help: "Completed entry/counter round trips.",
		}),
		rebalances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_rebalances_total",
			Help: "Grid rebuilds triggered by price leaving the band.",
		}),
	}
}

func (m *Metrics) SetBalance(v float64) {
	if m != nil {
		m.balance.Set(v)
	}
}

func (m *Metrics) SetLastPrice(v float64) {
	if m != nil {
		m.lastPrice.Set(v)
	}
}

func (m *Metrics) SetActiveOrders(n int) {
	if m != nil {
		m.activeOrders.Set(float64(n))
	}
}

func (m *Metrics) SetUnrealizedPnL(v float64) {
	if m != nil {
		m.unrealizedPnL.Set(v)
	}
}

func (m *Metrics) SetDrawdown(v float64) {
	if m != nil {
		m.drawdown.Set(v)
	}
}

func (m *Metrics) SetRealizedPnL(v float64) {
	if m != nil {
		m.realizedPnL.Set(v)
	}
}

func (m *Metrics) IncFill(side model.Side) {
	if m != nil {
		m.fills.WithLabelValues(string(side)).Inc()
	}
}

func (m *Metrics) IncRoundTrip() {
	if m != nil {
		m.roundTrips.Inc()
	}
}

func (m *Metrics) IncRebalance() {
	if m != nil {
		m.rebalances.Inc()
	}
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("📡 Metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics listener failed", "error", err)
		}
	}()
}
