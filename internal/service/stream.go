package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grid-trading-bybit/internal/config"
)

const (
	mainnetWsURL = "wss://stream.bybit.com/v5/public/linear"
	testnetWsURL = "wss://stream-testnet.bybit.com/v5/public/linear"

	wsPingInterval = 20 * time.Second
)

// TickerStream subscribes to the public ticker topic and keeps a last-price
// cache. It is observability only: the trading loop makes its decisions from
// REST polling, this feed just keeps dashboards and metrics fresh between
// polls.
type TickerStream struct {
	cfg *config.Config
	log *slog.Logger
	url string

	StopCh chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	lastPrice float64
	updatedAt time.Time

	onPrice func(price float64)
}

func NewTickerStream(cfg *config.Config, onPrice func(price float64), log *slog.Logger) *TickerStream {
	url := mainnetWsURL
	if cfg.Testnet {
		url = testnetWsURL
	}
	return &TickerStream{
		cfg:     cfg,
		log:     log,
		url:     url,
		StopCh:  make(chan struct{}),
		onPrice: onPrice,
	}
}

// Start dials, subscribes and blocks inside the read loop. It returns when
// the connection drops or Stop is called; the caller owns reconnection.
// Each call owns its connection outright: the keep-alive goroutine it spawns
// is bound to that connection and torn down before Start returns, so a
// reconnect can never write to a stale socket.
func (s *TickerStream) Start() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + s.cfg.Symbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.log.Info("🔌 Ticker stream connected", "url", s.url, "symbol", s.cfg.Symbol)

	done := make(chan struct{})
	go s.keepAliveLoop(conn, done)

	s.readLoop(conn)
	close(done)
	conn.Close()
	return nil
}

func (s *TickerStream) Stop() {
	close(s.StopCh)
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

// LastPrice returns the cached price and whether an update has arrived yet.
func (s *TickerStream) LastPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPrice, !s.updatedAt.IsZero()
}

// Bybit closes idle public connections; an application-level ping every 20s
// keeps it open. The loop writes only to the connection it was given and
// exits when that connection's read loop finishes.
func (s *TickerStream) keepAliveLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.StopCh:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				s.log.Warn("⚠️ Websocket ping failed", "error", err)
				return
			}
		}
	}
}

type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

func (s *TickerStream) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.StopCh:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn("⚠️ Websocket read failed", "error", err)
			return
		}

		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Topic == "" || msg.Data.LastPrice == "" {
			// pong frames and delta updates without a price change
			continue
		}

		price, err := strconv.ParseFloat(msg.Data.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}

		s.mu.Lock()
		s.lastPrice = price
		s.updatedAt = time.Now()
		s.mu.Unlock()

		if s.onPrice != nil {
			s.onPrice(price)
		}
	}
}
