package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/logger"
)

func wsTestServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTickerStreamReceivesPrice(t *testing.T) {
	hold := make(chan struct{})
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		// consume the subscribe request, then push one ticker update
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		msg := `{"topic":"tickers.BTCUSDT","data":{"lastPrice":"50123.5"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
		<-hold
	})
	defer close(hold)

	prices := make(chan float64, 1)
	stream := NewTickerStream(&config.Config{Symbol: "BTCUSDT"}, func(p float64) {
		select {
		case prices <- p:
		default:
		}
	}, logger.New("error", t.TempDir()))
	stream.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	go stream.Start()
	defer stream.Stop()

	select {
	case p := <-prices:
		require.InDelta(t, 50123.5, p, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no price update received")
	}

	last, ok := stream.LastPrice()
	require.True(t, ok)
	require.InDelta(t, 50123.5, last, 1e-9)
}

func TestKeepAliveBoundToConnection(t *testing.T) {
	hold := make(chan struct{})
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		<-hold
	})
	defer close(hold)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	stream := NewTickerStream(&config.Config{Symbol: "BTCUSDT"}, nil, logger.New("error", t.TempDir()))

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		stream.keepAliveLoop(conn, done)
		close(exited)
	}()

	// closing the per-connection channel must stop the pinger even though
	// the stream itself is still running
	close(done)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive goroutine did not exit with its connection")
	}
}
