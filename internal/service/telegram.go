package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"grid-trading-bybit/internal/config"
	"grid-trading-bybit/internal/core"
	"grid-trading-bybit/internal/model"
)

// TelegramService pushes operator notifications. With no credentials
// configured every send is a silent no-op, so it can always be wired in.
type TelegramService struct {
	cfg *config.Config
	log *slog.Logger
}

func NewTelegramService(cfg *config.Config, log *slog.Logger) *TelegramService {
	return &TelegramService{cfg: cfg, log: log}
}

func (s *TelegramService) SendMessage(text string) {
	if s.cfg.TelegramToken == "" || s.cfg.TelegramChatID == "" {
		s.log.Debug("Telegram credentials not set, skipping message")
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.cfg.TelegramToken)
	payload := map[string]string{
		"chat_id": s.cfg.TelegramChatID,
		"text":    text,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("Failed to marshal Telegram payload", "error", err)
		return
	}

	// Send async
	go func() {
		resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonPayload))
		if err != nil {
			s.log.Error("Failed to send Telegram message", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			s.log.Error("Telegram API error", "status", resp.Status)
		}
	}()
}

// RecordTrade lets the service act as a ledger sink: every fill and closed
// round trip becomes a notification.
func (s *TelegramService) RecordTrade(rec model.TradeRecord) {
	emoji := "🟢"
	if rec.Side == model.SideSell {
		emoji = "🔴"
	}

	msg := fmt.Sprintf("%s %s %s\nPrice: %.2f\nQty: %.6f\nFee: %.4f USDT\nTime: %s",
		emoji, rec.Side, rec.Symbol, rec.Price, rec.Qty, rec.Fee,
		rec.Timestamp.Format("02/01/2006 15:04:05"))

	if rec.Note == "round trip closed" {
		msg += fmt.Sprintf("\n💰 Round trip PnL: %.4f USDT", rec.PnL)
	}
	s.SendMessage(msg)
}

func (s *TelegramService) SendRiskAlert(reason string, m core.RiskMetrics) {
	s.SendMessage(fmt.Sprintf("🚨 RISK ALERT 🚨\nTrading halted: %s\nBalance: %.2f USDT\nDaily return: %.2f%%\nDrawdown: %.2f%%\nTrades: %d (win rate %.0f%%)\nTime: %s",
		reason, m.CurrentBalance, m.DailyReturnPct, m.DrawdownPct,
		m.TotalTrades, m.WinRate*100, time.Now().Format("02/01/2006 15:04:05")))
}
