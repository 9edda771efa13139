package model

import "time"

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderStatus string

const (
	StatusNew       OrderStatus = "New"
	StatusFilled    OrderStatus = "Filled"
	StatusCancelled OrderStatus = "Cancelled"
	StatusRejected  OrderStatus = "Rejected"
	StatusUnknown   OrderStatus = "Unknown"
)

// Candle is a single OHLCV bar. Timestamp is the bar open time in ms.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type Ticker struct {
	Symbol         string
	LastPrice      float64
	Bid            float64
	Ask            float64
	Volume24h      float64
	PriceChangePct float64
}

// Order mirrors the exchange view of an order. Prices and quantities are
// already parsed from the string fields the API returns.
type Order struct {
	OrderID     string
	LinkID      string
	Symbol      string
	Side        Side
	Price       float64
	Qty         float64
	Status      OrderStatus
	CreatedTime int64
}

// GridLevel is one rung of the ladder. TargetPrice is the exact rung,
// AdjustedPrice carries the maker offset applied at placement.
type GridLevel struct {
	Side          Side
	TargetPrice   float64
	AdjustedPrice float64
}

// OrderPair is a completed entry/counter round trip.
type OrderPair struct {
	EntryOrderID   string
	CounterOrderID string
	Side           Side
	Qty            float64
	RealizedPnL    float64
	ClosedAt       time.Time
}

type Balance struct {
	Total     float64
	Available float64
	Used      float64
}

type Position struct {
	Symbol        string
	Side          string
	Size          float64
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      float64
}

// TradeRecord is one row of the daily trade log.
type TradeRecord struct {
	Timestamp time.Time
	Symbol    string
	Side      Side
	Price     float64
	Qty       float64
	OrderID   string
	Status    OrderStatus
	PnL       float64
	Fee       float64
	Note      string
}

// Performance is a point-in-time account snapshot.
type Performance struct {
	Timestamp     time.Time
	Balance       float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalTrades   int
	WinRate       float64
	DailyReturn   float64
	TotalReturn   float64
}
