package api

import (
	"fmt"
	"net/url"
	"strconv"

	"grid-trading-bybit/internal/model"
)

type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

// GetKlines fetches OHLCV candles. Bybit returns newest-first; the slice is
// reversed so callers always see oldest to newest.
func (c *BybitClient) GetKlines(symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Add("category", category)
	params.Add("symbol", symbol)
	params.Add("interval", interval)
	params.Add("limit", strconv.Itoa(limit))

	var result klineResult
	if err := c.publicGet("/v5/market/kline", params, &result); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row: %v", row)
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed kline timestamp %q: %w", row[0], err)
		}
		candles = append(candles, model.Candle{
			Timestamp: ts,
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	return candles, nil
}
