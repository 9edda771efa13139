package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"grid-trading-bybit/internal/model"
)

const (
	MainnetBaseURL = "https://api.bybit.com"
	TestnetBaseURL = "https://api-testnet.bybit.com"

	recvWindow = "5000"
	category   = "linear"
)

type BybitClient struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Client    *http.Client

	log *slog.Logger
}

func NewBybitClient(apiKey, apiSecret string, testnet bool, log *slog.Logger) *BybitClient {
	baseURL := MainnetBaseURL
	if testnet {
		baseURL = TestnetBaseURL
	}
	return &BybitClient{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// sign computes the v5 request signature over
// timestamp + apiKey + recvWindow + payload.
func (c *BybitClient) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(timestamp + c.APIKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *BybitClient) signedGet(endpoint string, params url.Values, result interface{}) error {
	query := params.Encode()
	reqURL := fmt.Sprintf("%s%s?%s", c.BaseURL, endpoint, query)

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Add("X-BAPI-API-KEY", c.APIKey)
	req.Header.Add("X-BAPI-SIGN", c.sign(timestamp, query))
	req.Header.Add("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Add("X-BAPI-RECV-WINDOW", recvWindow)

	return c.execute(req, endpoint, result)
}

func (c *BybitClient) signedPost(endpoint string, body map[string]interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequest("POST", reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("X-BAPI-API-KEY", c.APIKey)
	req.Header.Add("X-BAPI-SIGN", c.sign(timestamp, string(payload)))
	req.Header.Add("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Add("X-BAPI-RECV-WINDOW", recvWindow)

	return c.execute(req, endpoint, result)
}

func (c *BybitClient) publicGet(endpoint string, params url.Values, result interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.execute(req, endpoint, result)
}

func (c *BybitClient) execute(req *http.Request, endpoint string, result interface{}) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error("Bybit API Error", "endpoint", endpoint, "status", resp.Status, "body", string(body))
		return fmt.Errorf("bybit api returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if envelope.RetCode != 0 {
		// 110043: leverage not modified, effectively a no-op success.
		if envelope.RetCode == 110043 {
			return nil
		}
		c.log.Error("Bybit API Error", "endpoint", endpoint, "ret_code", envelope.RetCode, "ret_msg", envelope.RetMsg)
		return fmt.Errorf("bybit api error %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

type walletBalanceResult struct {
	List []struct {
		TotalEquity           string `json:"totalEquity"`
		TotalAvailableBalance string `json:"totalAvailableBalance"`
	} `json:"list"`
}

func (c *BybitClient) GetBalance() (*model.Balance, error) {
	params := url.Values{}
	params.Add("accountType", "UNIFIED")

	var result walletBalanceResult
	if err := c.signedGet("/v5/account/wallet-balance", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("wallet balance response contained no accounts")
	}

	total := parseFloat(result.List[0].TotalEquity)
	available := parseFloat(result.List[0].TotalAvailableBalance)
	return &model.Balance{
		Total:     total,
		Available: available,
		Used:      total - available,
	}, nil
}

type tickerResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		LastPrice    string `json:"lastPrice"`
		Bid1Price    string `json:"bid1Price"`
		Ask1Price    string `json:"ask1Price"`
		Volume24h    string `json:"volume24h"`
		Price24hPcnt string `json:"price24hPcnt"`
	} `json:"list"`
}

func (c *BybitClient) GetTicker(symbol string) (*model.Ticker, error) {
	params := url.Values{}
	params.Add("category", category)
	params.Add("symbol", symbol)

	var result tickerResult
	if err := c.publicGet("/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	t := result.List[0]
	return &model.Ticker{
		Symbol:         t.Symbol,
		LastPrice:      parseFloat(t.LastPrice),
		Bid:            parseFloat(t.Bid1Price),
		Ask:            parseFloat(t.Ask1Price),
		Volume24h:      parseFloat(t.Volume24h),
		PriceChangePct: parseFloat(t.Price24hPcnt) * 100,
	}, nil
}

type orderPayload struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
}

func (p orderPayload) toOrder() model.Order {
	createdTime, _ := strconv.ParseInt(p.CreatedTime, 10, 64)
	return model.Order{
		OrderID:     p.OrderID,
		LinkID:      p.OrderLinkID,
		Symbol:      p.Symbol,
		Side:        model.Side(p.Side),
		Price:       parseFloat(p.Price),
		Qty:         parseFloat(p.Qty),
		Status:      mapOrderStatus(p.OrderStatus),
		CreatedTime: createdTime,
	}
}

// PlaceLimitOrder creates a PostOnly limit order. PostOnly guarantees the
// order rests on the book or is rejected, so fills always pay maker fee.
func (c *BybitClient) PlaceLimitOrder(symbol string, side model.Side, qty, price float64, linkID string) (*model.Order, error) {
	body := map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"side":        string(side),
		"orderType":   "Limit",
		"qty":         formatQty(qty),
		"price":       formatPrice(price),
		"timeInForce": "PostOnly",
		"orderLinkId": linkID,
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.signedPost("/v5/order/create", body, &result); err != nil {
		return nil, err
	}

	return &model.Order{
		OrderID: result.OrderID,
		LinkID:  result.OrderLinkID,
		Symbol:  symbol,
		Side:    side,
		Price:   price,
		Qty:     qty,
		Status:  model.StatusNew,
	}, nil
}

func (c *BybitClient) CancelOrder(symbol, orderID string) error {
	body := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	return c.signedPost("/v5/order/cancel", body, nil)
}

func (c *BybitClient) CancelAllOrders(symbol string) error {
	body := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
	}
	return c.signedPost("/v5/order/cancel-all", body, nil)
}

type orderListResult struct {
	List []orderPayload `json:"list"`
}

func (c *BybitClient) GetOpenOrders(symbol string) ([]model.Order, error) {
	params := url.Values{}
	params.Add("category", category)
	params.Add("symbol", symbol)
	params.Add("limit", "50")

	var result orderListResult
	if err := c.signedGet("/v5/order/realtime", params, &result); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(result.List))
	for _, p := range result.List {
		orders = append(orders, p.toOrder())
	}
	return orders, nil
}

// GetOrderHistory returns recently closed orders, newest first.
func (c *BybitClient) GetOrderHistory(symbol string, limit int) ([]model.Order, error) {
	params := url.Values{}
	params.Add("category", category)
	params.Add("symbol", symbol)
	params.Add("limit", strconv.Itoa(limit))

	var result orderListResult
	if err := c.signedGet("/v5/order/history", params, &result); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(result.List))
	for _, p := range result.List {
		orders = append(orders, p.toOrder())
	}
	return orders, nil
}

type positionResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          string `json:"size"`
		AvgPrice      string `json:"avgPrice"`
		UnrealisedPnl string `json:"unrealisedPnl"`
		Leverage      string `json:"leverage"`
	} `json:"list"`
}

func (c *BybitClient) GetPosition(symbol string) (*model.Position, error) {
	params := url.Values{}
	params.Add("category", category)
	params.Add("symbol", symbol)

	var result positionResult
	if err := c.signedGet("/v5/position/list", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return &model.Position{Symbol: symbol}, nil
	}

	p := result.List[0]
	return &model.Position{
		Symbol:        p.Symbol,
		Side:          p.Side,
		Size:          parseFloat(p.Size),
		EntryPrice:    parseFloat(p.AvgPrice),
		UnrealizedPnL: parseFloat(p.UnrealisedPnl),
		Leverage:      parseFloat(p.Leverage),
	}, nil
}

func (c *BybitClient) SetLeverage(symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	body := map[string]interface{}{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	return c.signedPost("/v5/position/set-leverage", body, nil)
}

func mapOrderStatus(status string) model.OrderStatus {
	switch status {
	case "New", "PartiallyFilled", "Untriggered":
		return model.StatusNew
	case "Filled":
		return model.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return model.StatusCancelled
	case "Rejected":
		return model.StatusRejected
	default:
		return model.StatusUnknown
	}
}

// BTCUSDT linear tick size is 0.1, qty step 0.001.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 1, 64)
}

func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', 3, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
