package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Bybit API
	APIKey    string
	APISecret string
	Testnet   bool

	Symbol   string
	Leverage int

	// Grid
	GridLevels      int
	GridRangePct    float64
	UseDynamicRange bool
	MinRangePct     float64
	MaxRangePct     float64
	ATRMultiplier   float64
	ATRPeriod       int
	MakerFee        float64
	OrderOffsetPct  float64

	// Loop timing
	CheckInterval         time.Duration
	GridUpdateInterval    time.Duration
	PositionCheckInterval time.Duration

	// Risk
	DailyLossLimit    float64
	MaxDrawdown       float64
	DailyProfitTarget float64
	MaxPositionRatio  float64

	// Logging
	LogLevel string
	LogDir   string

	// Telegram
	TelegramToken  string
	TelegramChatID string

	// Metrics
	MetricsListenAddr string
}

func Load() (*Config, error) {
	// .env is optional; real deployments may inject plain env vars.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.APIKey = os.Getenv("BYBIT_API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("BYBIT_API_KEY is required")
	}

	cfg.APISecret = os.Getenv("BYBIT_API_SECRET")
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("BYBIT_API_SECRET is required")
	}

	cfg.Testnet = os.Getenv("BYBIT_TESTNET") != "false"

	cfg.Symbol = os.Getenv("SYMBOL")
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}

	cfg.Leverage, err = parseIntDefault(os.Getenv("LEVERAGE"), "LEVERAGE", 2)
	if err != nil {
		return nil, err
	}

	cfg.GridLevels, err = parseIntDefault(os.Getenv("GRID_LEVELS"), "GRID_LEVELS", 10)
	if err != nil {
		return nil, err
	}

	cfg.GridRangePct, err = parseFloatDefault(os.Getenv("GRID_RANGE_PCT"), "GRID_RANGE_PCT", 0.02)
	if err != nil {
		return nil, err
	}

	cfg.UseDynamicRange = os.Getenv("USE_DYNAMIC_RANGE") != "false"

	cfg.MinRangePct, err = parseFloatDefault(os.Getenv("MIN_RANGE_PCT"), "MIN_RANGE_PCT", 0.01)
	if err != nil {
		return nil, err
	}

	cfg.MaxRangePct, err = parseFloatDefault(os.Getenv("MAX_RANGE_PCT"), "MAX_RANGE_PCT", 0.05)
	if err != nil {
		return nil, err
	}

	cfg.ATRMultiplier, err = parseFloatDefault(os.Getenv("ATR_MULTIPLIER"), "ATR_MULTIPLIER", 2.0)
	if err != nil {
		return nil, err
	}

	cfg.ATRPeriod, err = parseIntDefault(os.Getenv("ATR_PERIOD"), "ATR_PERIOD", 14)
	if err != nil {
		return nil, err
	}

	cfg.MakerFee, err = parseFloatDefault(os.Getenv("MAKER_FEE"), "MAKER_FEE", 0.0002)
	if err != nil {
		return nil, err
	}

	cfg.OrderOffsetPct, err = parseFloatDefault(os.Getenv("ORDER_OFFSET_PCT"), "ORDER_OFFSET_PCT", 0.0005)
	if err != nil {
		return nil, err
	}

	checkSec, err := parseIntDefault(os.Getenv("CHECK_INTERVAL_SEC"), "CHECK_INTERVAL_SEC", 60)
	if err != nil {
		return nil, err
	}
	cfg.CheckInterval = time.Duration(checkSec) * time.Second

	updateSec, err := parseIntDefault(os.Getenv("GRID_UPDATE_INTERVAL_SEC"), "GRID_UPDATE_INTERVAL_SEC", 3600)
	if err != nil {
		return nil, err
	}
	cfg.GridUpdateInterval = time.Duration(updateSec) * time.Second

	posSec, err := parseIntDefault(os.Getenv("POSITION_CHECK_INTERVAL_SEC"), "POSITION_CHECK_INTERVAL_SEC", 300)
	if err != nil {
		return nil, err
	}
	cfg.PositionCheckInterval = time.Duration(posSec) * time.Second

	cfg.DailyLossLimit, err = parseFloatDefault(os.Getenv("DAILY_LOSS_LIMIT"), "DAILY_LOSS_LIMIT", 0.05)
	if err != nil {
		return nil, err
	}

	cfg.MaxDrawdown, err = parseFloatDefault(os.Getenv("MAX_DRAWDOWN"), "MAX_DRAWDOWN", 0.15)
	if err != nil {
		return nil, err
	}

	cfg.DailyProfitTarget, err = parseFloatDefault(os.Getenv("DAILY_PROFIT_TARGET"), "DAILY_PROFIT_TARGET", 0.03)
	if err != nil {
		return nil, err
	}

	cfg.MaxPositionRatio, err = parseFloatDefault(os.Getenv("MAX_POSITION_RATIO"), "MAX_POSITION_RATIO", 0.5)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	cfg.LogDir = os.Getenv("LOG_DIR")
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	cfg.MetricsListenAddr = os.Getenv("METRICS_LISTEN_ADDR")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the trading parameter bounds. Out-of-range values are
// fatal before any order is placed.
func (c *Config) Validate() error {
	if c.GridLevels < 5 || c.GridLevels > 100 {
		return fmt.Errorf("GRID_LEVELS must be between 5 and 100, got %d", c.GridLevels)
	}
	if c.Leverage < 1 || c.Leverage > 10 {
		return fmt.Errorf("LEVERAGE must be between 1 and 10, got %d", c.Leverage)
	}
	if c.GridRangePct < 0.01 || c.GridRangePct > 0.20 {
		return fmt.Errorf("GRID_RANGE_PCT must be between 0.01 and 0.20, got %g", c.GridRangePct)
	}
	if c.MinRangePct <= 0 || c.MaxRangePct <= 0 || c.MinRangePct > c.MaxRangePct {
		return fmt.Errorf("invalid dynamic range bounds: min=%g max=%g", c.MinRangePct, c.MaxRangePct)
	}
	if c.MaxPositionRatio < 0.1 || c.MaxPositionRatio > 1.0 {
		return fmt.Errorf("MAX_POSITION_RATIO must be between 0.1 and 1.0, got %g", c.MaxPositionRatio)
	}
	if c.DailyLossLimit < 0.01 || c.DailyLossLimit > 0.20 {
		return fmt.Errorf("DAILY_LOSS_LIMIT must be between 0.01 and 0.20, got %g", c.DailyLossLimit)
	}
	if c.MaxDrawdown <= 0 || c.MaxDrawdown > 0.5 {
		return fmt.Errorf("MAX_DRAWDOWN must be between 0 and 0.5, got %g", c.MaxDrawdown)
	}
	if c.ATRPeriod < 2 {
		return fmt.Errorf("ATR_PERIOD must be at least 2, got %d", c.ATRPeriod)
	}
	return nil
}

func parseFloatDefault(value, name string, def float64) (float64, error) {
	if value == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return f, nil
}

func parseIntDefault(value, name string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return i, nil
}
