package common

// Trading symbols
const (
	BTCUSDTSymbol = "BTCUSDT"
	ETHUSDTSymbol = "ETHUSDT"
)

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvBybitAPIKey        = "BYBIT_API_KEY"
	EnvBybitAPISecret     = "BYBIT_API_SECRET"
	EnvBaseURL            = "BYBIT_BASE_URL"
	EnvWsURL              = "BYBIT_WS_URL"
	EnvSymbol             = "SYMBOL"
	EnvInterval           = "INTERVAL"
	EnvLimit              = "LIMIT"
	EnvStopLossPercent    = "STOP_LOSS_PERCENT"
	EnvTakeProfitPercent  = "TAKE_PROFIT_PERCENT"
	EnvRiskPercent        = "RISK_PERCENT"
	EnvMaxDrawdownPercent = "MAX_DRAWDOWN_PERCENT"
	EnvTradingFeePercent  = "TRADING_FEE_PERCENT"
	EnvRiskStateFile      = "RISK_STATE_FILE"
	EnvPaperStateFile     = "PAPER_STATE_FILE"
	EnvDBPath             = "DB_PATH"
	EnvJournalPath        = "JOURNAL_PATH"
	EnvSimLogPath         = "SIM_LOG_PATH"
	EnvMinLeverage        = "MIN_LEVERAGE"
	EnvMaxLeverage        = "MAX_LEVERAGE"
	EnvFixedLeverage      = "FIXED_LEVERAGE"
	EnvRESTTimeout        = "REST_TIMEOUT"
	EnvRateLimitRPS       = "RATE_LIMIT_RPS"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultBaseURL            = "https://api.bybit.com"
	DefaultWsURL              = "wss://stream.bybit.com/v5/public/linear"
	DefaultSymbol             = BTCUSDTSymbol
	DefaultInterval           = "1"
	DefaultLimit              = 200
	DefaultStopLossPercent    = 2.0
	DefaultTakeProfitPercent  = 4.0
	DefaultRiskPercent        = 2.0
	DefaultMaxDrawdownPercent = 10.0
	DefaultTradingFeePercent  = 0.04
	DefaultRiskStateFile      = "risk_state.json"
	DefaultPaperStateFile     = "paper_trading_state.json"
	DefaultDBPath             = "ohlcv_data.db"
	DefaultSimLogPath         = "simulation_log.csv"
	DefaultMinLeverage        = 1
	DefaultMaxLeverage        = 10
	DefaultMetricsPort        = 8080
	DefaultRateLimitRPS       = 10.0
)

// Bybit v5 request constants
const (
	CategoryLinear    = "linear"
	AccountUnified    = "UNIFIED"
	MarginRegular     = "REGULAR"
	OrderTypeMarket   = "Market"
	TimeInForceGTC    = "GoodTillCancel"
	SideBuy           = "Buy"
	SideSell          = "Sell"
	RecvWindow        = "5000"
	QuoteCoin         = "USDT"
	DefaultPaperFunds = 100.0
)

// Common error messages
const (
	ErrMsgAPIKeyRequired  = "API key and secret are required"
	ErrMsgBaseURLRequired = "base URL is required"
	ErrMsgSymbolRequired  = "trading symbol is required"
)

// Validation constants
const (
	MaxPercentValue  = 100.0
	MaxLeverageLimit = 100
	MinMetricsPort   = 1024
	MaxMetricsPort   = 65535
	MaxKlineLimit    = 1000
	MaxRateLimitRPS  = 100.0
	DefaultMaxClose  = 100000.0
)
