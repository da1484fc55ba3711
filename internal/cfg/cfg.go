package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bybit-trader/internal/common"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Settings is the full configuration surface of the engine and its CLIs.
type Settings struct {
	Key    string `envconfig:"BYBIT_API_KEY" required:"true"`
	Secret string `envconfig:"BYBIT_API_SECRET" required:"true"`

	BaseURL string `envconfig:"BYBIT_BASE_URL" default:"https://api.bybit.com"`
	WsURL   string `envconfig:"BYBIT_WS_URL" default:"wss://stream.bybit.com/v5/public/linear"`

	Symbol   string `envconfig:"SYMBOL" default:"BTCUSDT"`
	Interval string `envconfig:"INTERVAL" default:"1"`
	Limit    int    `envconfig:"LIMIT" default:"200"`

	StopLossPercent    float64 `envconfig:"STOP_LOSS_PERCENT" default:"2"`
	TakeProfitPercent  float64 `envconfig:"TAKE_PROFIT_PERCENT" default:"4"`
	RiskPercent        float64 `envconfig:"RISK_PERCENT" default:"2"`
	MaxDrawdownPercent float64 `envconfig:"MAX_DRAWDOWN_PERCENT" default:"10"`
	TradingFeePercent  float64 `envconfig:"TRADING_FEE_PERCENT" default:"0.04"`

	RiskStateFile  string `envconfig:"RISK_STATE_FILE" default:"risk_state.json"`
	PaperStateFile string `envconfig:"PAPER_STATE_FILE" default:"paper_trading_state.json"`
	DBPath         string `envconfig:"DB_PATH" default:"ohlcv_data.db"`
	JournalPath    string `envconfig:"JOURNAL_PATH"`
	SimLogPath     string `envconfig:"SIM_LOG_PATH" default:"simulation_log.csv"`

	MinLeverage   int `envconfig:"MIN_LEVERAGE" default:"1"`
	MaxLeverage   int `envconfig:"MAX_LEVERAGE" default:"10"`
	FixedLeverage int `envconfig:"FIXED_LEVERAGE" default:"0"`

	RESTTimeout  time.Duration `envconfig:"REST_TIMEOUT" default:"10s"`
	RateLimitRPS float64       `envconfig:"RATE_LIMIT_RPS" default:"10"`
	MetricsPort  int           `envconfig:"METRICS_PORT" default:"8080"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
}

type ConfigFile struct {
	API struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	Trading struct {
		Symbol            string  `yaml:"symbol"`
		StopLossPercent   float64 `yaml:"stopLossPercent"`
		TakeProfitPercent float64 `yaml:"takeProfitPercent"`
		RiskPercent       float64 `yaml:"riskPercent"`
		TradingFeePercent float64 `yaml:"tradingFeePercent"`
		MinLeverage       int     `yaml:"minLeverage"`
		MaxLeverage       int     `yaml:"maxLeverage"`
		FixedLeverage     int     `yaml:"fixedLeverage"`
	} `yaml:"trading"`

	Risk struct {
		MaxDrawdownPercent float64 `yaml:"maxDrawdownPercent"`
		StateFile          string  `yaml:"stateFile"`
	} `yaml:"risk"`

	Data struct {
		DBPath         string `yaml:"dbPath"`
		Interval       string `yaml:"interval"`
		Limit          int    `yaml:"limit"`
		JournalPath    string `yaml:"journalPath"`
		SimLogPath     string `yaml:"simLogPath"`
		PaperStateFile string `yaml:"paperStateFile"`
	} `yaml:"data"`

	System struct {
		MetricsPort  int     `yaml:"metricsPort"`
		RESTTimeout  string  `yaml:"restTimeout"`
		RateLimitRPS float64 `yaml:"rateLimitRPS"`
		LogLevel     string  `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads an optional .env file, then configuration from CONFIG_FILE (YAML
// with environment overrides) or from the environment alone.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 10 * time.Second
	}
	restTimeout = getDurationOrDefault(common.EnvRESTTimeout, restTimeout)

	key := getEnvOrDefault(common.EnvBybitAPIKey, config.API.Key)
	secret := getEnvOrDefault(common.EnvBybitAPISecret, config.API.Secret)
	if key == "" || secret == "" {
		return Settings{}, errors.New(common.ErrMsgAPIKeyRequired)
	}

	settings := Settings{
		Key:     key,
		Secret:  secret,
		BaseURL: getEnvOrDefault(common.EnvBaseURL, orString(config.API.BaseURL, common.DefaultBaseURL)),
		WsURL:   getEnvOrDefault(common.EnvWsURL, orString(config.API.WsURL, common.DefaultWsURL)),

		Symbol:   getEnvOrDefault(common.EnvSymbol, orString(config.Trading.Symbol, common.DefaultSymbol)),
		Interval: getEnvOrDefault(common.EnvInterval, orString(config.Data.Interval, common.DefaultInterval)),
		Limit:    getIntFromEnvOrConfig(common.EnvLimit, config.Data.Limit, common.DefaultLimit),

		StopLossPercent:    getFloatFromEnvOrConfig(common.EnvStopLossPercent, config.Trading.StopLossPercent, common.DefaultStopLossPercent),
		TakeProfitPercent:  getFloatFromEnvOrConfig(common.EnvTakeProfitPercent, config.Trading.TakeProfitPercent, common.DefaultTakeProfitPercent),
		RiskPercent:        getFloatFromEnvOrConfig(common.EnvRiskPercent, config.Trading.RiskPercent, common.DefaultRiskPercent),
		MaxDrawdownPercent: getFloatFromEnvOrConfig(common.EnvMaxDrawdownPercent, config.Risk.MaxDrawdownPercent, common.DefaultMaxDrawdownPercent),
		TradingFeePercent:  getFloatFromEnvOrConfig(common.EnvTradingFeePercent, config.Trading.TradingFeePercent, common.DefaultTradingFeePercent),

		RiskStateFile:  getEnvOrDefault(common.EnvRiskStateFile, orString(config.Risk.StateFile, common.DefaultRiskStateFile)),
		PaperStateFile: getEnvOrDefault(common.EnvPaperStateFile, orString(config.Data.PaperStateFile, common.DefaultPaperStateFile)),
		DBPath:         getEnvOrDefault(common.EnvDBPath, orString(config.Data.DBPath, common.DefaultDBPath)),
		JournalPath:    getEnvOrDefault(common.EnvJournalPath, config.Data.JournalPath),
		SimLogPath:     getEnvOrDefault(common.EnvSimLogPath, orString(config.Data.SimLogPath, common.DefaultSimLogPath)),

		MinLeverage:   getIntFromEnvOrConfig(common.EnvMinLeverage, config.Trading.MinLeverage, common.DefaultMinLeverage),
		MaxLeverage:   getIntFromEnvOrConfig(common.EnvMaxLeverage, config.Trading.MaxLeverage, common.DefaultMaxLeverage),
		FixedLeverage: getIntFromEnvOrConfig(common.EnvFixedLeverage, config.Trading.FixedLeverage, 0),

		RESTTimeout:  restTimeout,
		RateLimitRPS: getFloatFromEnvOrConfig(common.EnvRateLimitRPS, config.System.RateLimitRPS, common.DefaultRateLimitRPS),
		MetricsPort:  getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, "info")),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	var settings Settings
	if err := envconfig.Process("", &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// LeverageRange returns the inclusive bounds used for randomized leverage.
func (s *Settings) LeverageRange() (int, int) {
	return s.MinLeverage, s.MaxLeverage
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Key == "" || settings.Secret == "" {
		return errors.New(common.ErrMsgAPIKeyRequired)
	}
	if settings.BaseURL == "" {
		return errors.New(common.ErrMsgBaseURLRequired)
	}
	if settings.Symbol == "" {
		return errors.New(common.ErrMsgSymbolRequired)
	}

	percents := []struct {
		name  string
		value float64
	}{
		{"stop loss percent", settings.StopLossPercent},
		{"take profit percent", settings.TakeProfitPercent},
		{"risk percent", settings.RiskPercent},
		{"max drawdown percent", settings.MaxDrawdownPercent},
	}
	for _, p := range percents {
		if p.value <= 0 || p.value >= common.MaxPercentValue {
			return fmt.Errorf("%s must be between 0 and 100, got %f", p.name, p.value)
		}
	}
	if settings.TradingFeePercent < 0 || settings.TradingFeePercent >= common.MaxPercentValue {
		return fmt.Errorf("trading fee percent must be between 0 and 100, got %f", settings.TradingFeePercent)
	}

	if settings.MinLeverage < 1 || settings.MaxLeverage > common.MaxLeverageLimit || settings.MinLeverage > settings.MaxLeverage {
		return fmt.Errorf("leverage range must satisfy 1 <= min <= max <= %d, got [%d,%d]",
			common.MaxLeverageLimit, settings.MinLeverage, settings.MaxLeverage)
	}
	if settings.FixedLeverage < 0 || settings.FixedLeverage > common.MaxLeverageLimit {
		return fmt.Errorf("fixed leverage must be between 0 and %d, got %d", common.MaxLeverageLimit, settings.FixedLeverage)
	}

	if settings.Limit <= 0 || settings.Limit > common.MaxKlineLimit {
		return fmt.Errorf("kline limit must be between 1 and %d, got %d", common.MaxKlineLimit, settings.Limit)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.RateLimitRPS <= 0 || settings.RateLimitRPS > common.MaxRateLimitRPS {
		return fmt.Errorf("rate limit must be between 0 and %.0f requests/s, got %f", common.MaxRateLimitRPS, settings.RateLimitRPS)
	}
	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}
	if settings.RiskStateFile == "" {
		return errors.New("risk state file path is required")
	}

	return nil
}
