// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/cleaner"
	"github.com/amirphl/simple-backtest/internal/feed"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "backtest"
symbol: "BTCUSDT"
timeframe: "1h"
from: 2023-01-01
to: 2024-01-01
db_driver: "sqlite"
sqlite_path: "data/backtest.db"
feed:
  name: "binance"
  retry_attempts: 3
  retry_delay: 2s
strategy:
  name: "ma-cross"
  ma_cross: { fast_period: 5, slow_period: 20, history_margin: 10 }
backtest:
  initial_capital: 10000
  commission_rate: 0.001
  slippage_rate: 0.001
  position_fraction: 0.5
sweep_fast: [3, 5, 8, 13]
sweep_slow: [20, 30, 50]
...
Secrets come from the environment (or a .env file): DB_CONN_STR,
TELEGRAM_TOKEN, WALLEX_API_KEY, BINANCE_API_KEY, BINANCE_API_SECRET.
*/

const (
	ModeBacktest = "backtest"
	ModeSweep    = "sweep"
	ModeServe    = "serve"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	dateLayout = "2006-01-02"
)

type Config struct {
	Mode      string    `yaml:"mode"`
	Symbol    string    `yaml:"symbol"`
	Timeframe string    `yaml:"timeframe"`
	Aggregate string    `yaml:"aggregate"`
	From      time.Time `yaml:"from"`
	To        time.Time `yaml:"to"`

	Strategy strategy.Config `yaml:"strategy"`
	Backtest backtest.Config `yaml:"backtest"`
	Cleaner  cleaner.Options `yaml:"cleaner"`
	Feed     feed.Options    `yaml:"feed"`

	DBDriver   string `yaml:"db_driver"`
	DBConnStr  string `yaml:"-"`
	DBMaxOpen  int    `yaml:"db_max_open"`
	DBMaxIdle  int    `yaml:"db_max_idle"`
	SQLitePath string `yaml:"sqlite_path"`

	OutputDir string `yaml:"output_dir"`
	WriteCSV  bool   `yaml:"write_csv"`
	WriteHTML bool   `yaml:"write_html"`

	HTTPAddr string `yaml:"http_addr"`

	SweepFast    []int `yaml:"sweep_fast"`
	SweepSlow    []int `yaml:"sweep_slow"`
	SweepWorkers int   `yaml:"sweep_workers"`

	TelegramToken       string        `yaml:"-"`
	TelegramChatID      string        `yaml:"telegram_chat_id"`
	NotificationRetries int           `yaml:"notification_retries"`
	NotificationDelay   time.Duration `yaml:"notification_delay"`

	LogFile string `yaml:"log_file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	return Config{
		Mode:                ModeBacktest,
		Symbol:              "BTCUSDT",
		Timeframe:           "1h",
		From:                now.AddDate(-1, 0, 0),
		To:                  now,
		Strategy:            strategy.DefaultConfig(),
		Backtest:            backtest.DefaultConfig(),
		Cleaner:             cleaner.DefaultOptions(),
		Feed:                feed.DefaultOptions(),
		DBDriver:            DriverMemory,
		DBMaxOpen:           10,
		DBMaxIdle:           5,
		SQLitePath:          "data/backtest.db",
		OutputDir:           "output",
		WriteCSV:            true,
		HTTPAddr:            ":8080",
		SweepFast:           []int{3, 5, 8, 13},
		SweepSlow:           []int{20, 30, 50},
		NotificationRetries: 3,
		NotificationDelay:   5 * time.Second,
		LogFile:             "simple-backtest.log",
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// command line flags in args and the environment, in that order.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("simple-backtest", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Path to a .env file with secrets")
	mode := fs.String("mode", cfg.Mode, "Mode: backtest or sweep or serve")
	symbol := fs.String("symbol", cfg.Symbol, "Trading symbol")
	timeframe := fs.String("timeframe", cfg.Timeframe, "Candle timeframe")
	aggregate := fs.String("aggregate", "", "Optional larger timeframe to aggregate candles into")
	from := fs.String("from", cfg.From.Format(dateLayout), "Backtest start date (YYYY-MM-DD)")
	to := fs.String("to", cfg.To.Format(dateLayout), "Backtest end date (YYYY-MM-DD), exclusive")
	strategyName := fs.String("strategy", cfg.Strategy.Name, "Strategy: "+strings.Join(strategy.Names(), " or "))
	fast := fs.Int("fast", cfg.Strategy.MACross.FastPeriod, "MA cross fast period")
	slow := fs.Int("slow", cfg.Strategy.MACross.SlowPeriod, "MA cross slow period")
	capital := fs.Float64("capital", cfg.Backtest.InitialCapital, "Initial capital")
	commission := fs.Float64("commission", cfg.Backtest.CommissionRate, "Commission rate per fill (e.g., 0.001 for 0.1%)")
	slippage := fs.Float64("slippage", cfg.Backtest.SlippageRate, "Slippage rate per fill (e.g., 0.001 for 0.1%)")
	fraction := fs.Float64("position-fraction", cfg.Backtest.PositionFraction, "Fraction of capital committed on each BUY")
	source := fs.String("feed", cfg.Feed.Name, "Candle source: binance or wallex")
	dbDriver := fs.String("db", cfg.DBDriver, "Storage: memory or sqlite or postgres")
	sqlitePath := fs.String("sqlite-path", cfg.SQLitePath, "SQLite database file")
	outputDir := fs.String("out", cfg.OutputDir, "Directory for CSV and HTML reports")
	writeHTML := fs.Bool("html", cfg.WriteHTML, "Write an HTML chart report")
	writeCSV := fs.Bool("csv", cfg.WriteCSV, "Write CSV reports")
	httpAddr := fs.String("addr", cfg.HTTPAddr, "HTTP listen address for serve mode")
	sweepFast := fs.String("sweep-fast", joinInts(cfg.SweepFast), "Comma-separated fast periods for sweep mode")
	sweepSlow := fs.String("sweep-slow", joinInts(cfg.SweepSlow), "Comma-separated slow periods for sweep mode")
	workers := fs.Int("workers", cfg.SweepWorkers, "Sweep workers, 0 for one per CPU")
	telegramChatID := fs.String("telegram-chat", "", "Telegram chat ID for notifications")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file %s: %w", *envFile, err)
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Flags given explicitly win over the file.
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "symbol":
			cfg.Symbol = *symbol
		case "timeframe":
			cfg.Timeframe = *timeframe
		case "aggregate":
			cfg.Aggregate = *aggregate
		case "from":
			cfg.From, parseErr = parseDate("from", *from, parseErr)
		case "to":
			cfg.To, parseErr = parseDate("to", *to, parseErr)
		case "strategy":
			cfg.Strategy.Name = *strategyName
		case "fast":
			cfg.Strategy.MACross.FastPeriod = *fast
		case "slow":
			cfg.Strategy.MACross.SlowPeriod = *slow
		case "capital":
			cfg.Backtest.InitialCapital = *capital
		case "commission":
			cfg.Backtest.CommissionRate = *commission
		case "slippage":
			cfg.Backtest.SlippageRate = *slippage
		case "position-fraction":
			cfg.Backtest.PositionFraction = *fraction
		case "feed":
			cfg.Feed.Name = *source
		case "db":
			cfg.DBDriver = *dbDriver
		case "sqlite-path":
			cfg.SQLitePath = *sqlitePath
		case "out":
			cfg.OutputDir = *outputDir
		case "html":
			cfg.WriteHTML = *writeHTML
		case "csv":
			cfg.WriteCSV = *writeCSV
		case "addr":
			cfg.HTTPAddr = *httpAddr
		case "sweep-fast":
			cfg.SweepFast, parseErr = parseInts("sweep-fast", *sweepFast, parseErr)
		case "sweep-slow":
			cfg.SweepSlow, parseErr = parseInts("sweep-slow", *sweepSlow, parseErr)
		case "workers":
			cfg.SweepWorkers = *workers
		case "telegram-chat":
			cfg.TelegramChatID = *telegramChatID
		}
	})
	if parseErr != nil {
		return Config{}, parseErr
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.DBConnStr = getEnv("DB_CONN_STR", c.DBConnStr)
	c.TelegramToken = getEnv("TELEGRAM_TOKEN", c.TelegramToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)
	switch strings.ToLower(c.Feed.Name) {
	case "wallex":
		c.Feed.APIKey = getEnv("WALLEX_API_KEY", c.Feed.APIKey)
	default:
		c.Feed.APIKey = getEnv("BINANCE_API_KEY", c.Feed.APIKey)
		c.Feed.APISecret = getEnv("BINANCE_API_SECRET", c.Feed.APISecret)
	}
}

// Validate checks every field the selected mode depends on.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeBacktest, ModeSweep, ModeServe:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DBConnStr == "" {
			return errors.New("DB_CONN_STR is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	if c.Mode == ModeServe {
		return nil
	}

	if c.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !tfutils.IsValidTimeframe(c.Timeframe) {
		return fmt.Errorf("%w: %s", tfutils.ErrUnsupportedTimeframe, c.Timeframe)
	}
	if c.Aggregate != "" && tfutils.TimeframeMillis(c.Aggregate) <= tfutils.TimeframeMillis(c.Timeframe) {
		return fmt.Errorf("aggregate timeframe %q must be larger than %s", c.Aggregate, c.Timeframe)
	}
	if !c.To.After(c.From) {
		return fmt.Errorf("to %s must be after from %s", c.To.Format(dateLayout), c.From.Format(dateLayout))
	}
	if c.Mode == ModeSweep && (len(c.SweepFast) == 0 || len(c.SweepSlow) == 0) {
		return errors.New("sweep mode needs sweep-fast and sweep-slow periods")
	}
	return nil
}

// BacktestConfig returns the engine configuration.
func (c Config) BacktestConfig() backtest.Config {
	return c.Backtest
}

// StrategyConfig returns the strategy selection and parameters.
func (c Config) StrategyConfig() strategy.Config {
	return c.Strategy
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDate(name, value string, prev error) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil && prev == nil {
		prev = fmt.Errorf("invalid -%s %q: %w", name, value, err)
	}
	return t, prev
}

func parseInts(name, value string, prev error) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			if prev == nil {
				prev = fmt.Errorf("invalid -%s %q: %w", name, value, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out, prev
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
