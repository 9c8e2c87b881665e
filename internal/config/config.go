// Package config loads process configuration from defaults, a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a string ("1s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Backtest BacktestConfig `toml:"backtest"`
	Exchange ExchangeConfig `toml:"exchange"`
	Queue    QueueConfig    `toml:"queue"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StorageConfig selects where candles and results live.
type StorageConfig struct {
	DataDir       string `toml:"data_dir"`           // candle cache directory
	ResultsDir    string `toml:"results_dir"`        // result files directory
	PostgresDSN   string `toml:"postgres_dsn"`       // optional result store
	PostgresConns int32  `toml:"postgres_max_conns"` // 0 keeps the pgx default
	ClickhouseDSN string `toml:"clickhouse_dsn"`     // optional candle mirror
	UseMemory     bool   `toml:"use_memory"`         // keep candles and results in memory only
}

// BacktestConfig configures sweeps and the orchestrator.
type BacktestConfig struct {
	Workers        int                  `toml:"workers"`
	ReportInterval Duration             `toml:"report_interval"`
	MinTrades      int                  `toml:"min_trades"` // affined filter: closed trades > MinTrades
	StartMoney     float64              `toml:"start_money"`
	Market         string               `toml:"market"`
	Patterns       []string             `toml:"patterns"`
	TopN           int                  `toml:"top_n"`
	Sweep          domain.StrategySweep `toml:"sweep"`
}

// ExchangeConfig configures the Binance client and the download walk.
type ExchangeConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	SecretKey  string `toml:"secret_key"`
	Batches    int    `toml:"batches"`
	BatchLimit int    `toml:"batch_limit"`
}

// QueueConfig configures the job queues.
type QueueConfig struct {
	PollInterval Duration `toml:"poll_interval"` // fallback wake-up, 0 disables
	MaxLen       int      `toml:"max_len"`       // 0 means unbounded
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Storage: StorageConfig{
			DataDir:    "data",
			ResultsDir: "results",
		},
		Backtest: BacktestConfig{
			Workers:        8,
			ReportInterval: Duration{time.Second},
			MinTrades:      100,
			StartMoney:     100,
			Market:         string(domain.MarketSpot),
			Patterns:       []string{string(domain.PatternW), string(domain.PatternM)},
			TopN:           20,
			Sweep:          domain.DefaultSweep(),
		},
		Exchange: ExchangeConfig{
			Batches:    100,
			BatchLimit: market.MaxKlineLimit,
		},
		Queue: QueueConfig{
			PollInterval: Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default overridden by the TOML file at path (if path is not
// empty) and then by environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env files into the process environment. Missing files are
// skipped; variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"HTTP_ADDR":          &c.Server.Addr,
		"DATA_DIR":           &c.Storage.DataDir,
		"RESULTS_DIR":        &c.Storage.ResultsDir,
		"POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":     &c.Storage.ClickhouseDSN,
		"MARKET_TYPE":        &c.Backtest.Market,
		"BINANCE_BASE_URL":   &c.Exchange.BaseURL,
		"BINANCE_API_KEY":    &c.Exchange.APIKey,
		"BINANCE_SECRET_KEY": &c.Exchange.SecretKey,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"WORKERS":             &c.Backtest.Workers,
		"MIN_TRADES":          &c.Backtest.MinTrades,
		"DOWNLOAD_BATCHES":    &c.Exchange.Batches,
		"DOWNLOAD_BATCH_SIZE": &c.Exchange.BatchLimit,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("START_MONEY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: START_MONEY: %v", ErrInvalidConfig, err)
		}
		c.Backtest.StartMoney = f
	}
	if v, ok := os.LookupEnv("USE_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: USE_MEMORY: %v", ErrInvalidConfig, err)
		}
		c.Storage.UseMemory = b
	}
	if v, ok := os.LookupEnv("PATTERNS"); ok {
		c.Backtest.Patterns = splitList(v)
	}

	return nil
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Storage.DataDir != "", "storage.data_dir is required")
	check(c.Storage.ResultsDir != "", "storage.results_dir is required")
	check(c.Backtest.Workers > 0, "backtest.workers must be > 0, got %d", c.Backtest.Workers)
	check(c.Backtest.ReportInterval.Duration > 0, "backtest.report_interval must be > 0")
	check(c.Backtest.MinTrades >= 0, "backtest.min_trades must be >= 0")
	check(c.Backtest.StartMoney > 0, "backtest.start_money must be > 0")
	check(c.MarketType().IsValid(), "backtest.market %q is not spot or futures", c.Backtest.Market)
	check(len(c.Backtest.Patterns) > 0, "backtest.patterns is empty")
	for _, p := range c.PatternFamilies() {
		check(p.IsValid(), "backtest.patterns: unknown pattern %q", p)
	}
	if err := c.Backtest.Sweep.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backtest.sweep: %w", err))
	}
	check(c.Exchange.Batches > 0, "exchange.batches must be > 0")
	check(c.Exchange.BatchLimit > 0 && c.Exchange.BatchLimit <= market.MaxKlineLimit,
		"exchange.batch_limit must be in 1..%d", market.MaxKlineLimit)
	check(c.Queue.PollInterval.Duration >= 0, "queue.poll_interval must be >= 0")
	check(c.Queue.MaxLen >= 0, "queue.max_len must be >= 0")
	check(c.Storage.PostgresConns >= 0, "storage.postgres_max_conns must be >= 0")
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json, got %q", c.Log.Format)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// MarketType returns the configured market.
func (c *Config) MarketType() domain.MarketType {
	return domain.MarketType(strings.ToLower(c.Backtest.Market))
}

// PatternFamilies returns the configured pattern families.
func (c *Config) PatternFamilies() []domain.PatternFamily {
	out := make([]domain.PatternFamily, len(c.Backtest.Patterns))
	for i, p := range c.Backtest.Patterns {
		out[i] = domain.PatternFamily(strings.ToUpper(p))
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
