package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"candle-pattern-lab/internal/config"
	"candle-pattern-lab/internal/logging"
)

// CommonFlags are the flags shared by every command. Flags that are set
// override the config file and the environment.
type CommonFlags struct {
	ConfigPath    string
	EnvFiles      []string
	UseMemory     bool
	DataDir       string
	ResultsDir    string
	PostgresDSN   string
	ClickhouseDSN string
	Market        string
	LogLevel      string
}

// Register adds the common flags to cmd as persistent flags.
func (f *CommonFlags) Register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&f.ConfigPath, "config", "", "TOML config file")
	fs.StringSliceVar(&f.EnvFiles, "env-file", []string{".env"}, "Env files loaded before reading the environment")
	fs.BoolVar(&f.UseMemory, "use-memory", false, "Keep candles and results in memory")
	fs.StringVar(&f.DataDir, "data-dir", "", "Candle cache directory")
	fs.StringVar(&f.ResultsDir, "results-dir", "", "Directory for result files")
	fs.StringVar(&f.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string for run results")
	fs.StringVar(&f.ClickhouseDSN, "clickhouse-dsn", "", "ClickHouse connection string for the candle mirror")
	fs.StringVar(&f.Market, "market", "", "Market type: spot or futures")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Load builds the configuration (defaults, config file, environment, flags)
// and the logger it describes.
func (f *CommonFlags) Load(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadEnvFiles(f.EnvFiles...); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("use-memory") {
		cfg.Storage.UseMemory = f.UseMemory
	}
	if fs.Changed("data-dir") {
		cfg.Storage.DataDir = f.DataDir
	}
	if fs.Changed("results-dir") {
		cfg.Storage.ResultsDir = f.ResultsDir
	}
	if fs.Changed("postgres-dsn") {
		cfg.Storage.PostgresDSN = f.PostgresDSN
	}
	if fs.Changed("clickhouse-dsn") {
		cfg.Storage.ClickhouseDSN = f.ClickhouseDSN
	}
	if fs.Changed("market") {
		cfg.Backtest.Market = f.Market
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
