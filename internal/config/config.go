package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	DataAPI DataAPIConfig `mapstructure:"data_api"`
	Clob    ClobConfig    `mapstructure:"clob"`
	Session SessionConfig `mapstructure:"session"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Cron    CronConfig    `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type DataAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
	TradeLimit     int           `mapstructure:"trade_limit"`
}

type ClobConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	Passphrase   string        `mapstructure:"passphrase"`
	Address      string        `mapstructure:"address"`
	SignRequests bool          `mapstructure:"sign_requests"`
}

// SessionConfig describes one copy-trading session: whose trades to mirror
// and how the copies are sized against the budget.
type SessionConfig struct {
	TargetAddress      string        `mapstructure:"target_address"`
	BudgetUSD          float64       `mapstructure:"budget_usd"`
	CopyRatio          float64       `mapstructure:"copy_ratio"`
	MaxTradeUSD        float64       `mapstructure:"max_trade_usd"`
	MinOrderUSD        float64       `mapstructure:"min_order_usd"`
	Reinvest           bool          `mapstructure:"reinvest"`
	AllowAddToPosition bool          `mapstructure:"allow_add_to_position"`
	DryRun             bool          `mapstructure:"dry_run"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type CronConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	PortfolioSnapshot string `mapstructure:"portfolio_snapshot"`
	SummaryLog        string `mapstructure:"summary_log"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("data_api.base_url", "https://data-api.polymarket.com")
	v.SetDefault("data_api.timeout", "15s")
	v.SetDefault("data_api.requests_per_sec", 5)
	v.SetDefault("data_api.burst", 10)
	v.SetDefault("data_api.trade_limit", 100)
	v.SetDefault("clob.base_url", "https://clob.polymarket.com")
	v.SetDefault("clob.timeout", "15s")
	v.SetDefault("clob.sign_requests", false)
	v.SetDefault("session.budget_usd", 100)
	v.SetDefault("session.copy_ratio", 0.1)
	v.SetDefault("session.max_trade_usd", 20)
	v.SetDefault("session.min_order_usd", 1.0)
	v.SetDefault("session.reinvest", false)
	v.SetDefault("session.allow_add_to_position", true)
	v.SetDefault("session.dry_run", true)
	// Polygon block time; polling faster than this buys nothing.
	v.SetDefault("session.poll_interval", "2s")
	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.url", "")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.portfolio_snapshot", "@every 1h")
	v.SetDefault("cron.summary_log", "@every 5m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
