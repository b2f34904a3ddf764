package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Data      Data      `mapstructure:"data"`
	Detection Detection `mapstructure:"detection"`
	Trading   Trading   `mapstructure:"trading"`
	Quote     Quote     `mapstructure:"quote"`
	Notify    Notify    `mapstructure:"notify"`
	Redis     Redis     `mapstructure:"redis"`
	Runner    Runner    `mapstructure:"runner"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Data describes where snapshot and outlier files live.
// Every folder in Folders is a scope laid out as
// <Root>/<folder>/<VolumeDir|OpenInterestDir|...>.
type Data struct {
	Root             string   `mapstructure:"root" validate:"required"`
	Folders          []string `mapstructure:"folders" validate:"min=1,dive,required"`
	VolumeDir        string   `mapstructure:"volume_dir" validate:"required"`
	OpenInterestDir  string   `mapstructure:"open_interest_dir" validate:"required"`
	VolumeOutlierDir string   `mapstructure:"volume_outlier_dir" validate:"required"`
	OIOutlierDir     string   `mapstructure:"oi_outlier_dir" validate:"required"`
	MarketCapFile    string   `mapstructure:"market_cap_file"`
	Timezone         string   `mapstructure:"timezone" validate:"required"`
}

// Detection holds the thresholds shared by the volume and open-interest detectors.
type Detection struct {
	MinVolume             float64 `mapstructure:"min_volume" validate:"gt=0"`
	MinVolumeIncreasePct  float64 `mapstructure:"min_volume_increase_pct" validate:"gt=0"`
	MinAmountThreshold    float64 `mapstructure:"min_amount_threshold" validate:"gt=0"`
	StockChangeThreshold  float64 `mapstructure:"stock_change_threshold" validate:"gt=0,lte=1"`
	OptionChangeThreshold float64 `mapstructure:"option_change_threshold" validate:"gt=0,lte=1"`
	MinAmountToMarketCap  float64 `mapstructure:"min_amount_to_market_cap" validate:"gte=0,lte=1"`
	ContractMultiplier    float64 `mapstructure:"contract_multiplier" validate:"gt=0"`
	LargeOIChange         float64 `mapstructure:"large_oi_change" validate:"gte=0"`
	Workers               int     `mapstructure:"workers" validate:"gte=1"`
}

// Trading holds the configuration for the decision engine.
type Trading struct {
	InitialCash       float64       `mapstructure:"initial_cash" validate:"gt=0"`
	BuyRatio          float64       `mapstructure:"buy_ratio" validate:"gt=0,lte=1"`
	BullishBuyCount   int           `mapstructure:"bullish_buy_count" validate:"gte=1"`
	BearishSellCount  int           `mapstructure:"bearish_sell_count" validate:"gte=1"`
	StaleAfter        time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	MaxHoldWithoutSig time.Duration `mapstructure:"max_hold_without_signal" validate:"gt=0"`
	PriceSource       string        `mapstructure:"price_source" validate:"oneof=snapshot quote"`
	Strategy          string        `mapstructure:"strategy"`
}

// Quote holds the configuration for the REST quote service.
type Quote struct {
	BaseURL        string        `mapstructure:"base_url"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" validate:"gte=1"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Notify holds the configuration for the chat webhook.
type Notify struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Enabled    bool   `mapstructure:"enabled"`
}

// Redis holds the configuration for the distributed run lock.
type Redis struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Runner controls how often a full cycle runs. Zero means run once and exit.
// APIPort serves the trader's status API while looping; zero disables it.
type Runner struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
	APIPort  int           `mapstructure:"api_port" validate:"gte=0"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN           string        `mapstructure:"dsn" validate:"required"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RetentionDays int           `mapstructure:"retention_days" validate:"gte=0"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the configured timezone used for snapshot file names.
func (d Data) Location() (*time.Location, error) {
	return time.LoadLocation(d.Timezone)
}

// SetDefaults registers the default value of every tunable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.root", ".")
	v.SetDefault("data.folders", []string{"data"})
	v.SetDefault("data.volume_dir", "option_data/volume")
	v.SetDefault("data.open_interest_dir", "option_data/open_interest")
	v.SetDefault("data.volume_outlier_dir", "volume_outlier")
	v.SetDefault("data.oi_outlier_dir", "outlier")
	v.SetDefault("data.market_cap_file", "stock_symbol/symbol_market.csv")
	v.SetDefault("data.timezone", "America/Los_Angeles")

	v.SetDefault("detection.min_volume", 3000)
	v.SetDefault("detection.min_volume_increase_pct", 0.30)
	v.SetDefault("detection.min_amount_threshold", 2_000_000)
	v.SetDefault("detection.stock_change_threshold", 0.01)
	v.SetDefault("detection.option_change_threshold", 0.05)
	v.SetDefault("detection.min_amount_to_market_cap", 0.00001)
	v.SetDefault("detection.contract_multiplier", 100)
	v.SetDefault("detection.large_oi_change", 1000)
	v.SetDefault("detection.workers", 4)

	v.SetDefault("trading.initial_cash", 100_000)
	v.SetDefault("trading.buy_ratio", 0.1)
	v.SetDefault("trading.bullish_buy_count", 2)
	v.SetDefault("trading.bearish_sell_count", 3)
	v.SetDefault("trading.stale_after", 5*time.Minute)
	v.SetDefault("trading.max_hold_without_signal", 24*time.Hour)
	v.SetDefault("trading.price_source", "snapshot")
	v.SetDefault("trading.strategy", "outlier_signal")

	v.SetDefault("quote.rate_limit", 5)       // requests per second
	v.SetDefault("quote.rate_limit_burst", 2) // burst size
	v.SetDefault("quote.timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("runner.api_port", 8081)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "options.db")
	v.SetDefault("database.write_timeout", 30*time.Second)
	v.SetDefault("database.retention_days", 30)
}

// Default returns the configuration built from defaults alone.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	// A missing file is fine: defaults and env still apply.
	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	err = Validate(config)
	return
}

// Validate checks the decoded configuration against its validate tags.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Data.Location(); err != nil {
		return fmt.Errorf("invalid config: data.timezone: %w", err)
	}
	return nil
}
