package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Trading  Trading  `mapstructure:"trading"`
	Session  Session  `mapstructure:"session"`
	Broker   Broker   `mapstructure:"broker"`
	Feed     Feed     `mapstructure:"feed"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Database Database `mapstructure:"database"`
}

// Trading holds the configuration for the decision engine.
type Trading struct {
	Symbol               string  `mapstructure:"symbol"`
	ContractCount        int     `mapstructure:"contract_count"`
	ContractMultiplier   int     `mapstructure:"contract_multiplier"`
	CycleInterval        int     `mapstructure:"cycle_interval"`
	ProfitTargetFraction float64 `mapstructure:"profit_target_fraction"`
	StopLossFraction     float64 `mapstructure:"stop_loss_fraction"`
	MAWindow             int     `mapstructure:"ma_window"`
	DryRun               bool    `mapstructure:"dry_run"`
}

// Session describes the trading window. Open and Close are wall-clock
// times in HH:MM form, interpreted in Timezone.
type Session struct {
	Open               string `mapstructure:"open"`
	Close              string `mapstructure:"close"`
	CloseBufferMinutes int    `mapstructure:"close_buffer_minutes"`
	Timezone           string `mapstructure:"timezone"`
}

// Broker holds the configuration for the order gateway REST API.
type Broker struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	OrderTimeout   int     `mapstructure:"order_timeout"`
}

// Feed holds the configuration for the market data source.
type Feed struct {
	Provider string `mapstructure:"provider"`
	WsURL    string `mapstructure:"ws_url"`
}

// Server holds the configuration for the reporting API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Metrics holds the configuration for the Prometheus endpoint.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("trading.contract_count", 1)
	viper.SetDefault("trading.contract_multiplier", 100)
	viper.SetDefault("trading.cycle_interval", 60) // seconds
	viper.SetDefault("trading.profit_target_fraction", 0.5)
	viper.SetDefault("trading.stop_loss_fraction", 2.0)
	viper.SetDefault("trading.ma_window", 20)
	viper.SetDefault("session.open", "09:30")
	viper.SetDefault("session.close", "16:00")
	viper.SetDefault("session.close_buffer_minutes", 15)
	viper.SetDefault("session.timezone", "America/New_York")
	viper.SetDefault("broker.rate_limit", 10)      // requests per second
	viper.SetDefault("broker.rate_limit_burst", 5) // burst size
	viper.SetDefault("broker.order_timeout", 10)   // seconds
	viper.SetDefault("feed.provider", "stream")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
