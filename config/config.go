package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// PostgreSQL configuration
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

	// Redis configuration
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Cache behaviour
	CacheTTL         time.Duration `mapstructure:"CACHE_TTL"`
	NegativeCacheTTL time.Duration `mapstructure:"NEGATIVE_CACHE_TTL"`
	PopulateTimeout  time.Duration `mapstructure:"POPULATE_TIMEOUT"`

	// Catalog behaviour
	DefaultPageSize int `mapstructure:"DEFAULT_PAGE_SIZE"`

	// Checkout behaviour
	CheckoutMaxRetries int `mapstructure:"CHECKOUT_MAX_RETRIES"`

	// RabbitMQ configuration. An empty URL disables event publishing.
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	StockExchangeName string `mapstructure:"STOCK_EXCHANGE_NAME"`
	StockRoutingKey   string `mapstructure:"STOCK_ROUTING_KEY"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads configuration from file or environment variables.
func Load(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "intershop")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "intershop")
	viper.SetDefault("DB_SSL_MODE", "disable")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("CACHE_TTL", time.Minute)
	viper.SetDefault("NEGATIVE_CACHE_TTL", 5*time.Second)
	viper.SetDefault("POPULATE_TIMEOUT", 2*time.Second)

	viper.SetDefault("DEFAULT_PAGE_SIZE", 10)
	viper.SetDefault("CHECKOUT_MAX_RETRIES", 3)

	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("STOCK_EXCHANGE_NAME", "intershop.stock")
	viper.SetDefault("STOCK_ROUTING_KEY", "stock.changed")

	viper.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)

	if err = viper.ReadInConfig(); err == nil {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		log.Info().Msg("No config file found, using environment variables and defaults.")
		err = nil
	} else {
		log.Error().Err(err).Msg("Error reading config file")
		return
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = viper.Unmarshal(&config)
	return
}
