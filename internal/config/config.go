/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	DatabaseURL           string  `mapstructure:"DATABASE_URL"`
	RedisURL              string  `mapstructure:"REDIS_URL"`
	RedisKeyPrefix        string  `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL           string  `mapstructure:"RABBITMQ_URL"`
	MaxTransferAmount     string  `mapstructure:"MAX_TRANSFER_AMOUNT"`
	MaxDailyAmount        string  `mapstructure:"MAX_DAILY_AMOUNT"`
	MaxHourlyTransactions int64   `mapstructure:"MAX_HOURLY_TRANSACTIONS"`
	MaxDailyTransactions  int64   `mapstructure:"MAX_DAILY_TRANSACTIONS"`
	IPRateLimit           int64   `mapstructure:"IP_RATE_LIMIT"`
	IPRateWindowSeconds   int     `mapstructure:"IP_RATE_WINDOW_SECONDS"`
	IdempotencyTTLSeconds int     `mapstructure:"IDEMPOTENCY_TTL_SECONDS"`
	ProcessingTTLSeconds  int     `mapstructure:"PROCESSING_TTL_SECONDS"`
	MaxRetries            int     `mapstructure:"MAX_RETRIES"`
	RetryDelayMs          int     `mapstructure:"RETRY_DELAY_MS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("REDIS_KEY_PREFIX", "transfer")
	viper.SetDefault("MAX_TRANSFER_AMOUNT", "1000000.00")
	viper.SetDefault("MAX_DAILY_AMOUNT", "5000000.00")
	viper.SetDefault("MAX_HOURLY_TRANSACTIONS", 50)
	viper.SetDefault("MAX_DAILY_TRANSACTIONS", 200)
	viper.SetDefault("IP_RATE_LIMIT", 10)
	viper.SetDefault("IP_RATE_WINDOW_SECONDS", 60)
	viper.SetDefault("IDEMPOTENCY_TTL_SECONDS", 86400)
	viper.SetDefault("PROCESSING_TTL_SECONDS", 300)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_DELAY_MS", 1000)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "TRANSFER_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("MAX_TRANSFER_AMOUNT")
	_ = viper.BindEnv("MAX_DAILY_AMOUNT")
	_ = viper.BindEnv("MAX_HOURLY_TRANSACTIONS")
	_ = viper.BindEnv("MAX_DAILY_TRANSACTIONS")
	_ = viper.BindEnv("IP_RATE_LIMIT")
	_ = viper.BindEnv("IP_RATE_WINDOW_SECONDS")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_SECONDS")
	_ = viper.BindEnv("PROCESSING_TTL_SECONDS")
	_ = viper.BindEnv("MAX_RETRIES")
	_ = viper.BindEnv("RETRY_DELAY_MS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "transfer"
	}

	if config.MaxHourlyTransactions <= 0 {
		config.MaxHourlyTransactions = 50
	}
	if config.MaxDailyTransactions <= 0 {
		config.MaxDailyTransactions = 200
	}
	if config.IPRateLimit <= 0 {
		config.IPRateLimit = 10
	}
	if config.IPRateWindowSeconds <= 0 {
		config.IPRateWindowSeconds = 60
	}
	if config.IdempotencyTTLSeconds <= 0 {
		config.IdempotencyTTLSeconds = 86400
	}
	if config.ProcessingTTLSeconds <= 0 {
		config.ProcessingTTLSeconds = 300
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelayMs <= 0 {
		config.RetryDelayMs = 1000
	}

	return
}
