/**
 * @description
 * This package handles the configuration management for the ledger service.
 * It uses the Viper library to read configuration from environment variables
 * and an optional .env file, providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/corebank/ledger-service/internal/money"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger service.
// These values are loaded from environment variables.
type Config struct {
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	LedgerEventExchange        string `mapstructure:"LEDGER_EVENT_EXCHANGE"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix             string `mapstructure:"REDIS_KEY_PREFIX"`
	ExternalTransferLimitCents int64  `mapstructure:"EXTERNAL_TRANSFER_LIMIT_CENTS"`
	ConflictMaxRetries         int    `mapstructure:"CONFLICT_MAX_RETRIES"`
	IdempotencyTTLMinutes      int    `mapstructure:"IDEMPOTENCY_TTL_MINUTES"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file at the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 5000.00 in cents: the single-transfer ceiling for external transfers.
	viper.SetDefault("LEDGER_EVENT_EXCHANGE", "ledger_events")
	viper.SetDefault("REDIS_KEY_PREFIX", "ledger:idempotency")
	viper.SetDefault("EXTERNAL_TRANSFER_LIMIT_CENTS", 500000)
	viper.SetDefault("CONFLICT_MAX_RETRIES", 3)
	viper.SetDefault("IDEMPOTENCY_TTL_MINUTES", 1440)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("EXTERNAL_TRANSFER_LIMIT_CENTS")
	_ = viper.BindEnv("EXTERNAL_TRANSFER_LIMIT")
	_ = viper.BindEnv("CONFLICT_MAX_RETRIES")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// Allow specifying the limit in whole currency units via EXTERNAL_TRANSFER_LIMIT.
	if viper.IsSet("EXTERNAL_TRANSFER_LIMIT") {
		limitStr := strings.TrimSpace(viper.GetString("EXTERNAL_TRANSFER_LIMIT"))
		if limitStr != "" {
			limitCents, parseErr := money.ParseCents(limitStr)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid EXTERNAL_TRANSFER_LIMIT\" value=%q err=%v", limitStr, parseErr)
			} else {
				config.ExternalTransferLimitCents = limitCents
			}
		}
	}

	if config.ExternalTransferLimitCents <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive external transfer limit configured; using default\" limit_cents=%d", config.ExternalTransferLimitCents)
		config.ExternalTransferLimitCents = 500000
	}
	if config.ConflictMaxRetries < 0 {
		config.ConflictMaxRetries = 0
	}
	if config.IdempotencyTTLMinutes <= 0 {
		config.IdempotencyTTLMinutes = 1440
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "ledger:idempotency"
	}

	return
}
