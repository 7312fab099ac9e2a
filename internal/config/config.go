/**
 * @description
 * This file handles the configuration management for the camfinder server. It
 * uses the 'viper' library to load configuration from environment variables,
 * providing a centralized and consistent way to manage application settings.
 * Plans and wallets are configured as JSON blobs so deployments can change
 * the price table without a rebuild.
 */
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
)

// Plan describes a purchasable subscription period shown to clients.
type Plan struct {
	Months int    `json:"months"`
	Price  string `json:"price"`
}

// Config holds all configuration for the application.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	AMQPURL        string `mapstructure:"AMQP_URL"`
	AdminKey       string `mapstructure:"ADMIN_KEY"`
	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET"`
	FreeAttempts   int    `mapstructure:"FREE_ATTEMPTS"`
	SweepSchedule  string `mapstructure:"LAPSE_SWEEP_SCHEDULE"`
	PlansJSON      string `mapstructure:"PLANS_JSON"`
	WalletsJSON    string `mapstructure:"WALLETS_JSON"`

	Plans   map[string]Plan   `mapstructure:"-"`
	Wallets map[string]string `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("FREE_ATTEMPTS", 3)
	viper.SetDefault("LAPSE_SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("PLANS_JSON", `{"1 month":{"months":1,"price":""},"3 months":{"months":3,"price":""},"12 months":{"months":12,"price":""}}`)
	viper.SetDefault("WALLETS_JSON", `{}`)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AMQP_URL")
	_ = viper.BindEnv("ADMIN_KEY")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("FREE_ATTEMPTS")
	_ = viper.BindEnv("LAPSE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("PLANS_JSON")
	_ = viper.BindEnv("WALLETS_JSON")

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if err = json.Unmarshal([]byte(config.PlansJSON), &config.Plans); err != nil {
		return config, fmt.Errorf("invalid PLANS_JSON: %w", err)
	}
	if err = json.Unmarshal([]byte(config.WalletsJSON), &config.Wallets); err != nil {
		return config, fmt.Errorf("invalid WALLETS_JSON: %w", err)
	}
	return config, nil
}
