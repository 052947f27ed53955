package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BackendURL         string        `mapstructure:"BACKEND_URL"`
	APIKey             string        `mapstructure:"API_KEY"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`
	ImportPollInterval time.Duration `mapstructure:"IMPORT_POLL_INTERVAL"`
	DevServerPort      string        `mapstructure:"DEVSERVER_PORT"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("BACKEND_URL", "http://localhost:8080")
	viper.SetDefault("HTTP_TIMEOUT", "30s")
	viper.SetDefault("IMPORT_POLL_INTERVAL", "1s")
	viper.SetDefault("DEVSERVER_PORT", ":8080")

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
