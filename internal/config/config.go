package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	DB            struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Engine struct {
		Workers        int `mapstructure:"workers"`
		QueueSize      int `mapstructure:"queue_size"`
		StepTimeoutMs  int `mapstructure:"step_timeout_ms"`
		MaxStepRetries int `mapstructure:"max_step_retries"`
		RetryDelayMs   int `mapstructure:"retry_delay_ms"`
	} `mapstructure:"engine"`
	Auth struct {
		Issuer       string `mapstructure:"issuer"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// StepTimeout returns the configured per-step timeout.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Engine.StepTimeoutMs) * time.Millisecond
}

// RetryDelay returns the delay between retries of a retryable step error.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Engine.RetryDelayMs) * time.Millisecond
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig(configFile string) (*Config, error) {
	viper.SetDefault("environment", "PROD")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("engine.workers", 4)
	viper.SetDefault("engine.queue_size", 256)
	viper.SetDefault("engine.step_timeout_ms", 30000)
	viper.SetDefault("engine.max_step_retries", 0)
	viper.SetDefault("engine.retry_delay_ms", 500)

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional when everything comes from the environment
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
